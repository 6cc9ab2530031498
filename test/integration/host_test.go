package integration

import (
	"context"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"
)

type status struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid"`
	Mode    string `json:"mode"`
}

func TestHost_DaemonLifecycle(t *testing.T) {
	skipShort(t)

	binary := buildBinaries(t)
	dir := t.TempDir()
	writeConfig(t, dir)

	cmd := startHost(t, binary, dir)
	state := waitForState(t, dir, 10*time.Second)
	base := state.URL()

	var st status
	if code := call(t, http.MethodGet, base+"/api/v1/status", &st); code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	if st.Running {
		t.Fatalf("daemon running before start: %+v", st)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := watchEvents(t, ctx, base+"/api/v1/events?channel=sidecar-stdout", "fake daemon ready")

	var started struct {
		Success bool `json:"success"`
		PID     int  `json:"pid"`
	}
	if code := call(t, http.MethodPost, base+"/api/v1/daemon/start", &started); code != http.StatusOK || !started.Success {
		t.Fatalf("start returned %d: %+v", code, started)
	}

	select {
	case line := <-ready:
		if !strings.Contains(line, "sidecar_integration_fake_daemon") {
			t.Errorf("expected module in daemon args, got %s", line)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon output never reached the event stream")
	}

	call(t, http.MethodGet, base+"/api/v1/status", &st)
	if !st.Running || st.PID != started.PID {
		t.Fatalf("expected running daemon pid %d, got %+v", started.PID, st)
	}

	var stopped struct {
		Success bool `json:"success"`
	}
	if code := call(t, http.MethodPost, base+"/api/v1/daemon/stop", &stopped); code != http.StatusOK || !stopped.Success {
		t.Fatalf("stop returned %d", code)
	}
	call(t, http.MethodGet, base+"/api/v1/status", &st)
	if st.Running {
		t.Fatalf("daemon still running after stop: %+v", st)
	}

	var logs struct {
		Logs []string `json:"logs"`
	}
	call(t, http.MethodGet, base+"/api/v1/logs", &logs)
	if len(logs.Logs) == 0 {
		t.Error("expected diagnostic log entries")
	}

	call(t, http.MethodPost, base+"/api/v1/shutdown", nil)
	if err := waitExit(t, cmd, 10*time.Second); err != nil {
		t.Errorf("host exited with error: %v", err)
	}
	waitForStateRemoved(t, dir, 5*time.Second)
}

func TestHost_SecondHostRefused(t *testing.T) {
	skipShort(t)

	binary := buildBinaries(t)
	dir := t.TempDir()
	writeConfig(t, dir)

	startHost(t, binary, dir)
	state := waitForState(t, dir, 10*time.Second)

	second := exec.Command(binary, "serve", "-p", "0")
	second.Dir = dir
	output, err := second.CombinedOutput()
	if err == nil {
		t.Fatalf("second host started: %s", output)
	}
	if !strings.Contains(string(output), "already running") {
		t.Errorf("expected already running error, got: %s", output)
	}

	call(t, http.MethodPost, state.URL()+"/api/v1/shutdown", nil)
	waitForStateRemoved(t, dir, 10*time.Second)
}

func TestHost_Detach(t *testing.T) {
	skipShort(t)

	binary := buildBinaries(t)
	dir := t.TempDir()
	writeConfig(t, dir)

	cmd := exec.Command(binary, "serve", "-d", "-p", "0")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to detach: %v\n%s", err, output)
	}
	if !strings.Contains(string(output), "sidecar host started (pid") {
		t.Errorf("expected detach message, got: %s", output)
	}

	state := waitForState(t, dir, 10*time.Second)
	t.Cleanup(func() {
		_ = exec.Command("kill", "-9", strconv.Itoa(state.PID)).Run()
	})

	status := exec.Command(binary, "status")
	status.Dir = dir
	output, err = status.CombinedOutput()
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, output)
	}
	if !strings.Contains(string(output), "Daemon:  stopped") {
		t.Errorf("unexpected status output: %s", output)
	}

	shutdown := exec.Command(binary, "shutdown")
	shutdown.Dir = dir
	if output, err := shutdown.CombinedOutput(); err != nil {
		t.Fatalf("shutdown failed: %v\n%s", err, output)
	}
	waitForStateRemoved(t, dir, 10*time.Second)
}
