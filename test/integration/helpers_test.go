package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRuntime stands in for the bundled interpreter: it announces itself on stdout
// and idles until terminated
const fakeRuntime = `#!/bin/sh
echo "fake daemon ready $*"
trap 'exit 0' TERM INT
while true; do sleep 0.1; done
`

// buildBinaries builds sidecar and uv-trampoline into one folder and lays out
// a fake runtime next to them. It returns the sidecar binary path.
func buildBinaries(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	projectRoot := filepath.Join(wd, "..", "..")
	binDir := filepath.Join(t.TempDir(), "bin")

	for name, pkg := range map[string]string{"sidecar": "./cmd/sidecar", "uv-trampoline": "./cmd/uv-trampoline"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(binDir, name), pkg)
		cmd.Dir = projectRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("failed to build %s: %v\n%s", name, err, output)
		}
	}

	// uv marks the runtime folder; the daemon runs through the venv interpreter
	for _, rel := range []string{"uv", filepath.Join(".venv", "bin", "python3")} {
		path := filepath.Join(binDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(fakeRuntime), 0755); err != nil {
			t.Fatalf("failed to write fake runtime: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(binDir, "cpython-3.12.0-linux-x86_64"), 0755); err != nil {
		t.Fatalf("failed to create runtime home: %v", err)
	}
	return filepath.Join(binDir, "sidecar")
}

// writeConfig writes a config that keeps the sweep away from real processes
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sidecar.yaml")
	content := `
daemon:
  port: 18765
  signature: sidecar_integration_fake_daemon
  module: sidecar_integration_fake_daemon
reaper:
  grace: 50ms
  settle: 50ms
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

type hostState struct {
	PID  int    `json:"pid"`
	Port int    `json:"port"`
	Host string `json:"host"`
}

func (s hostState) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port)
}

// waitForState waits for the host's state file under dir
func waitForState(t *testing.T, dir string, timeout time.Duration) hostState {
	t.Helper()
	path := filepath.Join(dir, ".sidecar", "sidecar.state")

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			var state hostState
			if err := json.Unmarshal(data, &state); err == nil && state.Port > 0 {
				return state
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("state file %s did not appear within %v", path, timeout)
	return hostState{}
}

// waitForStateRemoved waits for the host to clean up its state file
func waitForStateRemoved(t *testing.T, dir string, timeout time.Duration) {
	t.Helper()
	path := filepath.Join(dir, ".sidecar", "sidecar.state")

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("state file %s still present after %v", path, timeout)
}

// startHost runs "sidecar serve" in the foreground inside dir
func startHost(t *testing.T, binary, dir string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(binary, append([]string{"serve", "-p", "0"}, args...)...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start host: %v", err)
	}
	t.Cleanup(func() { killHost(cmd) })
	return cmd
}

// killHost forcefully kills the host process
func killHost(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitExit waits for cmd to exit and returns its error
func waitExit(t *testing.T, cmd *exec.Cmd, timeout time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatalf("host did not exit within %v", timeout)
		return nil
	}
}

// call sends a request and decodes the JSON response into v
func call(t *testing.T, method, url string, v interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	requireNoError(t, err, "creating request")

	resp, err := http.DefaultClient.Do(req)
	requireNoError(t, err, method+" "+url)
	defer resp.Body.Close()

	if v != nil {
		requireNoError(t, json.NewDecoder(resp.Body).Decode(v), "decoding response")
	}
	return resp.StatusCode
}

// watchEvents follows the event stream and reports the first data line that
// contains want
func watchEvents(t *testing.T, ctx context.Context, url, want string) <-chan string {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	requireNoError(t, err, "creating stream request")

	resp, err := http.DefaultClient.Do(req)
	requireNoError(t, err, "opening event stream")

	found := make(chan string, 1)
	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, want) {
				found <- line
				return
			}
		}
	}()
	return found
}

// requireNoError fails the test if err is not nil
func requireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// skipShort skips the test if -short flag is provided
func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
