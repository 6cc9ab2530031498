package supervisor

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/sidecar/internal/domain"
)

// collect drains the handle's stream until it closes
func collect(t *testing.T, h *ProcessHandle) []CommandEvent {
	t.Helper()
	var events []CommandEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func TestSpawn_StreamsOutputThenTerminated(t *testing.T) {
	h, err := Spawn(context.Background(), NewExecRunner(), shSpec("echo one; echo two >&2; echo three; exit 3"))
	require.NoError(t, err)

	events := collect(t, h)
	require.NotEmpty(t, events)

	var stdout, stderr []string
	for _, ev := range events[:len(events)-1] {
		switch ev.Kind {
		case EventStdout:
			stdout = append(stdout, ev.Line)
		case EventStderr:
			stderr = append(stderr, ev.Line)
		default:
			t.Fatalf("unexpected event kind %v before termination", ev.Kind)
		}
	}
	assert.Equal(t, []string{"one", "three"}, stdout)
	assert.Equal(t, []string{"two"}, stderr)

	last := events[len(events)-1]
	assert.Equal(t, EventTerminated, last.Kind)
	assert.Equal(t, 3, last.Status.Code)

	<-h.Done()
	assert.False(t, h.IsRunning())
	status, exited := h.ExitStatus()
	assert.True(t, exited)
	assert.Equal(t, "ExitStatus { code: 3, signal: None }", status.String())
}

func TestProcessHandle_Terminate(t *testing.T) {
	h, err := Spawn(context.Background(), NewExecRunner(), shSpec("sleep 30"))
	require.NoError(t, err)
	assert.True(t, h.IsRunning())
	assert.Greater(t, h.PID(), 0)
	assert.False(t, h.StartedAt().IsZero())

	go func() {
		for range h.Events() {
		}
	}()

	require.NoError(t, h.Terminate())

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after terminate")
	}

	status, _ := h.ExitStatus()
	assert.Equal(t, int(syscall.SIGTERM), status.Signal)

	// signalling an exited child is a no-op
	assert.NoError(t, h.Kill())
}

func TestProcessHandle_FakeProcess(t *testing.T) {
	runner := &fakeRunner{}
	h, err := Spawn(context.Background(), runner, domain.LaunchSpec{Executable: "uv-trampoline"})
	require.NoError(t, err)

	p := runner.Process(0)
	go func() {
		p.writeStdout("ready")
		p.writeStderr("invalid utf8 \xff")
		p.exit(domain.ExitStatus{Code: 0})
	}()

	events := collect(t, h)
	require.Len(t, events, 3)
	assert.Contains(t, events, CommandEvent{Kind: EventStdout, Line: "ready"})
	assert.Contains(t, events, CommandEvent{Kind: EventStderr, Line: "invalid utf8 �"})
	assert.Equal(t, CommandEvent{Kind: EventTerminated, Status: domain.ExitStatus{Code: 0}}, events[2])
}
