package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

func feed(events ...CommandEvent) <-chan CommandEvent {
	ch := make(chan CommandEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not finish")
	}
}

func TestOutputMonitor_Primary(t *testing.T) {
	sink := &recordingSink{}
	monitor := NewOutputMonitor("", sink, nil)

	waitDone(t, monitor.Watch(feed(
		CommandEvent{Kind: EventStdout, Line: "Uvicorn running on http://0.0.0.0:8000"},
		CommandEvent{Kind: EventStderr, Line: "warning: slow start"},
		CommandEvent{Kind: EventTerminated, Status: domain.ExitStatus{Code: 1}},
	)))

	assert.Equal(t, []string{"Uvicorn running on http://0.0.0.0:8000"}, sink.On(constants.ChannelStdout))
	assert.Equal(t, []string{"warning: slow start"}, sink.On(constants.ChannelStderr))
	assert.Equal(t, []string{"ExitStatus { code: 1, signal: None }"}, sink.On(constants.ChannelTerminated))
}

func TestOutputMonitor_Labeled(t *testing.T) {
	sink := &recordingSink{}
	monitor := NewOutputMonitor(constants.InstallLabel, sink, nil)

	waitDone(t, monitor.Watch(feed(
		CommandEvent{Kind: EventStdout, Line: "Resolved 12 packages"},
		CommandEvent{Kind: EventStderr, Line: "Installed mujoco"},
		CommandEvent{Kind: EventTerminated, Status: domain.ExitStatus{Code: 0}},
	)))

	assert.Equal(t, []string{"[mujoco-install] Resolved 12 packages"}, sink.On(constants.ChannelStdout))
	assert.Equal(t, []string{"[mujoco-install] Installed mujoco"}, sink.On(constants.ChannelStderr))
	assert.Empty(t, sink.On(constants.ChannelTerminated))
}

func TestOutputMonitor_EndsWhenStreamCloses(t *testing.T) {
	monitor := NewOutputMonitor("", nil, nil)
	waitDone(t, monitor.Watch(feed()))
}
