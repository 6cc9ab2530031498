package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

// outputDrainTimeout is the maximum time to wait for output readers to finish
// after a process exits. This allows grandchild processes to complete their
// final writes before we stop reading.
const outputDrainTimeout = 5 * time.Second

// EventKind identifies a CommandEvent
type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventTerminated
)

// CommandEvent is one item of a child's event stream. Line is set for
// stdout/stderr events, Status for the final terminated event.
type CommandEvent struct {
	Kind   EventKind
	Line   string
	Status domain.ExitStatus
}

// ProcessHandle owns one live child. Its event stream delivers output lines
// followed by exactly one terminated event, then closes.
type ProcessHandle struct {
	mu sync.RWMutex

	process   Process
	startedAt time.Time
	events    chan CommandEvent

	exited bool
	status domain.ExitStatus

	done     chan struct{}
	outputWg sync.WaitGroup
}

// Spawn starts spec with runner and begins collecting its output. The caller
// must drain Events (normally by attaching an OutputMonitor).
func Spawn(ctx context.Context, runner ProcessRunner, spec domain.LaunchSpec) (*ProcessHandle, error) {
	proc, err := runner.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	h := &ProcessHandle{
		process:   proc,
		startedAt: time.Now(),
		events:    make(chan CommandEvent, constants.DefaultEventBuffer),
		done:      make(chan struct{}),
	}

	h.outputWg.Add(2)
	go func() {
		defer h.outputWg.Done()
		h.readOutput(proc.Stdout(), EventStdout)
	}()
	go func() {
		defer h.outputWg.Done()
		h.readOutput(proc.Stderr(), EventStderr)
	}()

	go h.monitor()

	return h, nil
}

// PID returns the child's process ID
func (h *ProcessHandle) PID() int {
	return h.process.PID()
}

// StartedAt returns when the child was spawned
func (h *ProcessHandle) StartedAt() time.Time {
	return h.startedAt
}

// Events returns the child's event stream
func (h *ProcessHandle) Events() <-chan CommandEvent {
	return h.events
}

// Done is closed once the child has exited and its stream is closed
func (h *ProcessHandle) Done() <-chan struct{} {
	return h.done
}

// IsRunning reports whether the child has not yet been reaped
func (h *ProcessHandle) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.exited
}

// ExitStatus returns the exit status once the child has exited
func (h *ProcessHandle) ExitStatus() (domain.ExitStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status, h.exited
}

// Terminate asks the child's process group to shut down gracefully
func (h *ProcessHandle) Terminate() error {
	return h.signal(sigterm)
}

// Kill force-kills the child's process group
func (h *ProcessHandle) Kill() error {
	return h.signal(sigkill)
}

func (h *ProcessHandle) signal(sig os.Signal) error {
	if !h.IsRunning() {
		return nil
	}
	if err := h.process.Signal(sig); err != nil && h.IsRunning() {
		return fmt.Errorf("signalling pid %d: %w", h.PID(), err)
	}
	return nil
}

// monitor waits for exit, flushes the output readers and closes the stream
func (h *ProcessHandle) monitor() {
	status, err := h.process.Wait()
	if err != nil {
		h.events <- CommandEvent{Kind: EventStderr, Line: fmt.Sprintf("wait failed: %v", err)}
	}

	outputDone := make(chan struct{})
	go func() {
		h.outputWg.Wait()
		close(outputDone)
	}()

	select {
	case <-outputDone:
	case <-time.After(outputDrainTimeout):
		// A grandchild still holds the pipes. Stop reading so the stream can close.
		h.process.Stdout().Close()
		h.process.Stderr().Close()
		<-outputDone
	}
	h.process.Stdout().Close()
	h.process.Stderr().Close()

	h.mu.Lock()
	h.exited = true
	h.status = status
	h.mu.Unlock()

	h.events <- CommandEvent{Kind: EventTerminated, Status: status}
	close(h.events)
	close(h.done)
}

// readOutput forwards each line of r as an event
func (h *ProcessHandle) readOutput(r io.Reader, kind EventKind) {
	if r == nil {
		return
	}

	scanner := bufio.NewScanner(r)
	// Increase buffer size for long lines
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)

	for scanner.Scan() {
		h.events <- CommandEvent{Kind: kind, Line: strings.ToValidUTF8(scanner.Text(), "�")}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		h.events <- CommandEvent{Kind: EventStderr, Line: fmt.Sprintf("output reader error: %v", err)}
		// Keep the pipe drained so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}
