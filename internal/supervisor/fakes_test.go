package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/reaper"
)

// fakeProcess is a child that runs until it is signalled or exited
type fakeProcess struct {
	pid    int
	stdout *io.PipeReader
	stderr *io.PipeReader
	outW   *io.PipeWriter
	errW   *io.PipeWriter
	status chan domain.ExitStatus
	once   sync.Once

	mu      sync.Mutex
	signals []os.Signal
}

func newFakeProcess(pid int) *fakeProcess {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	return &fakeProcess{
		pid:    pid,
		stdout: outR,
		stderr: errR,
		outW:   outW,
		errW:   errW,
		status: make(chan domain.ExitStatus, 1),
	}
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *fakeProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *fakeProcess) Wait() (domain.ExitStatus, error) {
	return <-p.status, nil
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	p.exit(domain.ExitStatus{Code: -1, Signal: int(sig.(syscall.Signal))})
	return nil
}

func (p *fakeProcess) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal{}, p.signals...)
}

func (p *fakeProcess) writeStdout(line string) {
	_, _ = p.outW.Write([]byte(line + "\n"))
}

func (p *fakeProcess) writeStderr(line string) {
	_, _ = p.errW.Write([]byte(line + "\n"))
}

func (p *fakeProcess) exit(status domain.ExitStatus) {
	p.once.Do(func() {
		p.outW.Close()
		p.errW.Close()
		p.status <- status
	})
}

// fakeRunner hands out fakeProcesses and records every spec
type fakeRunner struct {
	mu        sync.Mutex
	specs     []domain.LaunchSpec
	processes []*fakeProcess
	nextPID   int
	// fail rejects specs whose args contain this word
	fail string
}

func (r *fakeRunner) Start(_ context.Context, spec domain.LaunchSpec) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs = append(r.specs, spec)
	if r.fail != "" && strings.Contains(strings.Join(spec.Args, " "), r.fail) {
		return nil, errors.Join(domain.ErrSpawnFailed, errors.New("no such file"))
	}
	r.nextPID++
	p := newFakeProcess(1000 + r.nextPID)
	r.processes = append(r.processes, p)
	return p, nil
}

func (r *fakeRunner) Specs() []domain.LaunchSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LaunchSpec{}, r.specs...)
}

func (r *fakeRunner) Process(i int) *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processes[i]
}

func (r *fakeRunner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processes)
}

// fakeSweeper records the protected PIDs of each sweep
type fakeSweeper struct {
	mu    sync.Mutex
	calls [][]int
}

func (s *fakeSweeper) Sweep(_ context.Context, protect ...int) reaper.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]int{}, protect...))
	return reaper.Report{}
}

func (s *fakeSweeper) Calls() [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int{}, s.calls...)
}

type published struct {
	channel string
	payload string
}

// recordingSink keeps every published event
type recordingSink struct {
	mu     sync.Mutex
	events []published
}

func (s *recordingSink) Publish(channel, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, published{channel: channel, payload: payload})
}

func (s *recordingSink) On(channel string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.channel == channel {
			out = append(out, ev.payload)
		}
	}
	return out
}
