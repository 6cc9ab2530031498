// Package supervisor owns the worker daemon lifecycle: spawning it through
// the launch trampoline, watching its output, and tearing it down.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"github.com/charliek/sidecar/internal/domain"
)

// ProcessRunner creates and starts processes
type ProcessRunner interface {
	Start(ctx context.Context, spec domain.LaunchSpec) (Process, error)
}

// Process represents a running process
type Process interface {
	PID() int
	Wait() (domain.ExitStatus, error)
	Signal(sig os.Signal) error
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
}

// ExecRunner implements ProcessRunner using os/exec
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Start starts spec.Executable with spec.Args. The child gets its own
// process group so Signal reaches the trampoline and everything it spawned.
func (r *ExecRunner) Start(ctx context.Context, spec domain.LaunchSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(os.Environ(), spec.Env)

	// Manual pipes: Wait must not close the read ends while grandchildren
	// are still writing to them.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	// Set process group so we can signal all children
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	err = cmd.Start()
	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawnFailed, spec.Executable, err)
	}

	return &execProcess{
		cmd:    cmd,
		stdout: stdoutR,
		stderr: stderrR,
	}, nil
}

// buildEnv appends overrides to base in a stable order. Later entries win
// for duplicate keys in os/exec.
func buildEnv(base []string, overrides map[string]string) []string {
	env := append([]string{}, base...)
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// execProcess wraps exec.Cmd to implement Process interface
type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (domain.ExitStatus, error) {
	return exitStatus(p.cmd.Wait())
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}

	// Signal entire process group
	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err != nil {
		// Fall back to signalling just the process
		return p.cmd.Process.Signal(sig)
	}

	return syscall.Kill(-pgid, sig.(syscall.Signal))
}

func (p *execProcess) Stdout() io.ReadCloser {
	return p.stdout
}

func (p *execProcess) Stderr() io.ReadCloser {
	return p.stderr
}

// exitStatus converts the result of exec.Cmd.Wait into an ExitStatus.
// A non-exit error (the process could not be waited on) is returned as is.
func exitStatus(err error) (domain.ExitStatus, error) {
	if err == nil {
		return domain.ExitStatus{Code: 0}, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return domain.ExitStatus{Code: -1}, err
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return domain.ExitStatus{Code: -1, Signal: int(status.Signal())}, nil
	}
	return domain.ExitStatus{Code: exitErr.ExitCode()}, nil
}
