package trampoline

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charliek/sidecar/internal/constants"
)

// ShutdownFlag is set once when a termination signal arrives and never reset
type ShutdownFlag struct {
	set atomic.Bool
}

// Set raises the flag
func (f *ShutdownFlag) Set() {
	f.set.Store(true)
}

// IsSet reports whether the flag was raised
func (f *ShutdownFlag) IsSet() bool {
	return f.set.Load()
}

// Watch raises the flag on the first value from signals
func (f *ShutdownFlag) Watch(signals <-chan os.Signal) {
	if signals == nil {
		return
	}
	go func() {
		if _, ok := <-signals; ok {
			f.Set()
		}
	}()
}

// Supervise starts cmd and polls every interval for either the child's exit
// or the shutdown flag. When the flag is seen the child is force-killed.
// The returned code is the child's exit code; a child killed by a signal
// reports 128 plus the signal number.
func Supervise(cmd *exec.Cmd, flag *ShutdownFlag, interval time.Duration) (int, error) {
	if interval <= 0 {
		interval = constants.TrampolinePollInterval
	}

	if err := cmd.Start(); err != nil {
		return ExitFailure, fmt.Errorf("spawning %s: %w", cmd.Path, err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			return exitCode(cmd, err), nil
		case <-ticker.C:
			if !flag.IsSet() {
				continue
			}
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return ExitFailure, fmt.Errorf("killing child %d: %w", cmd.Process.Pid, err)
			}
			return exitCode(cmd, <-exited), nil
		}
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	state := cmd.ProcessState
	if state == nil {
		return ExitFailure
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	if waitErr != nil {
		return ExitFailure
	}
	return 0
}
