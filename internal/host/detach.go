package host

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// DetachEnvVar marks the re-executed background host process
const DetachEnvVar = "_SIDECAR_HOST"

// IsDetachedChild returns true inside the background host process
func IsDetachedChild() bool {
	return os.Getenv(DetachEnvVar) == "1"
}

// Detach re-executes the current binary with args in a new session, marked
// with DetachEnvVar, and reports the child PID on out. The caller is
// expected to exit afterwards.
func Detach(args []string, out io.Writer) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("getting executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Env = append(os.Environ(), DetachEnvVar+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// No inherited stdio, the child logs to the state dir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting background host: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	if out != nil {
		fmt.Fprintf(out, "sidecar host started (pid %d)\n", pid)
	}
	return pid, nil
}

// RedirectOutput points os.Stdout and os.Stderr at the host log file in dir
// and returns the file
func RedirectOutput(dir string) (*os.File, error) {
	if err := EnsureStateDir(dir); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(LogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	os.Stdout = f
	os.Stderr = f
	return f, nil
}
