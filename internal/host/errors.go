package host

import "errors"

var (
	// ErrStateNotFound is returned when no state file exists
	ErrStateNotFound = errors.New("state file not found")
	// ErrAlreadyRunning is returned when a host already supervises this directory
	ErrAlreadyRunning = errors.New("sidecar host is already running")
	// ErrNotRunning is returned when no host is running
	ErrNotRunning = errors.New("sidecar host is not running")
	// ErrPIDFileLocked is returned when the PID file is locked by another process
	ErrPIDFileLocked = errors.New("PID file is locked by another process")
)
