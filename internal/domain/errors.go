package domain

import "errors"

// Domain errors
var (
	ErrInvalidMode        = errors.New("invalid daemon mode")
	ErrSpawnFailed        = errors.New("failed to spawn daemon")
	ErrInstallFailed      = errors.New("dependency install failed")
	ErrShutdownInProgress = errors.New("shutdown in progress")
	ErrConfigNotFound     = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Error codes for API responses
const (
	ErrCodeInvalidMode        = "INVALID_MODE"
	ErrCodeSpawnFailed        = "SPAWN_FAILED"
	ErrCodeInstallFailed      = "INSTALL_FAILED"
	ErrCodeShutdownInProgress = "SHUTDOWN_IN_PROGRESS"

	// API-only codes with no sentinel error
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeStreamingNotSupported = "STREAMING_NOT_SUPPORTED"
)

// ErrorCode returns the API error code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMode):
		return ErrCodeInvalidMode
	case errors.Is(err, ErrSpawnFailed):
		return ErrCodeSpawnFailed
	case errors.Is(err, ErrInstallFailed):
		return ErrCodeInstallFailed
	case errors.Is(err, ErrShutdownInProgress):
		return ErrCodeShutdownInProgress
	default:
		return "INTERNAL_ERROR"
	}
}
