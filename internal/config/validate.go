package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/charliek/sidecar/internal/domain"
)

// Validate checks the configuration for errors
func Validate(config *Config) error {
	var errs []string

	if config.API.Port < 0 || config.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port: must be between 0 and 65535, got %d", config.API.Port))
	}

	if config.Daemon.Port < 1 || config.Daemon.Port > 65535 {
		errs = append(errs, fmt.Sprintf("daemon.port: must be between 1 and 65535, got %d", config.Daemon.Port))
	}
	if strings.TrimSpace(config.Daemon.Signature) == "" {
		errs = append(errs, "daemon.signature: must not be blank")
	}
	if strings.TrimSpace(config.Daemon.Module) == "" {
		errs = append(errs, "daemon.module: must not be blank")
	}
	if config.Daemon.LogCapacity < 0 {
		errs = append(errs, fmt.Sprintf("daemon.log_capacity: must be positive, got %d", config.Daemon.LogCapacity))
	}
	for key := range config.Daemon.Env {
		if err := ValidateEnvKey(key); err != nil {
			errs = append(errs, fmt.Sprintf("daemon.env.%s: %v", key, err))
		}
	}

	errs = appendDurationError(errs, "reaper.grace", config.Reaper.Grace)
	errs = appendDurationError(errs, "reaper.settle", config.Reaper.Settle)
	errs = appendDurationError(errs, "simulation.settle", config.Simulation.Settle)
	errs = appendDurationError(errs, "simulation.install_wait", config.Simulation.InstallWait)

	for i, pkg := range config.Simulation.Packages {
		if strings.TrimSpace(pkg) == "" {
			errs = append(errs, fmt.Sprintf("simulation.packages[%d]: must not be blank", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

func appendDurationError(errs []string, field, value string) []string {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, fmt.Sprintf("%s: invalid duration %q", field, value))
	}
	if d < 0 {
		return append(errs, fmt.Sprintf("%s: must not be negative", field))
	}
	return errs
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEnvKey checks an environment variable name
func ValidateEnvKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "env", Message: "variable name cannot be empty"}
	}
	if strings.ContainsAny(key, "= \t\n") {
		return &ValidationError{Field: "env", Message: "variable name cannot contain '=' or whitespace"}
	}
	return nil
}
