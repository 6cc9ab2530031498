package domain

import (
	"fmt"
	"strings"
	"time"
)

// DaemonMode selects how the worker is launched
type DaemonMode string

const (
	// ModeNormal runs the worker against real hardware
	ModeNormal DaemonMode = "normal"
	// ModeSimulation runs the worker against the physics simulator
	ModeSimulation DaemonMode = "simulation"
)

// String returns the string representation of DaemonMode
func (m DaemonMode) String() string {
	return string(m)
}

// IsSimulation returns true for simulation mode
func (m DaemonMode) IsSimulation() bool {
	return m == ModeSimulation
}

// ModeFromSim maps the boolean flag used by clients to a DaemonMode
func ModeFromSim(sim bool) DaemonMode {
	if sim {
		return ModeSimulation
	}
	return ModeNormal
}

// ParseMode parses a mode name. The empty string is ModeNormal.
func ParseMode(s string) (DaemonMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ModeNormal, nil
	case "simulation", "sim":
		return ModeSimulation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// LaunchSpec is the fully resolved command for one worker launch. It is
// built fresh for every start and never shared between launches.
type LaunchSpec struct {
	Executable string
	Args       []string
	Env        map[string]string
	Dir        string
}

// String renders the command line for diagnostics
func (s LaunchSpec) String() string {
	parts := append([]string{s.Executable}, s.Args...)
	return strings.Join(parts, " ")
}

// ExitStatus describes how a child process ended. Signal is non-zero only
// when the process was killed by a signal.
type ExitStatus struct {
	Code   int `json:"code"`
	Signal int `json:"signal,omitempty"`
}

// Success returns true for a clean zero exit
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == 0
}

// String returns a human readable description of the status
func (s ExitStatus) String() string {
	if s.Signal != 0 {
		return fmt.Sprintf("ExitStatus { code: None, signal: %d }", s.Signal)
	}
	return fmt.Sprintf("ExitStatus { code: %d, signal: None }", s.Code)
}

// DaemonStatus is a point-in-time view of the supervised worker
type DaemonStatus struct {
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	Mode      DaemonMode `json:"mode,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
}

// UptimeSeconds returns the number of seconds the worker has been running
func (s DaemonStatus) UptimeSeconds() int64 {
	if !s.Running || s.StartedAt.IsZero() {
		return 0
	}
	return int64(time.Since(s.StartedAt).Seconds())
}
