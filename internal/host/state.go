package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// StateDirName is the name of the directory storing runtime state
	StateDirName = ".sidecar"
	// StateFileName is the name of the state file
	StateFileName = "sidecar.state"
	// PIDFileName is the name of the PID file
	PIDFileName = "sidecar.pid"
	// LogFileName is the name of the detached host log file
	LogFileName = "sidecar.log"
)

// State is what a running host publishes for client discovery. The host
// writes it once after the API is listening; clients only read it.
type State struct {
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	Host       string    `json:"host"`
	StartedAt  time.Time `json:"started_at"`
	ConfigFile string    `json:"config_file,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// URL returns the API base URL described by the state
func (s *State) URL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

func (s *State) validate() error {
	if s.PID <= 0 {
		return fmt.Errorf("invalid PID: %d", s.PID)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.Host == "" {
		return errors.New("host cannot be empty")
	}
	return nil
}

// Write stores the state under dir. The file is replaced atomically so a
// reader never sees a partial document.
func (s *State) Write(dir string) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := EnsureStateDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	path := StatePath(dir)
	tmp, err := os.CreateTemp(filepath.Dir(path), StateFileName+".*")
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// LoadState reads the state file under dir
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}
	return &state, nil
}

// RemoveState removes the state file under dir
func RemoveState(dir string) error {
	if err := os.Remove(StatePath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

// StateDir returns the .sidecar directory inside dir, or inside the working
// directory when dir is empty
func StateDir(dir string) string {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return StateDirName
		}
		dir = wd
	}
	return filepath.Join(dir, StateDirName)
}

// StatePath returns the full path to the state file
func StatePath(dir string) string {
	return filepath.Join(StateDir(dir), StateFileName)
}

// PIDPath returns the full path to the PID file
func PIDPath(dir string) string {
	return filepath.Join(StateDir(dir), PIDFileName)
}

// LogPath returns the full path to the detached host log file
func LogPath(dir string) string {
	return filepath.Join(StateDir(dir), LogFileName)
}

// EnsureStateDir creates the state directory if it doesn't exist
func EnsureStateDir(dir string) error {
	if err := os.MkdirAll(StateDir(dir), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// CleanupStateDir removes the state and PID files. The log is kept.
func CleanupStateDir(dir string) error {
	if err := RemoveState(dir); err != nil {
		return err
	}
	if err := os.Remove(PIDPath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether a host holds the lock for dir, or a stale state
// file still points at a live process
func IsRunning(dir string) bool {
	if IsLocked(PIDPath(dir)) {
		return true
	}
	state, err := LoadState(dir)
	if err != nil {
		return false
	}
	return ProcessExists(state.PID)
}

// GetRunningState returns the state of the running host for dir
func GetRunningState(dir string) (*State, error) {
	if !IsRunning(dir) {
		return nil, ErrNotRunning
	}
	return LoadState(dir)
}

// CleanupStaleFiles removes state left behind by a host that died without
// shutting down. It returns ErrAlreadyRunning when the host is alive.
func CleanupStaleFiles(dir string) error {
	if IsLocked(PIDPath(dir)) {
		return ErrAlreadyRunning
	}

	state, err := LoadState(dir)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		// Unreadable state is as stale as a dead PID
		return CleanupStateDir(dir)
	}
	if state.PID != os.Getpid() && ProcessExists(state.PID) {
		return ErrAlreadyRunning
	}
	return CleanupStateDir(dir)
}
