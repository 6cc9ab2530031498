package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

// Config represents the top-level sidecar configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Reaper     ReaperConfig     `yaml:"reaper"`
	Simulation SimulationConfig `yaml:"simulation"`

	// Dir is the directory relative paths resolve against. It is the config
	// file's directory, or empty for built-in defaults.
	Dir string `yaml:"-"`
}

// APIConfig defines the HTTP API configuration
type APIConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Token string `yaml:"token"` // optional bearer token for /api/v1
}

// DaemonConfig describes how the worker is launched and recognised
type DaemonConfig struct {
	Trampoline  string            `yaml:"trampoline"`
	Port        int               `yaml:"port"`
	Signature   string            `yaml:"signature"`
	Module      string            `yaml:"module"`
	Args        []string          `yaml:"args"`
	SimArgs     []string          `yaml:"sim_args"`
	Env         map[string]string `yaml:"env"`
	EnvFile     string            `yaml:"env_file"`
	LogCapacity int               `yaml:"log_capacity"`
}

// ReaperConfig holds the sweep waits as duration strings ("500ms")
type ReaperConfig struct {
	Grace  string `yaml:"grace"`
	Settle string `yaml:"settle"`
}

// SimulationConfig controls the dependency install before a simulation start
type SimulationConfig struct {
	Packages    []string `yaml:"packages"`
	Settle      string   `yaml:"settle"`
	InstallWait string   `yaml:"install_wait"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	// First check if file exists
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	// Check file permissions for security
	if err := CheckFilePermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if abs, err := filepath.Abs(path); err == nil {
		cfg.Dir = filepath.Dir(abs)
	} else {
		cfg.Dir = filepath.Dir(path)
	}
	return cfg, nil
}

// Parse parses configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.Port == 0 {
		cfg.API.Port = constants.DefaultAPIPort
	}
	if cfg.API.Host == "" {
		cfg.API.Host = constants.DefaultAPIHost
	}

	d := &cfg.Daemon
	if d.Port == 0 {
		d.Port = constants.DefaultWorkerPort
	}
	if d.Signature == "" {
		d.Signature = constants.DefaultWorkerSignature
	}
	if d.Module == "" {
		d.Module = constants.DefaultWorkerModule
	}
	// nil means unset; an explicit empty list is kept
	if d.Args == nil {
		d.Args = append([]string{}, constants.DefaultWorkerArgs...)
	}
	if d.SimArgs == nil {
		d.SimArgs = append([]string{}, constants.DefaultSimulationArgs...)
	}
	if d.LogCapacity == 0 {
		d.LogCapacity = constants.DefaultLogCapacity
	}

	if cfg.Reaper.Grace == "" {
		cfg.Reaper.Grace = constants.DefaultReaperGrace.String()
	}
	if cfg.Reaper.Settle == "" {
		cfg.Reaper.Settle = constants.DefaultReaperSettle.String()
	}

	s := &cfg.Simulation
	if s.Packages == nil {
		s.Packages = append([]string{}, constants.DefaultSimulationPackages...)
	}
	if s.Settle == "" {
		s.Settle = constants.DefaultSimulationSettle.String()
	}
	if s.InstallWait == "" {
		s.InstallWait = constants.DefaultInstallWait.String()
	}
}

// Address returns the API listen address
func (c APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the base URL clients use to reach the API
func (c APIConfig) URL() string {
	host := c.Host
	if host == "0.0.0.0" || host == "" {
		host = constants.DefaultAPIHost
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}

// GraceDuration returns the wait between the graceful and forced passes
func (c ReaperConfig) GraceDuration() time.Duration {
	return durationOr(c.Grace, constants.DefaultReaperGrace)
}

// SettleDuration returns the wait after the last pass
func (c ReaperConfig) SettleDuration() time.Duration {
	return durationOr(c.Settle, constants.DefaultReaperSettle)
}

// SettleDuration returns the wait after starting the dependency install
func (c SimulationConfig) SettleDuration() time.Duration {
	return durationOr(c.Settle, constants.DefaultSimulationSettle)
}

// InstallWaitDuration returns how long the install step blocks
func (c SimulationConfig) InstallWaitDuration() time.Duration {
	return durationOr(c.InstallWait, constants.DefaultInstallWait)
}

func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// TrampolinePath resolves the trampoline executable. An empty setting
// selects the binary installed next to exe; a relative one is taken relative
// to the config file.
func (c *Config) TrampolinePath(exe string) string {
	if c.Daemon.Trampoline == "" {
		return filepath.Join(filepath.Dir(exe), constants.DefaultTrampolineName)
	}
	return resolvePath(c.Daemon.Trampoline, c.Dir)
}

// DaemonEnv returns the worker environment: env_file entries overridden by
// the inline env map
func (c *Config) DaemonEnv() (map[string]string, error) {
	return LoadDaemonEnv(c.Daemon.EnvFile, c.Daemon.Env, c.Dir)
}
