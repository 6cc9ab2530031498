// Package constants provides shared configuration values used across the sidecar application.
package constants

import "time"

// Configuration file defaults
const (
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "sidecar.yaml"

	// DefaultAPIHost is the default host for the control API
	DefaultAPIHost = "127.0.0.1"

	// DefaultAPIPort is the default port for the control API
	DefaultAPIPort = 5757

	// DefaultAPIAddress is the default API address for client connections
	DefaultAPIAddress = "http://127.0.0.1:5757"
)

// Worker defaults
const (
	// DefaultWorkerPort is the TCP port the worker daemon listens on
	DefaultWorkerPort = 8000

	// DefaultWorkerSignature is the command-line substring that identifies
	// worker processes during a sweep
	DefaultWorkerSignature = "reachy_mini.daemon.app.main"

	// DefaultWorkerModule is the python module launched as the worker
	DefaultWorkerModule = "reachy_mini.daemon.app.main"

	// DefaultTrampolineName is the launch trampoline binary name
	DefaultTrampolineName = "uv-trampoline"

	// InstallLabel tags output from the simulation dependency install
	InstallLabel = "mujoco-install"
)

// DefaultWorkerArgs are appended after "-m <module>" for every launch
var DefaultWorkerArgs = []string{"--kinematics-engine", "Placo", "--desktop-app-daemon"}

// DefaultSimulationArgs are appended in simulation mode
var DefaultSimulationArgs = []string{"--sim"}

// DefaultSimulationPackages are installed before a simulation launch
var DefaultSimulationPackages = []string{"mujoco", "reachy-mini[mujoco]"}

// Timeout and duration defaults
const (
	// DefaultRequestTimeout is the default timeout for API requests
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultReaperGrace is how long the reaper waits between the graceful
	// and forceful signal on the worker port
	DefaultReaperGrace = 500 * time.Millisecond

	// DefaultReaperSettle is the wait after the final kill pass
	DefaultReaperSettle = 300 * time.Millisecond

	// DefaultSimulationSettle is the wait after a simulation dependency install
	DefaultSimulationSettle = 5 * time.Second

	// DefaultInstallWait is how long the install task is given before the
	// install request returns
	DefaultInstallWait = 3 * time.Second

	// TrampolinePollInterval is how often the trampoline checks for the
	// shutdown flag and child exit
	TrampolinePollInterval = 100 * time.Millisecond

	// DefaultWatchDebounce is the debounce for config file reloads
	DefaultWatchDebounce = time.Second
)

// Log configuration
const (
	// DefaultLogCapacity is the number of diagnostic entries kept in memory
	DefaultLogCapacity = 50
)

// Buffer sizes
const (
	// DefaultSubscriptionBuffer is the default size for event subscription buffers
	DefaultSubscriptionBuffer = 100

	// DefaultEventBuffer is the size of a process output event channel
	DefaultEventBuffer = 256

	// ScannerBufferSize is the initial buffer size for output line scanning
	ScannerBufferSize = 64 * 1024 // 64KB

	// ScannerMaxBufferSize is the maximum buffer size for output line scanning
	ScannerMaxBufferSize = 1024 * 1024 // 1MB
)

// Event channels
const (
	ChannelStdout     = "sidecar-stdout"
	ChannelStderr     = "sidecar-stderr"
	ChannelTerminated = "sidecar-terminated"
	ChannelHostLog    = "host-log"
)

// ANSI color codes for terminal output
var (
	// ColorCyan is used for stdout lines
	ColorCyan = "\033[36m"

	// ColorYellow is used for termination notices
	ColorYellow = "\033[33m"

	// ColorReset resets the terminal color
	ColorReset = "\033[0m"

	// ColorBrightRed is used for stderr output
	ColorBrightRed = "\033[91m"
)
