// Package cli implements the sidecar command line: the host (serve), the
// client commands that talk to a running host's API, and the standalone
// sweep and sign tools.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/charliek/sidecar/internal/config"
	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/host"
	"github.com/charliek/sidecar/internal/reaper"
	"github.com/charliek/sidecar/internal/signing"
)

// Version is set during build
var Version = "dev"

// App holds global flags and the collaborators commands use
type App struct {
	configPath           string
	apiAddr              string
	apiAddrExplicitlySet bool
	verbose              bool

	stdout io.Writer
	stderr io.Writer

	// Replaced in tests
	goos      string
	table     reaper.ProcessTable
	commander signing.Commander
}

// NewApp creates the CLI application
func NewApp() *App {
	return &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
		goos:   runtime.GOOS,
	}
}

// Run executes the command line and returns the process exit code
func (a *App) Run(args []string) int {
	root := a.newRootCmd()
	if len(args) > 0 {
		root.SetArgs(args[1:])
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sidecar",
		Short: "Supervise the robot daemon",
		Long: `sidecar supervises the python robot daemon on behalf of the desktop app.
It launches the daemon through the bundled uv trampoline, guarantees a single
instance by sweeping strays off the daemon port, relays the daemon's output
as events and exposes everything over a local HTTP API.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.apiAddrExplicitlySet = cmd.Flags().Changed("addr")
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: sidecar.yaml if present)")
	root.PersistentFlags().StringVar(&a.apiAddr, "addr", constants.DefaultAPIAddress, "API address for client commands")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	root.SetVersionTemplate("sidecar version {{.Version}}\n")

	root.AddCommand(
		a.newServeCmd(),
		a.newStartCmd(),
		a.newStopCmd(),
		a.newStatusCmd(),
		a.newLogsCmd(),
		a.newInstallSimCmd(),
		a.newShutdownCmd(),
		a.newSweepCmd(),
		a.newSignCmd(),
		a.newTUICmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(a.stdout, "sidecar version %s\n", Version)
			},
		},
	)
	return root
}

// loadConfig loads the --config file, or sidecar.yaml when present, or the
// built-in defaults. The returned path is absolute, empty for defaults.
func (a *App) loadConfig() (*config.Config, string, error) {
	path := a.configPath
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil {
			return config.Default(), "", nil
		}
		path = found
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return cfg, path, nil
}

// discoverAPIAddress resolves the API address and token for client commands.
// Priority:
// 1. --addr
// 2. State file of a running host
// 3. Config file
// 4. Default address
func (a *App) discoverAPIAddress() (addr, token string) {
	cfg, _, err := a.loadConfig()
	if err == nil {
		token = cfg.API.Token
	}

	if a.apiAddrExplicitlySet {
		return a.apiAddr, token
	}

	dir := ""
	if err == nil {
		dir = cfg.Dir
	}
	if state, err := host.LoadState(dir); err == nil {
		return state.URL(), token
	}
	if err == nil {
		return cfg.API.URL(), token
	}
	return constants.DefaultAPIAddress, token
}

func (a *App) client() *Client {
	addr, token := a.discoverAPIAddress()
	return NewClient(addr, token)
}
