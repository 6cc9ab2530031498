// Package host is the composition root of a running sidecar host. It owns
// the PID-file lock and state file for client discovery, wires the event
// bus, diagnostic log, supervisor and HTTP API together, and tears them
// down in order on shutdown.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/api"
	"github.com/charliek/sidecar/internal/config"
	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/events"
	"github.com/charliek/sidecar/internal/logs"
	"github.com/charliek/sidecar/internal/reaper"
	"github.com/charliek/sidecar/internal/supervisor"
	"github.com/charliek/sidecar/internal/watcher"
)

// Options configures a Host
type Options struct {
	Config *config.Config
	// ConfigFile is the loaded file, empty when running on defaults
	ConfigFile string
	// Dir holds the .sidecar state directory
	Dir string
	// Executable locates the default trampoline
	Executable string
	Version    string

	// Watch reloads the config file on change
	Watch bool
	// Autostart launches the worker once the API is up
	Autostart bool
	Mode      domain.DaemonMode

	// Signals triggers the kill path and a clean exit
	Signals <-chan os.Signal
	Logger  *zap.Logger

	// Runner and Table replace the OS-backed implementations in tests
	Runner supervisor.ProcessRunner
	Table  reaper.ProcessTable
}

// Host runs one supervisor behind the HTTP API
type Host struct {
	opts   Options
	logger *zap.Logger

	bus        *events.Bus
	logs       *logs.Manager
	supervisor *supervisor.Supervisor
	server     *api.Server

	pidFile *PIDFile
	watcher *watcher.Watcher

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
}

// SupervisorConfig maps the file configuration onto worker launch settings
func SupervisorConfig(cfg *config.Config, exe string, env map[string]string) supervisor.Config {
	sc := supervisor.DefaultConfig()
	sc.Trampoline = cfg.TrampolinePath(exe)
	sc.Dir = filepath.Dir(sc.Trampoline)
	sc.Module = cfg.Daemon.Module
	sc.Args = append([]string{}, cfg.Daemon.Args...)
	sc.SimArgs = append([]string{}, cfg.Daemon.SimArgs...)
	sc.Env = env
	sc.SimulationPackages = append([]string{}, cfg.Simulation.Packages...)
	sc.InstallWait = cfg.Simulation.InstallWaitDuration()
	sc.SimulationSettle = cfg.Simulation.SettleDuration()
	return sc
}

// ReaperConfig maps the file configuration onto sweep settings
func ReaperConfig(cfg *config.Config) reaper.Config {
	return reaper.Config{
		Port:      cfg.Daemon.Port,
		Signature: cfg.Daemon.Signature,
		Grace:     cfg.Reaper.GraceDuration(),
		Settle:    cfg.Reaper.SettleDuration(),
	}
}

// New wires a host. Nothing is started until Run.
func New(opts Options) (*Host, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Table == nil {
		opts.Table = reaper.NewSystemTable()
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeNormal
	}
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("getting executable path: %w", err)
		}
		opts.Executable = exe
	}
	if opts.Dir == "" {
		opts.Dir = opts.Config.Dir
	}

	env, err := opts.Config.DaemonEnv()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	cfg := opts.Config
	h := &Host{
		opts:       opts,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	h.bus = events.NewBus(constants.DefaultSubscriptionBuffer, logger.Named("events"))
	h.logs = logs.NewManager(logs.ManagerConfig{
		Capacity: cfg.Daemon.LogCapacity,
		Sink:     h.bus,
		Logger:   logger.Named("daemon"),
	})
	h.supervisor = supervisor.New(supervisor.Options{
		Config:  SupervisorConfig(cfg, opts.Executable, env),
		Runner:  opts.Runner,
		Sweeper: reaper.New(opts.Table, ReaperConfig(cfg), logger.Named("reaper")),
		Logs:    h.logs,
		Sink:    h.bus,
		Logger:  logger.Named("supervisor"),
	})

	handlers := api.NewHandlers(h.supervisor, h.bus, opts.ConfigFile, h.RequestShutdown, logger.Named("api"))
	h.server = api.NewServer(api.ServerConfig{
		Host:  cfg.API.Host,
		Port:  cfg.API.Port,
		Token: cfg.API.Token,
	}, handlers, logger.Named("api"))

	return h, nil
}

// Supervisor returns the host's supervisor
func (h *Host) Supervisor() *supervisor.Supervisor {
	return h.supervisor
}

// Bus returns the host's event bus
func (h *Host) Bus() *events.Bus {
	return h.bus
}

// Addr returns the API listen address
func (h *Host) Addr() string {
	return h.server.Addr()
}

// RequestShutdown asks Run to shut the host down. Safe to call repeatedly.
func (h *Host) RequestShutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdownCh) })
}

// Run claims the state directory, serves the API and blocks until ctx is
// done, a shutdown is requested or a signal arrives. The worker is always
// killed before Run returns.
func (h *Host) Run(ctx context.Context) error {
	dir := h.opts.Dir
	if err := EnsureStateDir(dir); err != nil {
		return err
	}
	if err := CleanupStaleFiles(dir); err != nil {
		return err
	}

	pidFile, err := AcquirePIDFile(PIDPath(dir))
	if err != nil {
		if errors.Is(err, ErrPIDFileLocked) {
			return ErrAlreadyRunning
		}
		return err
	}
	h.pidFile = pidFile

	if err := h.server.Listen(); err != nil {
		h.releaseState()
		return err
	}

	state := &State{
		PID:        os.Getpid(),
		Port:       h.server.Port(),
		Host:       h.opts.Config.API.Host,
		StartedAt:  time.Now(),
		ConfigFile: h.opts.ConfigFile,
		Version:    h.opts.Version,
	}
	if err := state.Write(dir); err != nil {
		_ = h.server.Shutdown(context.Background())
		h.releaseState()
		return err
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- h.server.Start() }()

	h.logger.Info("sidecar host running",
		zap.String("addr", h.server.Addr()),
		zap.Int("pid", state.PID),
		zap.String("config", h.opts.ConfigFile))

	if h.opts.Watch && h.opts.ConfigFile != "" {
		if err := h.startWatcher(ctx); err != nil {
			h.logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	if h.opts.Autostart {
		go h.autostart(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		h.logger.Info("context cancelled")
	case <-h.shutdownCh:
		h.logger.Info("shutdown requested")
	case sig := <-h.opts.Signals:
		h.logger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("API server: %w", err)
		}
	}

	h.Shutdown()
	return runErr
}

func (h *Host) autostart(ctx context.Context) {
	res, err := h.supervisor.Start(ctx, h.opts.Mode)
	if err != nil {
		h.logger.Error("autostart failed", zap.Error(err))
		return
	}
	h.logger.Info("autostart complete", zap.Int("pid", res.PID), zap.Bool("skipped", res.Skipped))
}

func (h *Host) startWatcher(ctx context.Context) error {
	w, err := watcher.New(watcher.Config{
		ConfigPath: h.opts.ConfigFile,
		Handler:    h.Reload,
		Logger:     h.logger.Named("watcher"),
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	h.watcher = w
	return nil
}

// Reload re-reads the config file and applies the worker and reaper
// settings to later requests. API settings need a restart.
func (h *Host) Reload() error {
	if h.opts.ConfigFile == "" {
		return nil
	}
	cfg, err := config.Load(h.opts.ConfigFile)
	if err != nil {
		return err
	}
	env, err := cfg.DaemonEnv()
	if err != nil {
		return err
	}

	if cfg.API != h.opts.Config.API {
		h.logger.Warn("api settings changed, restart the host to apply them")
	}

	h.supervisor.Reconfigure(
		SupervisorConfig(cfg, h.opts.Executable, env),
		reaper.New(h.opts.Table, ReaperConfig(cfg), h.logger.Named("reaper")),
	)
	h.logs.AddLog("Configuration reloaded")
	return nil
}

// Shutdown kills the worker, stops the API and releases the state
// directory. Only the first call does anything.
func (h *Host) Shutdown() {
	h.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer cancel()

		report := h.supervisor.Shutdown(ctx)
		h.logger.Info("daemon killed", zap.Int("signalled", report.Total()))

		if h.watcher != nil {
			if err := h.watcher.Stop(); err != nil {
				h.logger.Warn("stopping config watcher", zap.Error(err))
			}
		}
		// Closing the bus ends open event streams so the server can drain
		h.bus.Close()
		if err := h.server.Shutdown(ctx); err != nil {
			h.logger.Warn("API server shutdown", zap.Error(err))
		}
		h.releaseState()
		h.logger.Info("sidecar host stopped")
	})
}

func (h *Host) releaseState() {
	if err := RemoveState(h.opts.Dir); err != nil {
		h.logger.Warn("removing state file", zap.Error(err))
	}
	if err := h.pidFile.Release(); err != nil {
		h.logger.Warn("releasing PID file", zap.Error(err))
	}
}
