package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/events"
	"github.com/charliek/sidecar/internal/logs"
	"github.com/charliek/sidecar/internal/metrics"
	"github.com/charliek/sidecar/internal/reaper"
)

// Sweeper terminates stray worker instances. protect lists PIDs whose
// process trees must survive the sweep.
type Sweeper interface {
	Sweep(ctx context.Context, protect ...int) reaper.Report
}

// Config holds the worker launch settings. It is read once per start, so a
// reload only affects the next launch.
type Config struct {
	// Trampoline is the launcher executable the worker runs through
	Trampoline string
	// Dir is the working directory for spawned children
	Dir string
	// Module is the python module run with -m
	Module string
	// Args follow the module on every launch
	Args []string
	// SimArgs are appended in simulation mode
	SimArgs []string
	// Env is added to the inherited environment
	Env map[string]string
	// SimulationPackages are installed before a simulation start
	SimulationPackages []string
	// InstallWait is how long the install step waits before returning
	InstallWait time.Duration
	// SimulationSettle is the wait between the install step and the sweep
	SimulationSettle time.Duration
	// GOOS selects the interpreter path layout
	GOOS string
}

// DefaultConfig returns the launch settings for the bundled worker
func DefaultConfig() Config {
	return Config{
		Trampoline:         constants.DefaultTrampolineName,
		Module:             constants.DefaultWorkerModule,
		Args:               append([]string{}, constants.DefaultWorkerArgs...),
		SimArgs:            append([]string{}, constants.DefaultSimulationArgs...),
		SimulationPackages: append([]string{}, constants.DefaultSimulationPackages...),
		InstallWait:        constants.DefaultInstallWait,
		SimulationSettle:   constants.DefaultSimulationSettle,
		GOOS:               runtime.GOOS,
	}
}

// Python returns the interpreter path, relative to the runtime folder, used
// to launch the worker in mode
func (c Config) Python(mode domain.DaemonMode) string {
	switch {
	case c.GOOS == "windows":
		return filepath.Join(".venv", "Scripts", "python.exe")
	case c.GOOS == "darwin" && mode.IsSimulation():
		return filepath.Join(".venv", "bin", "mjpython")
	default:
		return filepath.Join(".venv", "bin", "python3")
	}
}

// LaunchSpec builds the trampoline invocation for mode
func (c Config) LaunchSpec(mode domain.DaemonMode) domain.LaunchSpec {
	args := []string{c.Python(mode), "-m", c.Module}
	args = append(args, c.Args...)
	if mode.IsSimulation() {
		args = append(args, c.SimArgs...)
	}
	return domain.LaunchSpec{
		Executable: c.Trampoline,
		Args:       args,
		Env:        copyEnv(c.Env),
		Dir:        c.Dir,
	}
}

// InstallSpec builds the trampoline invocation that installs the simulation
// dependencies into the worker's environment
func (c Config) InstallSpec() domain.LaunchSpec {
	args := append([]string{"pip", "install"}, c.SimulationPackages...)
	return domain.LaunchSpec{
		Executable: c.Trampoline,
		Args:       args,
		Env:        copyEnv(c.Env),
		Dir:        c.Dir,
	}
}

func copyEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// Options wires a Supervisor's collaborators
type Options struct {
	Config  Config
	Runner  ProcessRunner
	Sweeper Sweeper
	Logs    *logs.Manager
	Sink    events.Sink
	Logger  *zap.Logger
}

// StartResult describes what a start request did
type StartResult struct {
	PID     int
	Mode    domain.DaemonMode
	Skipped bool // a tracked worker was already running
}

// Supervisor owns the single worker slot. The slot lock is held only to
// read or swap the handle, never across a spawn or a sweep.
type Supervisor struct {
	mu     sync.Mutex
	handle *ProcessHandle
	mode   domain.DaemonMode

	cfgMu   sync.RWMutex
	config  Config
	sweeper Sweeper

	// startMu serializes start requests only
	startMu   sync.Mutex
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once

	runner ProcessRunner
	logs   *logs.Manager
	sink   events.Sink
	logger *zap.Logger
}

// New creates a supervisor
func New(opts Options) *Supervisor {
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	if opts.Sink == nil {
		opts.Sink = events.NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Logs == nil {
		opts.Logs = logs.NewManager(logs.ManagerConfig{Sink: opts.Sink, Logger: opts.Logger})
	}
	if opts.Sweeper == nil {
		opts.Sweeper = reaper.New(reaper.NewSystemTable(), reaper.DefaultConfig(), opts.Logger)
	}

	return &Supervisor{
		config:  opts.Config,
		sweeper: opts.Sweeper,
		runner:  opts.Runner,
		logs:    opts.Logs,
		sink:    opts.Sink,
		logger:  opts.Logger,
		closed:  make(chan struct{}),
	}
}

// Reconfigure swaps the launch settings and sweeper used by later requests.
// A running worker is left alone.
func (s *Supervisor) Reconfigure(cfg Config, sweeper Sweeper) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.config = cfg
	if sweeper != nil {
		s.sweeper = sweeper
	}
	s.logger.Info("supervisor configuration updated")
}

func (s *Supervisor) current() (Config, Sweeper) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.config, s.sweeper
}

// Start launches the worker in mode. When a worker is already tracked the
// request succeeds without spawning a second one.
func (s *Supervisor) Start(ctx context.Context, mode domain.DaemonMode) (StartResult, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.closing.Load() {
		return StartResult{}, domain.ErrShutdownInProgress
	}
	ctx, cancel := s.withShutdown(ctx)
	defer cancel()

	cfg, sweeper := s.current()
	result := StartResult{Mode: mode}

	if mode.IsSimulation() {
		s.logs.AddLog("Installing simulation dependencies...")
		if err := s.installSimulationDeps(ctx, cfg); err != nil {
			s.logs.AddLog(fmt.Sprintf("Simulation dependency install warning: %v", err))
			s.logger.Warn("continuing without simulation dependencies", zap.Error(err))
		} else {
			s.logs.AddLog("Simulation dependency install started, waiting...")
			wait(ctx, cfg.SimulationSettle)
		}
	}

	if mode.IsSimulation() {
		s.logs.AddLog("Cleaning up existing daemons (simulation mode)...")
	} else {
		s.logs.AddLog("Cleaning up existing daemons...")
	}

	tracked := s.tracked()
	var protect []int
	if tracked != nil {
		protect = append(protect, tracked.PID())
	}
	sweeper.Sweep(ctx, protect...)

	if h := s.tracked(); h != nil {
		s.logger.Info("sidecar is already running, skipping spawn", zap.Int("pid", h.PID()))
		metrics.DaemonStartSkipped.Inc()
		result.PID = h.PID()
		result.Skipped = true
		return result, nil
	}

	spec := cfg.LaunchSpec(mode)
	if mode.IsSimulation() {
		s.logger.Info("launching daemon in simulation mode", zap.String("python", cfg.Python(mode)))
	}
	s.logger.Debug("spawning sidecar", zap.String("command", spec.String()))

	h, err := Spawn(ctx, s.runner, spec)
	if err != nil {
		if s.closing.Load() {
			return result, domain.ErrShutdownInProgress
		}
		s.logs.AddLog(fmt.Sprintf("Failed to start daemon: %v", err))
		return result, err
	}
	NewOutputMonitor("", s.sink, s.logger).Watch(h.Events())

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		s.discard(ctx, h, sweeper)
		return result, domain.ErrShutdownInProgress
	}
	s.handle = h
	s.mode = mode
	s.mu.Unlock()
	metrics.DaemonStarts.WithLabelValues(string(mode)).Inc()
	metrics.SetDaemonUp(true)
	go s.release(h)

	if mode.IsSimulation() {
		s.logs.AddLog("Daemon started in simulation mode via embedded sidecar")
	} else {
		s.logs.AddLog("Daemon started via embedded sidecar")
	}

	result.PID = h.PID()
	return result, nil
}

// Stop drops the tracked worker, asking it to terminate, and sweeps so no
// instance survives at the OS level.
func (s *Supervisor) Stop(ctx context.Context) reaper.Report {
	report := s.kill(ctx)
	s.logs.AddLog("Daemon stopped")
	return report
}

// Shutdown runs the kill path for a host that is going away. It does not
// wait for an in-flight start: that start's waits are cut short and a worker
// it spawns is discarded. Later start requests fail with ErrShutdownInProgress.
func (s *Supervisor) Shutdown(ctx context.Context) reaper.Report {
	s.closing.Store(true)
	s.closeOnce.Do(func() { close(s.closed) })
	s.logger.Info("host shutting down, killing daemon")
	return s.Stop(ctx)
}

// withShutdown derives a context that is also cancelled by Shutdown
func (s *Supervisor) withShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// discard terminates a worker spawned after shutdown began
func (s *Supervisor) discard(ctx context.Context, h *ProcessHandle, sweeper Sweeper) {
	s.logger.Info("shutdown began during start, discarding new daemon", zap.Int("pid", h.PID()))
	if err := h.Terminate(); err != nil {
		s.logger.Warn("failed to terminate sidecar", zap.Int("pid", h.PID()), zap.Error(err))
	}
	sweeper.Sweep(context.WithoutCancel(ctx))
}

func (s *Supervisor) kill(ctx context.Context) reaper.Report {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	metrics.SetDaemonUp(false)

	if h != nil {
		if err := h.Terminate(); err != nil {
			s.logger.Warn("failed to terminate sidecar", zap.Int("pid", h.PID()), zap.Error(err))
		}
	}

	_, sweeper := s.current()
	return sweeper.Sweep(ctx)
}

// Sweep runs the reaper once, sparing the tracked worker
func (s *Supervisor) Sweep(ctx context.Context) reaper.Report {
	_, sweeper := s.current()
	if h := s.tracked(); h != nil {
		return sweeper.Sweep(ctx, h.PID())
	}
	return sweeper.Sweep(ctx)
}

// InstallSimulationDeps starts the simulation dependency install and returns
// once the startup wait has elapsed. The install keeps running afterwards.
func (s *Supervisor) InstallSimulationDeps(ctx context.Context) error {
	cfg, _ := s.current()
	return s.installSimulationDeps(ctx, cfg)
}

func (s *Supervisor) installSimulationDeps(ctx context.Context, cfg Config) error {
	spec := cfg.InstallSpec()
	s.logger.Info("installing simulation dependencies", zap.Strings("packages", cfg.SimulationPackages))

	h, err := Spawn(ctx, s.runner, spec)
	if err != nil {
		metrics.DependencyInstalls.WithLabelValues("failure").Inc()
		return fmt.Errorf("%w: %v", domain.ErrInstallFailed, err)
	}
	NewOutputMonitor(constants.InstallLabel, s.sink, s.logger).Watch(h.Events())
	metrics.DependencyInstalls.WithLabelValues("started").Inc()

	wait(ctx, cfg.InstallWait)
	return nil
}

// Logs returns a snapshot of the supervisor log
func (s *Supervisor) Logs() []string {
	return s.logs.Snapshot()
}

// LogManager returns the supervisor log
func (s *Supervisor) LogManager() *logs.Manager {
	return s.logs
}

// Status reports the tracked worker
func (s *Supervisor) Status() domain.DaemonStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil || !s.handle.IsRunning() {
		return domain.DaemonStatus{}
	}
	return domain.DaemonStatus{
		Running:   true,
		PID:       s.handle.PID(),
		Mode:      s.mode,
		StartedAt: s.handle.StartedAt(),
	}
}

// tracked returns the live handle, clearing a slot whose child has exited
func (s *Supervisor) tracked() *ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil && !s.handle.IsRunning() {
		s.handle = nil
		metrics.SetDaemonUp(false)
	}
	return s.handle
}

// release clears the slot once h exits, unless it was already replaced
func (s *Supervisor) release(h *ProcessHandle) {
	<-h.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h {
		s.handle = nil
		metrics.SetDaemonUp(false)
	}
}

// wait sleeps for d or until ctx is done
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
