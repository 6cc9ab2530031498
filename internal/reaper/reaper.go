// Package reaper guarantees that no stray worker instance survives: it kills
// whatever listens on the worker port and whatever runs the worker entry
// point, no matter which process started it.
package reaper

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/metrics"
)

// maxAncestry bounds the parent walk used to recognise protected descendants
const maxAncestry = 64

// Config controls a sweep
type Config struct {
	Port      int
	Signature string
	Grace     time.Duration // between the graceful and forceful port passes
	Settle    time.Duration // after the signature pass
}

// DefaultConfig returns the default sweep configuration
func DefaultConfig() Config {
	return Config{
		Port:      constants.DefaultWorkerPort,
		Signature: constants.DefaultWorkerSignature,
		Grace:     constants.DefaultReaperGrace,
		Settle:    constants.DefaultReaperSettle,
	}
}

// Report lists the PIDs each pass signalled. It is informational only: a
// sweep has no failure result.
type Report struct {
	Terminated      []int         `json:"terminated"`
	KilledOnPort    []int         `json:"killed_on_port"`
	KilledSignature []int         `json:"killed_signature"`
	Duration        time.Duration `json:"duration"`
}

// Total returns the number of signals delivered
func (r Report) Total() int {
	return len(r.Terminated) + len(r.KilledOnPort) + len(r.KilledSignature)
}

// Reaper performs cleanup sweeps
type Reaper struct {
	table  ProcessTable
	config Config
	logger *zap.Logger
	self   int
}

// New creates a reaper. Zero config fields take their defaults.
func New(table ProcessTable, config Config, logger *zap.Logger) *Reaper {
	defaults := DefaultConfig()
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.Signature == "" {
		config.Signature = defaults.Signature
	}
	if config.Grace < 0 {
		config.Grace = 0
	}
	if config.Settle < 0 {
		config.Settle = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		table:  table,
		config: config,
		logger: logger,
		self:   os.Getpid(),
	}
}

// Config returns the active sweep configuration
func (r *Reaper) Config() Config {
	return r.config
}

// Sweep terminates stray workers:
//  1. SIGTERM every listener on the worker port
//  2. wait Grace, if pass 1 signalled anything
//  3. SIGKILL every listener still on the port
//  4. SIGKILL every process whose command line contains the signature
//  5. wait Settle, if any pass signalled anything
//
// The calling process, each protected PID and their descendants are skipped.
// Every failure is logged and swallowed. A cancelled ctx only cuts the waits
// short; the kill passes still run.
func (r *Reaper) Sweep(ctx context.Context, protect ...int) Report {
	start := time.Now()
	metrics.ReaperSweeps.Inc()

	skip := r.newGuard(protect)
	var report Report

	// Pass 1: graceful on the port
	for _, pid := range r.portTargets(ctx, skip) {
		if err := r.table.Terminate(ctx, pid); err != nil {
			r.logger.Debug("port terminate failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		metrics.ReaperSignals.WithLabelValues("port", "SIGTERM").Inc()
		report.Terminated = append(report.Terminated, pid)
	}

	if len(report.Terminated) > 0 {
		sleep(ctx, r.config.Grace)
	}

	// Pass 2: forceful on whatever still holds the port
	for _, pid := range r.portTargets(ctx, skip) {
		if err := r.table.Kill(ctx, pid); err != nil {
			r.logger.Debug("port kill failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		metrics.ReaperSignals.WithLabelValues("port", "SIGKILL").Inc()
		report.KilledOnPort = append(report.KilledOnPort, pid)
	}

	// Pass 3: signature match, covering workers that have not bound the port yet
	pids, err := r.table.MatchingPIDs(ctx, r.config.Signature)
	if err != nil {
		r.logger.Warn("process scan failed", zap.String("signature", r.config.Signature), zap.Error(err))
	}
	for _, pid := range pids {
		if skip(ctx, pid) {
			continue
		}
		if err := r.table.Kill(ctx, pid); err != nil {
			r.logger.Debug("signature kill failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		metrics.ReaperSignals.WithLabelValues("signature", "SIGKILL").Inc()
		report.KilledSignature = append(report.KilledSignature, pid)
	}

	if report.Total() > 0 {
		sleep(ctx, r.config.Settle)
	}

	report.Duration = time.Since(start)
	metrics.ReaperSweepDuration.Observe(report.Duration.Seconds())

	if report.Total() > 0 {
		r.logger.Info("sweep complete",
			zap.Ints("terminated", report.Terminated),
			zap.Ints("killed_on_port", report.KilledOnPort),
			zap.Ints("killed_signature", report.KilledSignature),
			zap.Duration("duration", report.Duration))
	} else {
		r.logger.Debug("sweep found nothing to reap")
	}

	return report
}

func (r *Reaper) portTargets(ctx context.Context, skip func(context.Context, int) bool) []int {
	pids, err := r.table.ListeningPIDs(ctx, r.config.Port)
	if err != nil {
		r.logger.Warn("port lookup failed", zap.Int("port", r.config.Port), zap.Error(err))
		return nil
	}
	targets := pids[:0:0]
	for _, pid := range pids {
		if !skip(ctx, pid) {
			targets = append(targets, pid)
		}
	}
	return targets
}

// newGuard returns a predicate reporting whether pid must survive the sweep
func (r *Reaper) newGuard(protect []int) func(context.Context, int) bool {
	roots := map[int]bool{r.self: true}
	for _, pid := range protect {
		if pid > 0 {
			roots[pid] = true
		}
	}
	onlySelf := len(roots) == 1

	return func(ctx context.Context, pid int) bool {
		if pid <= 0 || roots[pid] {
			return true
		}
		if onlySelf {
			return false
		}
		cur := pid
		for i := 0; i < maxAncestry; i++ {
			ppid, err := r.table.ParentPID(ctx, cur)
			if err != nil || ppid <= 1 || ppid == cur {
				return false
			}
			if roots[ppid] && ppid != r.self {
				return true
			}
			cur = ppid
		}
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
