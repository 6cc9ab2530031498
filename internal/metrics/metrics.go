// Package metrics exposes the supervisor's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Daemon metrics
	DaemonUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sidecar_daemon_up",
			Help: "Worker daemon status (1=tracked handle, 0=none)",
		},
	)

	DaemonStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_daemon_starts_total",
			Help: "Total number of worker launches",
		},
		[]string{"mode"},
	)

	DaemonStartSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sidecar_daemon_start_skipped_total",
			Help: "Start requests that found a tracked worker and skipped the spawn",
		},
	)

	DaemonTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_daemon_terminations_total",
			Help: "Worker exits observed by the output monitor",
		},
		[]string{"result"}, // result: success, failure
	)

	DependencyInstalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_dependency_installs_total",
			Help: "Simulation dependency install attempts",
		},
		[]string{"result"},
	)

	// Reaper metrics
	ReaperSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sidecar_reaper_sweeps_total",
			Help: "Total number of cleanup sweeps",
		},
	)

	ReaperSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_reaper_signals_total",
			Help: "Signals delivered by the reaper",
		},
		[]string{"method", "signal"}, // method: port, signature
	)

	ReaperSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sidecar_reaper_sweep_duration_seconds",
			Help:    "Cleanup sweep duration in seconds",
			Buckets: []float64{0.1, 0.5, 0.8, 1.0, 2.0, 5.0},
		},
	)

	// Event metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_events_published_total",
			Help: "Events published on the event bus",
		},
		[]string{"channel"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sidecar_events_dropped_total",
			Help: "Events dropped because a subscriber was not keeping up",
		},
	)
)

// Handler returns the Prometheus exposition handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetDaemonUp records whether a worker handle is tracked
func SetDaemonUp(up bool) {
	if up {
		DaemonUp.Set(1)
		return
	}
	DaemonUp.Set(0)
}
