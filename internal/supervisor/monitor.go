package supervisor

import (
	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/events"
	"github.com/charliek/sidecar/internal/metrics"
)

// OutputMonitor relays a child's event stream to the event sink. A monitor
// without a label watches the primary worker and reports its termination on
// the terminated channel. Labeled monitors watch auxiliary tasks and prefix
// every line with "[label] ".
type OutputMonitor struct {
	label  string
	sink   events.Sink
	logger *zap.Logger
}

// NewOutputMonitor creates a monitor. An empty label marks the primary worker.
func NewOutputMonitor(label string, sink events.Sink, logger *zap.Logger) *OutputMonitor {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutputMonitor{
		label:  label,
		sink:   sink,
		logger: logger,
	}
}

// Watch drains stream in a new goroutine. The returned channel closes when
// the stream does.
func (m *OutputMonitor) Watch(stream <-chan CommandEvent) <-chan struct{} {
	done := make(chan struct{})

	if m.label != "" {
		m.logger.Debug("starting sidecar output monitoring", zap.String("label", m.label))
	} else {
		m.logger.Debug("starting sidecar output monitoring")
	}

	go func() {
		defer close(done)
		for ev := range stream {
			m.handle(ev)
		}
	}()

	return done
}

func (m *OutputMonitor) handle(ev CommandEvent) {
	switch ev.Kind {
	case EventStdout:
		line := m.prefix(ev.Line)
		m.logger.Info("sidecar stdout: " + line)
		m.sink.Publish(constants.ChannelStdout, line)

	case EventStderr:
		line := m.prefix(ev.Line)
		m.logger.Warn("sidecar stderr: " + line)
		m.sink.Publish(constants.ChannelStderr, line)

	case EventTerminated:
		status := ev.Status.String()
		if m.label != "" {
			m.logger.Info("process terminated",
				zap.String("label", m.label),
				zap.String("status", status))
			return
		}

		m.logger.Info("sidecar process terminated", zap.String("status", status))
		result := "failure"
		if ev.Status.Success() {
			result = "success"
		}
		metrics.DaemonTerminations.WithLabelValues(result).Inc()
		m.sink.Publish(constants.ChannelTerminated, status)
	}
}

func (m *OutputMonitor) prefix(line string) string {
	if m.label == "" {
		return line
	}
	return "[" + m.label + "] " + line
}
