package logs

import (
	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/events"
)

// ManagerConfig holds configuration for the log manager
type ManagerConfig struct {
	Capacity int         // Number of entries kept in memory
	Sink     events.Sink // Mirror of every entry on the host-log channel, optional
	Logger   *zap.Logger // Mirror of every entry to the process log, optional
}

// Manager is the supervisor's bounded diagnostic log. Entries are kept in
// memory for Snapshot and mirrored to the sink and logger as they arrive.
type Manager struct {
	buffer *RingBuffer
	sink   events.Sink
	logger *zap.Logger
}

// NewManager creates a new log manager
func NewManager(config ManagerConfig) *Manager {
	if config.Capacity <= 0 {
		config.Capacity = constants.DefaultLogCapacity
	}
	if config.Sink == nil {
		config.Sink = events.NopSink{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Manager{
		buffer: NewRingBuffer(config.Capacity),
		sink:   config.Sink,
		logger: config.Logger,
	}
}

// AddLog stamps message, stores it and evicts the oldest entry past capacity
func (m *Manager) AddLog(message string) {
	entry := domain.NewLogEntry(message)
	m.buffer.Write(entry)
	m.sink.Publish(constants.ChannelHostLog, entry.String())
	m.logger.Info(message)
}

// Entries returns a copy of the stored entries in insertion order
func (m *Manager) Entries() []domain.LogEntry {
	return m.buffer.Read()
}

// Snapshot returns the stored entries in wire form ("<unix_millis>|<message>")
func (m *Manager) Snapshot() []string {
	entries := m.buffer.Read()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}

// Count returns the number of stored entries
func (m *Manager) Count() int {
	return m.buffer.Count()
}

// Capacity returns the maximum number of stored entries
func (m *Manager) Capacity() int {
	return m.buffer.Capacity()
}

// Clear discards all stored entries
func (m *Manager) Clear() {
	m.buffer.Clear()
}
