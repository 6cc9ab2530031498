package logs

import (
	"sync"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

// RingBuffer is a fixed-size circular buffer for log entries. Once full,
// each write evicts the oldest entry.
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []domain.LogEntry
	head     int // next write position
	count    int // current number of entries
	capacity int // max entries
}

// NewRingBuffer creates a new ring buffer with the given capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = constants.DefaultLogCapacity
	}
	return &RingBuffer{
		entries:  make([]domain.LogEntry, capacity),
		capacity: capacity,
	}
}

// Write adds a new entry to the buffer
func (b *RingBuffer) Write(entry domain.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity

	if b.count < b.capacity {
		b.count++
	}
}

// Read returns a copy of all entries in insertion order
func (b *RingBuffer) Read() []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lastLocked(b.count)
}

// ReadLast returns the last n entries in insertion order
func (b *RingBuffer) ReadLast(n int) []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	return b.lastLocked(n)
}

func (b *RingBuffer) lastLocked(n int) []domain.LogEntry {
	if n <= 0 {
		return []domain.LogEntry{}
	}

	result := make([]domain.LogEntry, n)
	// head is one past the newest entry, so the oldest of the last n sits n slots back
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// Count returns the current number of entries in the buffer
func (b *RingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns the maximum capacity of the buffer
func (b *RingBuffer) Capacity() int {
	return b.capacity
}

// Clear removes all entries from the buffer
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
