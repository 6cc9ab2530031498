// Package events carries named-channel notifications from the supervisor to
// whatever is listening: the SSE endpoint, the terminal monitor, tests.
package events

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/metrics"
)

// Sink receives published events. Implementations must be safe for
// concurrent publishers and must never block the caller for long.
type Sink interface {
	Publish(channel, payload string)
}

// NopSink discards everything
type NopSink struct{}

// Publish implements Sink
func (NopSink) Publish(string, string) {}

var subscriptionIDCounter uint64

// Subscription represents an event subscriber
type Subscription struct {
	id       string
	ch       chan domain.Event
	channels map[string]bool // empty = all channels
	closed   atomic.Bool
}

func newSubscription(channels []string, bufferSize int) *Subscription {
	id := atomic.AddUint64(&subscriptionIDCounter, 1)

	set := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c != "" {
			set[c] = true
		}
	}

	return &Subscription{
		id:       "sub-" + strconv.FormatUint(id, 10),
		ch:       make(chan domain.Event, bufferSize),
		channels: set,
	}
}

// ID returns the subscription ID
func (s *Subscription) ID() string {
	return s.id
}

// Matches reports whether the subscription wants events on channel
func (s *Subscription) Matches(channel string) bool {
	return len(s.channels) == 0 || s.channels[channel]
}

// send attempts a non-blocking delivery. Returns false if the event was dropped.
func (s *Subscription) send(ev domain.Event) bool {
	if s.closed.Load() || !s.Matches(ev.Channel) {
		return true
	}

	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Bus fans published events out to subscribers. A slow subscriber loses
// events rather than stalling the publisher.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	bufferSize    int
	closed        bool
	logger        *zap.Logger
}

// NewBus creates a new event bus
func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultSubscriptionBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
		logger:        logger,
	}
}

// Publish implements Sink
func (b *Bus) Publish(channel, payload string) {
	ev := domain.Event{Channel: channel, Payload: payload, Time: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	metrics.EventsPublished.WithLabelValues(channel).Inc()

	for _, sub := range b.subscriptions {
		if !sub.send(ev) {
			metrics.EventsDropped.Inc()
			b.logger.Debug("dropped event for slow subscriber",
				zap.String("subscription", sub.id),
				zap.String("channel", channel))
		}
	}
}

// Subscribe registers a subscriber for the given channels, or all channels
// when none are given. The returned channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe(channels ...string) (string, <-chan domain.Event) {
	sub := newSubscription(channels, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub.id, sub.ch
	}
	b.subscriptions[sub.id] = sub
	return sub.id, sub.ch
}

// Unsubscribe removes a subscription
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscriptions[id]
	if ok {
		delete(b.subscriptions, id)
	}
	b.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Count returns the number of active subscriptions
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close closes all subscriptions. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
