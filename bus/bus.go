// Package bus implements the optional observability fan-out used by the
// tool pipeline and agent core to publish lifecycle events
// (agent.action.start, agent.tool.completed, agent.tool.error, ...) to
// interested subscribers. Emission is always best-effort: a subscriber
// error is logged and never propagated back to the caller driving the
// action.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/agentrt/runtime/internal/telemetry"
)

// Event is one fan-out notification.
type Event struct {
	Type          string
	Data          any
	CorrelationID string
	Timestamp     time.Time
}

// Subscriber reacts to published events.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a function to a Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription represents an active registration; Close is idempotent.
type Subscription interface {
	Close() error
}

// Bus publishes events to every registered subscriber, synchronously; the
// order among subscribers is not defined. Unlike a fail-fast hook bus, a subscriber error
// never halts delivery to the remaining subscribers or surfaces to the
// publisher: this bus backs best-effort lifecycle observability, not
// critical-path persistence.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
	logger      telemetry.Logger
}

type subscription struct {
	bus  *Bus
	once sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}

// New constructs an in-memory Bus. logger may be nil, in which case a
// no-op logger is used.
func New(logger telemetry.Logger) *Bus {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Bus{subscribers: make(map[*subscription]Subscriber), logger: logger}
}

// Register adds sub and returns a Subscription that unregisters it on
// Close.
func (b *Bus) Register(sub Subscriber) Subscription {
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s
}

// Emit publishes event.Type/data tagged with correlationID to every
// subscriber. Errors are logged, never returned: tool and agent call
// sites must never fail because observability failed.
func (b *Bus) Emit(ctx context.Context, eventType string, data any, correlationID string) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	event := Event{Type: eventType, Data: data, CorrelationID: correlationID, Timestamp: time.Now()}
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			b.logger.Warn(ctx, "bus subscriber failed", "eventType", eventType, "correlationId", correlationID, "error", err.Error())
		}
	}
}
