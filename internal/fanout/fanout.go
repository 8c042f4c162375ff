// Package fanout publishes notifications derived from successfully
// persisted rows. Delivery is at-least-once effort: a publish failure is
// logged and swallowed, never propagated back into the ingestion path.
package fanout

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telegate/telegate/internal/telegram"
)

// Publisher delivers notification events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev telegram.NotificationEvent) error
	Close() error
}

// Stamp fills the generated fields of an event before publishing.
func Stamp(ev *telegram.NotificationEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
}

// Bus is the in-process publisher: a buffered queue drained by one
// dispatch loop that invokes subscriber callbacks in order.
type Bus struct {
	queue chan telegram.NotificationEvent

	mu          sync.RWMutex
	subscribers []func(telegram.NotificationEvent)
	closed      bool
}

// NewBus creates a bus with a buffered queue.
func NewBus() *Bus {
	return &Bus{queue: make(chan telegram.NotificationEvent, 100)}
}

// Subscribe registers a callback for every published event.
func (b *Bus) Subscribe(callback func(telegram.NotificationEvent)) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, callback)
	b.mu.Unlock()
}

// Publish enqueues an event. A full queue drops the event with a log
// line rather than blocking an ingestion loop.
func (b *Bus) Publish(_ context.Context, ev telegram.NotificationEvent) error {
	Stamp(&ev)
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}
	select {
	case b.queue <- ev:
	default:
		log.Printf("[Fanout] queue full, dropping %s notification for %s", ev.Kind, ev.Entity)
	}
	return nil
}

// Dispatch runs the delivery loop. Blocks until ctx is cancelled.
func (b *Bus) Dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.mu.RLock()
			subs := make([]func(telegram.NotificationEvent), len(b.subscribers))
			copy(subs, b.subscribers)
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(ev)
			}
		}
	}
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Close marks the bus closed; later publishes become no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Multi fans one publish out to several publishers. Individual failures
// are logged; the first error is returned for observability only.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev telegram.NotificationEvent) error {
	Stamp(&ev)
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			log.Printf("[Fanout] publish failed: %v", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
