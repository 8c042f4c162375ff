package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/telegate/telegate/internal/telegram"
)

const webhookSecretLen = 32

// WebhookSecret derives the per-bot webhook path secret. Deterministic,
// so the path survives restarts without extra state.
func WebhookSecret(botID int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("bot_%d_webhook", botID)))
	return hex.EncodeToString(sum[:])[:webhookSecretLen]
}

// Push is the webhook-fed adapter for bot sessions. The HTTP handler
// calls Deliver to hand over raw updates; Run drains the queue in order.
type Push struct {
	entity  telegram.EntityRef
	sink    Sink
	updates chan *telegram.Update
}

// NewPush builds the adapter with a bounded delivery queue.
func NewPush(entity telegram.EntityRef, sink Sink, queueSize int) *Push {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Push{
		entity:  entity,
		sink:    sink,
		updates: make(chan *telegram.Update, queueSize),
	}
}

// Deliver enqueues a raw update from the webhook handler. A full queue
// drops the update with a log line; the provider redelivers on its own
// schedule when the response is slow, never when it is a fast 200.
func (p *Push) Deliver(upd *telegram.Update) bool {
	select {
	case p.updates <- upd:
		return true
	default:
		log.Printf("[Push] %s: queue full, dropping update %d", p.entity, upd.UpdateID)
		return false
	}
}

// Run drains the queue until the context is cancelled. Persistence
// failures are logged and the update dropped; the loop keeps going.
func (p *Push) Run(ctx context.Context) error {
	var seq int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd := <-p.updates:
			seq++
			ev, ok := telegram.NormalizeUpdate(p.entity, seq, upd)
			if !ok {
				continue
			}
			if err := p.sink.Process(ctx, ev); err != nil {
				log.Printf("[Push] %s: persist failed for update %d: %v", p.entity, upd.UpdateID, err)
			}
		}
	}
}

// Transport reports the push transport.
func (p *Push) Transport() telegram.Transport {
	return telegram.TransportPush
}

// Pending returns the number of queued updates.
func (p *Push) Pending() int {
	return len(p.updates)
}
