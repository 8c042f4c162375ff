package transport

import (
	"context"
	"fmt"
	"log"

	"github.com/telegate/telegate/internal/provider"
	"github.com/telegate/telegate/internal/telegram"
)

// CursorStore persists the last acknowledged stream sequence so a
// restarted session resumes instead of replaying. The Redis cache
// implements it; a disabled cache degrades to cursor 0.
type CursorStore interface {
	Cursor(ctx context.Context, entity telegram.EntityRef) int64
	SetCursor(ctx context.Context, entity telegram.EntityRef, seq int64)
}

// Pull is the stream-fed adapter for account sessions. It holds one
// long-lived connection to the bridge and drains frames in order.
type Pull struct {
	entity    telegram.EntityRef
	bridgeURL string
	session   string // decrypted MTProto session string
	sink      Sink
	cursors   CursorStore
}

// NewPull builds the adapter. The session string must already be
// decrypted; the adapter never touches the vault.
func NewPull(entity telegram.EntityRef, bridgeURL, session string, sink Sink, cursors CursorStore) *Pull {
	return &Pull{
		entity:    entity,
		bridgeURL: bridgeURL,
		session:   session,
		sink:      sink,
		cursors:   cursors,
	}
}

// Run dials the bridge and consumes frames until the context is
// cancelled (nil) or the connection drops (error). There is no automatic
// reconnect; a dropped stream surfaces as a session error and stays
// there until an explicit restart.
func (p *Pull) Run(ctx context.Context) error {
	cursor := p.cursors.Cursor(ctx, p.entity)
	stream, err := provider.DialStream(ctx, p.bridgeURL, p.session, cursor)
	if err != nil {
		return fmt.Errorf("pull %s: %w", p.entity, err)
	}
	defer stream.Close()
	log.Printf("[Pull] %s: stream open, resuming from seq %d", p.entity, cursor)

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-watchDone:
		}
	}()

	for {
		frame, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if provider.IsClosedByPeer(err) {
				return fmt.Errorf("pull %s: %w", p.entity, provider.ErrStreamClosed)
			}
			return fmt.Errorf("pull %s: stream read: %w", p.entity, err)
		}

		ev, ok := telegram.NormalizeFrame(p.entity, frame)
		if ok {
			if err := p.sink.Process(ctx, ev); err != nil {
				log.Printf("[Pull] %s: persist failed for frame seq %d: %v", p.entity, frame.Seq, err)
			}
		}
		// The frame is consumed either way; advance past it.
		if frame.Seq > 0 {
			p.cursors.SetCursor(ctx, p.entity, frame.Seq)
		}
	}
}

// Transport reports the pull transport.
func (p *Pull) Transport() telegram.Transport {
	return telegram.TransportPull
}
