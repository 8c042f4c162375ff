package store

import (
	"context"
	"fmt"

	"github.com/telegate/telegate/internal/telegram"
)

// Pooled wraps a Gateway with a bounded worker pool so blocking storage
// calls never stall session ingestion loops: at most `workers` calls run
// concurrently, the rest queue on the semaphore or give up with the
// caller's context.
type Pooled struct {
	inner Gateway
	sem   chan struct{}
}

// NewPooled builds the pool wrapper. workers <= 0 defaults to 8.
func NewPooled(inner Gateway, workers int) *Pooled {
	if workers <= 0 {
		workers = 8
	}
	return &Pooled{inner: inner, sem: make(chan struct{}, workers)}
}

func (p *Pooled) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("store pool: %w", ctx.Err())
	}
}

func (p *Pooled) release() { <-p.sem }

func (p *Pooled) CreateEntity(ctx context.Context, e *Entity) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	return p.inner.CreateEntity(ctx, e)
}

func (p *Pooled) GetEntity(ctx context.Context, ref telegram.EntityRef) (*Entity, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.inner.GetEntity(ctx, ref)
}

func (p *Pooled) ListEntities(ctx context.Context) ([]Entity, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.inner.ListEntities(ctx)
}

func (p *Pooled) UpdateEntityStatus(ctx context.Context, ref telegram.EntityRef, status string) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	return p.inner.UpdateEntityStatus(ctx, ref, status)
}

func (p *Pooled) UpdateEntitySession(ctx context.Context, ref telegram.EntityRef, sessionEnc string) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	return p.inner.UpdateEntitySession(ctx, ref, sessionEnc)
}

func (p *Pooled) UpsertChat(ctx context.Context, entity telegram.EntityRef, chatID int64, title, kind string) (*Chat, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.inner.UpsertChat(ctx, entity, chatID, title, kind)
}

func (p *Pooled) UpsertMessage(ctx context.Context, chatRowID int64, info telegram.MessageInfo) (*Message, bool, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer p.release()
	return p.inner.UpsertMessage(ctx, chatRowID, info)
}

func (p *Pooled) MarkEdited(ctx context.Context, chatRowID int64, info telegram.MessageInfo) (*Message, bool, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer p.release()
	return p.inner.MarkEdited(ctx, chatRowID, info)
}

func (p *Pooled) MarkDeleted(ctx context.Context, entity telegram.EntityRef, messageID int64) (*Message, bool, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer p.release()
	return p.inner.MarkDeleted(ctx, entity, messageID)
}

func (p *Pooled) GetMessages(ctx context.Context, chatRowID int64, limit int) ([]Message, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.inner.GetMessages(ctx, chatRowID, limit)
}

func (p *Pooled) CountMessages(ctx context.Context, chatRowID int64) (int, error) {
	if err := p.acquire(ctx); err != nil {
		return 0, err
	}
	defer p.release()
	return p.inner.CountMessages(ctx, chatRowID)
}

func (p *Pooled) Close() error {
	return p.inner.Close()
}
