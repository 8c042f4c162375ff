// Package ingest turns canonical events into persisted rows and
// notifications. One Process call is one event; callers provide ordering
// by invoking it sequentially per session.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/telegate/telegate/internal/fanout"
	"github.com/telegate/telegate/internal/store"
	"github.com/telegate/telegate/internal/telegram"
)

// Notification kinds emitted by the pipeline.
const (
	NotifyNewMessage     = "new_message"
	NotifyMessageEdited  = "message_edited"
	NotifyMessageDeleted = "message_deleted"
)

// Pipeline persists events and fans out notifications for the rows that
// actually changed. Persistence errors propagate to the caller;
// notification failures never do.
type Pipeline struct {
	store store.Gateway
	pub   fanout.Publisher
}

// New builds a pipeline over the given gateway and publisher.
func New(st store.Gateway, pub fanout.Publisher) *Pipeline {
	return &Pipeline{store: st, pub: pub}
}

// Process handles one canonical event. Duplicate messages are a success
// with no side effects.
func (p *Pipeline) Process(ctx context.Context, ev telegram.IngestedEvent) error {
	switch ev.Kind {
	case telegram.EventNewMessage:
		return p.processNew(ctx, ev)
	case telegram.EventEditedMessage:
		return p.processEdited(ctx, ev)
	case telegram.EventDeletedMessage:
		return p.processDeleted(ctx, ev)
	default:
		return fmt.Errorf("ingest: unknown event kind %q", ev.Kind)
	}
}

func (p *Pipeline) processNew(ctx context.Context, ev telegram.IngestedEvent) error {
	chat, err := p.store.UpsertChat(ctx, ev.Entity, ev.Chat.ProviderID, ev.Chat.Title, ev.Chat.Kind)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	msg, created, err := p.store.UpsertMessage(ctx, chat.RowID, ev.Message)
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if !created {
		// Redelivery of an already stored message. Nothing to notify.
		return nil
	}
	p.notify(ctx, NotifyNewMessage, ev.Entity, chat, msg)
	return nil
}

func (p *Pipeline) processEdited(ctx context.Context, ev telegram.IngestedEvent) error {
	chat, err := p.store.UpsertChat(ctx, ev.Entity, ev.Chat.ProviderID, ev.Chat.Title, ev.Chat.Kind)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	msg, found, err := p.store.MarkEdited(ctx, chat.RowID, ev.Message)
	if err != nil {
		return fmt.Errorf("mark edited: %w", err)
	}
	if !found {
		// Edit for a message we never saw. The original was likely sent
		// before the session started; ignore rather than invent a row.
		log.Printf("[Ingest] edit for unknown message %d in chat %d (%s), skipped",
			ev.Message.ProviderID, ev.Chat.ProviderID, ev.Entity)
		return nil
	}
	p.notify(ctx, NotifyMessageEdited, ev.Entity, chat, msg)
	return nil
}

func (p *Pipeline) processDeleted(ctx context.Context, ev telegram.IngestedEvent) error {
	for _, id := range ev.DeletedIDs {
		msg, found, err := p.store.MarkDeleted(ctx, ev.Entity, id)
		if err != nil {
			return fmt.Errorf("mark deleted %d: %w", id, err)
		}
		if !found {
			continue
		}
		notif := telegram.NotificationEvent{
			Kind:      NotifyMessageDeleted,
			Entity:    ev.Entity,
			ChatRowID: msg.ChatRowID,
			MessageID: msg.MessageID,
			Title:     "Message deleted",
			Content:   msg.Preview(),
		}
		if err := p.pub.Publish(ctx, notif); err != nil {
			log.Printf("[Ingest] notification publish failed (%s): %v", ev.Entity, err)
		}
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, kind string, entity telegram.EntityRef, chat *store.Chat, msg *store.Message) {
	notif := telegram.NotificationEvent{
		Kind:      kind,
		Entity:    entity,
		ChatRowID: chat.RowID,
		ChatID:    chat.ChatID,
		MessageID: msg.MessageID,
		Title:     chat.Title,
		Content:   msg.Preview(),
	}
	if err := p.pub.Publish(ctx, notif); err != nil {
		log.Printf("[Ingest] notification publish failed (%s): %v", entity, err)
	}
}
