// Package store is the persistence gateway. The ingestion path depends
// only on the Gateway interface; the SQLite implementation and the
// bounded worker pool live behind it.
package store

import (
	"context"
	"time"

	"github.com/telegate/telegate/internal/telegram"
)

// Entity is a stored credential-bearing principal.
type Entity struct {
	Ref           telegram.EntityRef
	Username      string
	Phone         string
	CredentialEnc string // vault ciphertext: bot token or api_id:api_hash
	SessionEnc    string // encrypted MTProto session string (accounts only)
	Status        string // persisted mirror of the runtime status
	LastSeen      time.Time
	CreatedAt     time.Time
}

// Chat is one stored conversation, created lazily on first observed
// event. Natural key: (entity kind, entity id, chat id).
type Chat struct {
	RowID         int64
	Entity        telegram.EntityRef
	ChatID        int64
	Title         string
	Kind          string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// Message is one stored message. Dedup key: (chat row, message id).
type Message struct {
	RowID         int64
	ChatRowID     int64
	MessageID     int64
	FromID        int64
	Direction     telegram.Direction
	Text          string
	MediaType     telegram.MediaType
	MediaRef      string
	ReplyToID     int64
	ForwardedFrom int64
	Payload       map[string]any
	CreatedAt     time.Time
}

// Preview renders the short content line used in notifications: the
// first 100 runes of text, or a media placeholder.
func (m *Message) Preview() string {
	if m.Text != "" {
		runes := []rune(m.Text)
		if len(runes) > 100 {
			return string(runes[:100]) + "..."
		}
		return m.Text
	}
	if m.MediaType != "" {
		return "[" + string(m.MediaType) + "]"
	}
	return "New message"
}

// Gateway is the sole writer of chat and message rows. Upserts are
// atomic units: readers never observe a message without its chat.
type Gateway interface {
	// Entity bookkeeping.
	CreateEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, ref telegram.EntityRef) (*Entity, error)
	ListEntities(ctx context.Context) ([]Entity, error)
	UpdateEntityStatus(ctx context.Context, ref telegram.EntityRef, status string) error
	UpdateEntitySession(ctx context.Context, ref telegram.EntityRef, sessionEnc string) error

	// Ingestion path.
	UpsertChat(ctx context.Context, entity telegram.EntityRef, chatID int64, title, kind string) (*Chat, error)
	UpsertMessage(ctx context.Context, chatRowID int64, info telegram.MessageInfo) (*Message, bool, error)
	MarkEdited(ctx context.Context, chatRowID int64, info telegram.MessageInfo) (*Message, bool, error)
	MarkDeleted(ctx context.Context, entity telegram.EntityRef, messageID int64) (*Message, bool, error)

	// Read side used by the API and tests.
	GetMessages(ctx context.Context, chatRowID int64, limit int) ([]Message, error)
	CountMessages(ctx context.Context, chatRowID int64) (int, error)

	Close() error
}
