package telegram

import "time"

// EventKind tags the canonical event variants.
type EventKind string

const (
	EventNewMessage     EventKind = "new_message"
	EventEditedMessage  EventKind = "edited_message"
	EventDeletedMessage EventKind = "deleted_message"
)

// Direction of a stored message relative to the entity.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// MediaType is the single media classification of a message. Empty means
// text-only.
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
	MediaVoice    MediaType = "voice"
	MediaAudio    MediaType = "audio"
	MediaSticker  MediaType = "sticker"
)

// ChatInfo is the canonical chat reference carried by an event.
type ChatInfo struct {
	ProviderID int64
	Title      string
	Kind       string // private, group, channel
}

// MessageInfo is the canonical message content carried by new/edited
// events.
type MessageInfo struct {
	ProviderID    int64
	FromID        int64
	Direction     Direction
	Text          string
	MediaType     MediaType
	MediaRef      string
	ReplyToID     int64
	ForwardedFrom int64
	Payload       map[string]any
}

// IngestedEvent is the canonical event produced by the normalizer. Seq is
// the transport-assigned monotonic hint, meaningful only within one
// adapter instance.
type IngestedEvent struct {
	Kind    EventKind
	Entity  EntityRef
	Seq     int64
	Chat    ChatInfo
	Message MessageInfo

	// DeletedIDs is set only for EventDeletedMessage; the provider may
	// batch several deletions into one event.
	DeletedIDs []int64
}

// NotificationEvent is published after a successful persist. All row
// references point at committed storage; it is never built from raw
// provider payloads.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // new_message, message_edited, message_deleted, entity_status
	Entity    EntityRef `json:"entity"`
	ChatRowID int64     `json:"chat_row_id,omitempty"`
	ChatID    int64     `json:"chat_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
