package telegram

// Raw Bot API shapes, decoded from webhook bodies. Only the fields the
// ingestion path reads are declared; everything else stays in the raw
// JSON payload column.

// Update is one Bot API update envelope.
type Update struct {
	UpdateID      int64       `json:"update_id"`
	Message       *RawMessage `json:"message,omitempty"`
	EditedMessage *RawMessage `json:"edited_message,omitempty"`
}

// RawMessage is the Bot API message object.
type RawMessage struct {
	MessageID int64    `json:"message_id"`
	From      *RawUser `json:"from,omitempty"`
	Chat      *RawChat `json:"chat,omitempty"`
	Date      int64    `json:"date,omitempty"`
	EditDate  int64    `json:"edit_date,omitempty"`
	Text      string   `json:"text,omitempty"`
	Caption   string   `json:"caption,omitempty"`

	ReplyTo     *RawMessage `json:"reply_to_message,omitempty"`
	ForwardFrom *RawUser    `json:"forward_from,omitempty"`

	Photo    []PhotoSize `json:"photo,omitempty"`
	Video    *MediaFile  `json:"video,omitempty"`
	Document *MediaFile  `json:"document,omitempty"`
	Voice    *MediaFile  `json:"voice,omitempty"`
	Audio    *MediaFile  `json:"audio,omitempty"`
	Sticker  *MediaFile  `json:"sticker,omitempty"`

	// Service message markers. A message carrying only these is dropped.
	NewChatMembers []RawUser `json:"new_chat_members,omitempty"`
	LeftChatMember *RawUser  `json:"left_chat_member,omitempty"`
	NewChatTitle   string    `json:"new_chat_title,omitempty"`
}

// RawChat is the Bot API chat object.
type RawChat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"` // private, group, supergroup, channel
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// RawUser is the Bot API user object.
type RawUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// PhotoSize is one resolution of a photo.
type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaFile covers video/document/voice/audio/sticker attachments.
type MediaFile struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type,omitempty"`
}

// IsService reports whether the message carries no storable content,
// only membership or title changes.
func (m *RawMessage) IsService() bool {
	return len(m.NewChatMembers) > 0 || m.LeftChatMember != nil || m.NewChatTitle != ""
}

// DisplayTitle derives a human title for the chat: group/channel title,
// then the peer's name, then the username, then the bare chat id.
func (c *RawChat) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name != "" {
		return name
	}
	if c.Username != "" {
		return c.Username
	}
	return ""
}
