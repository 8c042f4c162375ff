package telegram

// Wire frames for the account event stream. The MTProto bridge gateway
// speaks newline-free JSON frames over a single WebSocket; the client
// sends one hello and then only reads.

// Frame types, bridge to client.
const (
	FrameHello          = "hello"
	FrameHelloAck       = "hello_ack"
	FrameNewMessage     = "new_message"
	FrameMessageEdited  = "message_edited"
	FrameMessageDeleted = "message_deleted"
	FrameError          = "error"
)

// StreamHello is the first frame the client sends after dialing.
type StreamHello struct {
	Type    string `json:"type"`
	Session string `json:"session"` // decrypted MTProto session string
	Cursor  int64  `json:"cursor,omitempty"`
}

// StreamFrame is one event frame pushed by the bridge.
type StreamFrame struct {
	Type  string        `json:"type"`
	Seq   int64         `json:"seq,omitempty"`
	Event *AccountEvent `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

// AccountEvent is the bridge's rendering of one MTProto update. The shape
// follows the MTProto peer model, not the Bot API one.
type AccountEvent struct {
	MessageID int64  `json:"message_id,omitempty"`
	PeerID    int64  `json:"peer_id"`
	PeerKind  string `json:"peer_kind,omitempty"` // user, chat, channel
	PeerTitle string `json:"peer_title,omitempty"`
	FromID    int64  `json:"from_id,omitempty"`
	Out       bool   `json:"out,omitempty"` // true for the account's own messages
	Service   bool   `json:"service,omitempty"`
	Text      string `json:"text,omitempty"`
	Date      int64  `json:"date,omitempty"`
	EditDate  int64  `json:"edit_date,omitempty"`

	ReplyToID     int64 `json:"reply_to_msg_id,omitempty"`
	ForwardFromID int64 `json:"fwd_from_id,omitempty"`

	Media *AccountMedia `json:"media,omitempty"`

	// Set only on message_deleted frames.
	DeletedIDs []int64 `json:"deleted_ids,omitempty"`
}

// AccountMedia carries the bridge's media file references. At most one
// field is expected to be set.
type AccountMedia struct {
	Photo    string `json:"photo,omitempty"`
	Video    string `json:"video,omitempty"`
	Document string `json:"document,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Audio    string `json:"audio,omitempty"`
	Sticker  string `json:"sticker,omitempty"`
}
