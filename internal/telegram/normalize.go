package telegram

import (
	"log"
	"time"
)

// NormalizeUpdate converts one Bot API update into a canonical event.
// The second return value is false when the payload carries nothing
// storable (service messages, unknown update types); those are logged and
// dropped, never surfaced as errors.
func NormalizeUpdate(entity EntityRef, seq int64, upd *Update) (IngestedEvent, bool) {
	var (
		msg  *RawMessage
		kind EventKind
	)
	switch {
	case upd.Message != nil:
		msg, kind = upd.Message, EventNewMessage
	case upd.EditedMessage != nil:
		msg, kind = upd.EditedMessage, EventEditedMessage
	default:
		log.Printf("[Normalize] %s: dropping update %d with no message", entity, upd.UpdateID)
		return IngestedEvent{}, false
	}

	if msg.Chat == nil {
		log.Printf("[Normalize] %s: dropping message %d without chat", entity, msg.MessageID)
		return IngestedEvent{}, false
	}
	if msg.IsService() {
		log.Printf("[Normalize] %s: skipping service message in chat %d", entity, msg.Chat.ID)
		return IngestedEvent{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	mediaType, mediaRef := botMedia(msg)

	info := MessageInfo{
		ProviderID: msg.MessageID,
		Direction:  Incoming,
		Text:       text,
		MediaType:  mediaType,
		MediaRef:   mediaRef,
		Payload:    map[string]any{"update_id": upd.UpdateID},
	}
	if msg.From != nil {
		info.FromID = msg.From.ID
	}
	if msg.ReplyTo != nil {
		info.ReplyToID = msg.ReplyTo.MessageID
	}
	if msg.ForwardFrom != nil {
		info.ForwardedFrom = msg.ForwardFrom.ID
	}
	if msg.Date > 0 {
		info.Payload["date"] = time.Unix(msg.Date, 0).UTC().Format(time.RFC3339)
	}
	if msg.EditDate > 0 {
		info.Payload["edit_date"] = time.Unix(msg.EditDate, 0).UTC().Format(time.RFC3339)
	}

	return IngestedEvent{
		Kind:   kind,
		Entity: entity,
		Seq:    seq,
		Chat: ChatInfo{
			ProviderID: msg.Chat.ID,
			Title:      msg.Chat.DisplayTitle(),
			Kind:       chatKind(msg.Chat.Type),
		},
		Message: info,
	}, true
}

// NormalizeFrame converts one account stream frame into a canonical
// event. Service events and frames with no usable payload are dropped.
func NormalizeFrame(entity EntityRef, frame *StreamFrame) (IngestedEvent, bool) {
	ev := frame.Event
	if ev == nil {
		log.Printf("[Normalize] %s: dropping %s frame without event body", entity, frame.Type)
		return IngestedEvent{}, false
	}

	switch frame.Type {
	case FrameNewMessage, FrameMessageEdited:
	case FrameMessageDeleted:
		if len(ev.DeletedIDs) == 0 {
			log.Printf("[Normalize] %s: dropping empty deletion frame", entity)
			return IngestedEvent{}, false
		}
		return IngestedEvent{
			Kind:       EventDeletedMessage,
			Entity:     entity,
			Seq:        frame.Seq,
			Chat:       ChatInfo{ProviderID: ev.PeerID, Title: ev.PeerTitle, Kind: ev.PeerKind},
			DeletedIDs: ev.DeletedIDs,
		}, true
	default:
		log.Printf("[Normalize] %s: dropping frame of unknown type %q", entity, frame.Type)
		return IngestedEvent{}, false
	}

	if ev.Service {
		log.Printf("[Normalize] %s: skipping service event in peer %d", entity, ev.PeerID)
		return IngestedEvent{}, false
	}

	kind := EventNewMessage
	if frame.Type == FrameMessageEdited {
		kind = EventEditedMessage
	}

	direction := Incoming
	if ev.Out {
		direction = Outgoing
	}

	mediaType, mediaRef := accountMedia(ev.Media)

	info := MessageInfo{
		ProviderID:    ev.MessageID,
		FromID:        ev.FromID,
		Direction:     direction,
		Text:          ev.Text,
		MediaType:     mediaType,
		MediaRef:      mediaRef,
		ReplyToID:     ev.ReplyToID,
		ForwardedFrom: ev.ForwardFromID,
		Payload:       map[string]any{},
	}
	if ev.Date > 0 {
		info.Payload["date"] = time.Unix(ev.Date, 0).UTC().Format(time.RFC3339)
	}
	if ev.EditDate > 0 {
		info.Payload["edit_date"] = time.Unix(ev.EditDate, 0).UTC().Format(time.RFC3339)
	}

	return IngestedEvent{
		Kind:    kind,
		Entity:  entity,
		Seq:     frame.Seq,
		Chat:    ChatInfo{ProviderID: ev.PeerID, Title: ev.PeerTitle, Kind: ev.PeerKind},
		Message: info,
	}, true
}

// botMedia applies the fixed precedence list to a Bot API message:
// photo > video > document > voice > audio > sticker. First match wins,
// so a payload carrying several media fields classifies as the highest.
func botMedia(msg *RawMessage) (MediaType, string) {
	switch {
	case len(msg.Photo) > 0:
		// Largest size is last in the Bot API photo array.
		return MediaPhoto, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		return MediaVideo, msg.Video.FileID
	case msg.Document != nil:
		return MediaDocument, msg.Document.FileID
	case msg.Voice != nil:
		return MediaVoice, msg.Voice.FileID
	case msg.Audio != nil:
		return MediaAudio, msg.Audio.FileID
	case msg.Sticker != nil:
		return MediaSticker, msg.Sticker.FileID
	}
	return "", ""
}

// accountMedia applies the same precedence to bridge media references.
func accountMedia(m *AccountMedia) (MediaType, string) {
	if m == nil {
		return "", ""
	}
	switch {
	case m.Photo != "":
		return MediaPhoto, m.Photo
	case m.Video != "":
		return MediaVideo, m.Video
	case m.Document != "":
		return MediaDocument, m.Document
	case m.Voice != "":
		return MediaVoice, m.Voice
	case m.Audio != "":
		return MediaAudio, m.Audio
	case m.Sticker != "":
		return MediaSticker, m.Sticker
	}
	return "", ""
}

func chatKind(botAPIType string) string {
	switch botAPIType {
	case "private":
		return "private"
	case "group", "supergroup":
		return "group"
	case "channel":
		return "channel"
	}
	return botAPIType
}
