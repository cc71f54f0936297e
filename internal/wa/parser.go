package wa

import (
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// NormalizeJID strips device suffixes so every device of a user maps to
// one chat ("123:4@s.whatsapp.net" -> "123@s.whatsapp.net").
func NormalizeJID(s string) string {
	if !strings.Contains(s, "@") {
		return s
	}
	jid, err := types.ParseJID(s)
	if err != nil {
		return s
	}
	return jid.ToNonAD().String()
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *InboundMessage {
	return &InboundMessage{
		ChatID:     evt.Info.Chat.ToNonAD().String(),
		ID:         evt.Info.ID,
		Sender:     evt.Info.Sender.ToNonAD().String(),
		SenderName: evt.Info.PushName,
		Body:       extractTextBody(evt.Message),
		Type:       detectMessageType(evt.Message),
		FromMe:     evt.Info.IsFromMe,
		Timestamp:  evt.Info.Timestamp,
		Media:      extractMedia(evt.Message),
	}
}

// ParseHistoryMessage normalizes a message from a history sync conversation.
func ParseHistoryMessage(chatID string, msg *waE2E.Message, id, sender string, fromMe bool, unixSec uint64) *InboundMessage {
	return &InboundMessage{
		ChatID:    NormalizeJID(chatID),
		ID:        id,
		Sender:    NormalizeJID(sender),
		Body:      extractTextBody(msg),
		Type:      detectMessageType(msg),
		FromMe:    fromMe,
		Timestamp: time.Unix(int64(unixSec), 0),
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

func extractMedia(msg *waE2E.Message) *Media {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		return &Media{MimeType: m.GetMimetype(), source: m}
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		return &Media{MimeType: m.GetMimetype(), source: m}
	case msg.GetAudioMessage() != nil:
		m := msg.GetAudioMessage()
		return &Media{MimeType: m.GetMimetype(), source: m}
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		return &Media{MimeType: m.GetMimetype(), FileName: m.GetFileName(), source: m}
	case msg.GetStickerMessage() != nil:
		m := msg.GetStickerMessage()
		return &Media{MimeType: m.GetMimetype(), source: m}
	}
	return nil
}
