package wa

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/matheus3301/wppbridge/internal/store"
)

// ParsedMessage is a normalized message ready for journaling.
type ParsedMessage struct {
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	FromMe      bool
	IsGroup     bool
	IsForwarded bool
	HasMedia    bool
	Timestamp   int64
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	msgType := detectMessageType(evt.Message)
	return &ParsedMessage{
		ChatJID:     evt.Info.Chat.ToNonAD().String(),
		MsgID:       evt.Info.ID,
		SenderJID:   evt.Info.Sender.ToNonAD().String(),
		SenderName:  evt.Info.PushName,
		Body:        extractTextBody(evt.Message),
		MessageType: msgType,
		FromMe:      evt.Info.IsFromMe,
		IsGroup:     evt.Info.IsGroup,
		IsForwarded: isForwarded(evt.Message),
		HasMedia:    isMediaType(msgType),
		Timestamp:   evt.Info.Timestamp.UnixMilli(),
	}
}

// ParseHistoryMessage normalizes one message of a history-sync
// conversation. It returns nil for entries without content.
func ParseHistoryMessage(chatJID string, wmsg *waWeb.WebMessageInfo) *ParsedMessage {
	if wmsg == nil || wmsg.GetMessage() == nil {
		return nil
	}
	content := wmsg.GetMessage()
	msgType := detectMessageType(content)
	sender := wmsg.GetKey().GetParticipant()
	if sender == "" && !wmsg.GetKey().GetFromMe() {
		sender = chatJID
	}
	return &ParsedMessage{
		ChatJID:     chatJID,
		MsgID:       wmsg.GetKey().GetID(),
		SenderJID:   NormalizeJID(sender),
		SenderName:  wmsg.GetPushName(),
		Body:        extractTextBody(content),
		MessageType: msgType,
		FromMe:      wmsg.GetKey().GetFromMe(),
		IsGroup:     IsGroupJID(chatJID),
		IsForwarded: isForwarded(content),
		HasMedia:    isMediaType(msgType),
		Timestamp:   int64(wmsg.GetMessageTimestamp()) * 1000,
	}
}

// ToStoreMessage converts a ParsedMessage to its journal row.
func (p *ParsedMessage) ToStoreMessage() *store.Message {
	return &store.Message{
		ChatJID:     p.ChatJID,
		MsgID:       p.MsgID,
		SenderJID:   p.SenderJID,
		SenderName:  p.SenderName,
		Body:        p.Body,
		MessageType: p.MessageType,
		FromMe:      p.FromMe,
		IsForwarded: p.IsForwarded,
		HasMedia:    p.HasMedia,
		Timestamp:   p.Timestamp,
	}
}

// rawFromStore rebuilds a RawMessage from a journal row. self is the
// account's own JID, used to fill the missing side of from/to.
func rawFromStore(m store.Message, self string) RawMessage {
	raw := RawMessage{
		ID:          m.MsgID,
		ChatID:      m.ChatJID,
		Body:        m.Body,
		FromMe:      m.FromMe,
		Timestamp:   time.UnixMilli(m.Timestamp),
		Type:        m.MessageType,
		IsForwarded: m.IsForwarded,
		HasMedia:    m.HasMedia,
	}
	switch {
	case m.FromMe:
		raw.From, raw.To = self, m.ChatJID
	default:
		raw.From, raw.To = m.ChatJID, self
	}
	if IsGroupJID(m.ChatJID) && !m.FromMe {
		raw.Author = m.SenderJID
	}
	return raw
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
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
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

func isMediaType(msgType string) bool {
	switch msgType {
	case "image", "video", "audio", "document", "sticker":
		return true
	}
	return false
}

func isForwarded(msg *waE2E.Message) bool {
	if msg == nil {
		return false
	}
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo().GetIsForwarded()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo().GetIsForwarded()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo().GetIsForwarded()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo().GetIsForwarded()
	}
	return false
}
