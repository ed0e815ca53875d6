package wa

import (
	"fmt"

	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
)

// handle is registered with whatsmeow. Lifecycle events go to the
// installed EventHandler; message traffic goes to the bus for journaling.
func (a *Adapter) handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		a.publishMessage(evt)
	case *events.HistorySync:
		a.publishHistory(evt)
	default:
		for _, e := range a.translate(rawEvt) {
			a.emit(e)
		}
	}
}

// translate maps a whatsmeow event to zero or more lifecycle events.
func (a *Adapter) translate(rawEvt any) []Event {
	switch evt := rawEvt.(type) {
	case *events.PairSuccess:
		a.logger.Info("device paired", zap.String("jid", evt.ID.String()))
		return a.authenticatedOnce(nil)
	case *events.Connected:
		return a.authenticatedOnce([]Event{{Kind: EventReady}})
	case *events.LoggedOut:
		if evt.OnConnect {
			return []Event{{Kind: EventAuthFailure, Reason: evt.Reason.String()}}
		}
		return []Event{{Kind: EventDisconnected, Reason: ReasonLogout}}
	case *events.PairError:
		return []Event{{Kind: EventAuthFailure, Reason: fmt.Sprint(evt.Error)}}
	case *events.TemporaryBan:
		return []Event{{Kind: EventAuthFailure, Reason: evt.String()}}
	case *events.ConnectFailure:
		if evt.Reason.IsLoggedOut() {
			return []Event{{Kind: EventAuthFailure, Reason: evt.Reason.String()}}
		}
		a.logger.Warn("connect failure", zap.String("reason", evt.Reason.String()), zap.String("message", evt.Message))
		return []Event{{Kind: EventDisconnected, Reason: ReasonConnectFailure}}
	case *events.Disconnected:
		return []Event{{Kind: EventDisconnected, Reason: ReasonConnectionLost}}
	case *events.StreamReplaced:
		return []Event{{Kind: EventDisconnected, Reason: ReasonConflict}}
	case *events.KeepAliveTimeout:
		return []Event{{Kind: EventChangeState, State: "TIMEOUT"}}
	case *events.KeepAliveRestored:
		return []Event{{Kind: EventChangeState, State: "CONNECTED"}}
	case *events.ClientOutdated:
		return []Event{{Kind: EventError, Err: fmt.Errorf("client outdated")}}
	}
	return nil
}

// authenticatedOnce prepends EventAuthenticated the first time it is
// called for a connection.
func (a *Adapter) authenticatedOnce(rest []Event) []Event {
	a.mu.Lock()
	first := !a.paired
	a.paired = true
	a.mu.Unlock()
	if !first {
		return rest
	}
	return append([]Event{{Kind: EventAuthenticated}}, rest...)
}

func (a *Adapter) emit(evt Event) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h == nil {
		a.logger.Debug("lifecycle event without handler", zap.String("kind", string(evt.Kind)))
		return
	}
	h(evt)
}

func (a *Adapter) publishMessage(evt *events.Message) {
	if a.bus == nil {
		return
	}
	parsed := ParseLiveMessage(evt)
	parsed.ChatJID = a.resolveJID(parsed.ChatJID)
	parsed.SenderJID = a.resolveJID(parsed.SenderJID)

	var chatName string
	if !parsed.IsGroup && !parsed.FromMe {
		chatName = parsed.SenderName
	}
	a.bus.Emit(bus.KindMessage, LiveMessage{
		Message:  parsed.ToStoreMessage(),
		ChatName: chatName,
		IsGroup:  parsed.IsGroup,
	})
}

func (a *Adapter) publishHistory(evt *events.HistorySync) {
	data := evt.Data
	if data == nil || a.bus == nil {
		return
	}

	var batch store.HistoryBatch
	for _, conv := range data.GetConversations() {
		chatJID := a.resolveJID(conv.GetID())
		row := store.ChatRow{
			JID:           chatJID,
			Name:          conv.GetName(),
			IsGroup:       IsGroupJID(chatJID),
			UnreadCount:   int(conv.GetUnreadCount()),
			LastMessageAt: int64(conv.GetConversationTimestamp()) * 1000,
		}
		var newest int64 = -1
		for _, hm := range conv.GetMessages() {
			parsed := ParseHistoryMessage(chatJID, hm.GetMessage())
			if parsed == nil {
				continue
			}
			if parsed.SenderJID != "" {
				parsed.SenderJID = a.resolveJID(parsed.SenderJID)
			}
			batch.Messages = append(batch.Messages, *parsed.ToStoreMessage())
			if parsed.Timestamp > newest {
				newest = parsed.Timestamp
				row.LastMessagePreview = parsed.Body
				row.LastMessageFrom = parsed.SenderJID
			}
		}
		if newest > row.LastMessageAt {
			row.LastMessageAt = newest
		}
		batch.Chats = append(batch.Chats, row)
	}

	if len(batch.Chats) > 0 {
		a.bus.Emit(bus.KindHistorySync, batch)
	}
}
