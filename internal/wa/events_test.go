package wa

import (
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
)

func newTestAdapter(b *bus.Bus) (*Adapter, *[]Event) {
	a := &Adapter{bus: b, logger: zap.NewNop()}
	var got []Event
	a.SetEventHandler(func(e Event) { got = append(got, e) })
	return a, &got
}

func kinds(evts []Event) []EventKind {
	out := make([]EventKind, len(evts))
	for i, e := range evts {
		out[i] = e.Kind
	}
	return out
}

func TestConnectedReportsAuthenticatedOnce(t *testing.T) {
	a, got := newTestAdapter(nil)

	a.handle(&events.Connected{})
	a.handle(&events.KeepAliveTimeout{})
	a.handle(&events.Connected{})

	want := []EventKind{EventAuthenticated, EventReady, EventChangeState, EventReady}
	if g := kinds(*got); len(g) != len(want) {
		t.Fatalf("events = %v, want %v", g, want)
	} else {
		for i := range want {
			if g[i] != want[i] {
				t.Errorf("event %d = %s, want %s", i, g[i], want[i])
			}
		}
	}
}

func TestPairSuccessThenConnected(t *testing.T) {
	a, got := newTestAdapter(nil)

	a.handle(&events.PairSuccess{ID: types.JID{User: "5511", Server: types.DefaultUserServer}})
	a.handle(&events.Connected{})

	want := []EventKind{EventAuthenticated, EventReady}
	g := kinds(*got)
	if len(g) != 2 || g[0] != want[0] || g[1] != want[1] {
		t.Errorf("events = %v, want %v", g, want)
	}
}

func TestTranslateLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		evt        any
		wantKind   EventKind
		wantReason string
	}{
		{"logged out while connected", &events.LoggedOut{OnConnect: false}, EventDisconnected, ReasonLogout},
		{"logged out on connect", &events.LoggedOut{OnConnect: true}, EventAuthFailure, ""},
		{"pair error", &events.PairError{Error: errors.New("bad pairing")}, EventAuthFailure, "bad pairing"},
		{"temporary ban", &events.TemporaryBan{}, EventAuthFailure, ""},
		{"disconnected", &events.Disconnected{}, EventDisconnected, ReasonConnectionLost},
		{"stream replaced", &events.StreamReplaced{}, EventDisconnected, ReasonConflict},
		{"keepalive restored", &events.KeepAliveRestored{}, EventChangeState, ""},
		{"client outdated", &events.ClientOutdated{}, EventError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Adapter{logger: zap.NewNop()}
			evts := a.translate(tt.evt)
			if len(evts) != 1 {
				t.Fatalf("translate() = %v, want one event", evts)
			}
			if evts[0].Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", evts[0].Kind, tt.wantKind)
			}
			if tt.wantReason != "" && evts[0].Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", evts[0].Reason, tt.wantReason)
			}
		})
	}
}

func TestTranslateIgnoresUnrelated(t *testing.T) {
	a := &Adapter{logger: zap.NewNop()}
	if evts := a.translate(&events.Receipt{}); len(evts) != 0 {
		t.Errorf("translate(Receipt) = %v, want none", evts)
	}
}

func TestEmitWithoutHandlerDrops(t *testing.T) {
	a := &Adapter{logger: zap.NewNop()}
	a.handle(&events.Disconnected{})
}

func TestLiveMessagePublished(t *testing.T) {
	b := bus.New()
	a, got := newTestAdapter(b)
	ch, unsub := b.Subscribe(bus.KindMessage, 10)
	defer unsub()

	a.handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "m1",
			PushName:  "Eric",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "558592403672", Server: types.DefaultUserServer, Device: 1},
				Sender: types.JID{User: "558592403672", Server: types.DefaultUserServer, Device: 3},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	if len(*got) != 0 {
		t.Errorf("message produced lifecycle events: %v", *got)
	}
	select {
	case evt := <-ch:
		live, ok := evt.Payload.(LiveMessage)
		if !ok {
			t.Fatalf("payload type = %T, want LiveMessage", evt.Payload)
		}
		if live.Message.ChatJID != "558592403672@s.whatsapp.net" {
			t.Errorf("ChatJID = %q", live.Message.ChatJID)
		}
		if live.ChatName != "Eric" {
			t.Errorf("ChatName = %q, want Eric", live.ChatName)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for wa.message event")
	}
}

func TestHistorySyncPublished(t *testing.T) {
	b := bus.New()
	a, _ := newTestAdapter(b)
	ch, unsub := b.Subscribe(bus.KindHistorySync, 10)
	defer unsub()

	older, newer := uint64(1700000000), uint64(1700000100)
	msg := func(id string, ts *uint64, body string) *waHistorySync.HistorySyncMsg {
		return &waHistorySync.HistorySyncMsg{Message: &waWeb.WebMessageInfo{
			Key: &waCommon.MessageKey{
				ID:        proto.String(id),
				FromMe:    proto.Bool(false),
				RemoteJID: proto.String("558592403672:0@s.whatsapp.net"),
			},
			MessageTimestamp: ts,
			Message:          &waE2E.Message{Conversation: proto.String(body)},
		}}
	}
	a.handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{{
				ID:          proto.String("558592403672:0@s.whatsapp.net"),
				Name:        proto.String("Eric"),
				UnreadCount: proto.Uint32(2),
				Messages: []*waHistorySync.HistorySyncMsg{
					msg("h2", &newer, "latest"),
					msg("h1", &older, "first"),
				},
			}},
		},
	})

	select {
	case evt := <-ch:
		batch, ok := evt.Payload.(store.HistoryBatch)
		if !ok {
			t.Fatalf("payload type = %T, want store.HistoryBatch", evt.Payload)
		}
		if len(batch.Chats) != 1 || len(batch.Messages) != 2 {
			t.Fatalf("batch = %d chats, %d messages", len(batch.Chats), len(batch.Messages))
		}
		chat := batch.Chats[0]
		if chat.JID != "558592403672@s.whatsapp.net" {
			t.Errorf("chat JID = %q, device suffix not stripped", chat.JID)
		}
		if chat.LastMessagePreview != "latest" || chat.LastMessageAt != int64(newer)*1000 {
			t.Errorf("last message = %q@%d", chat.LastMessagePreview, chat.LastMessageAt)
		}
		if chat.UnreadCount != 2 || chat.Name != "Eric" {
			t.Errorf("chat = %+v", chat)
		}
		if batch.Messages[1].SenderJID != "558592403672@s.whatsapp.net" {
			t.Errorf("sender = %q, want chat fallback", batch.Messages[1].SenderJID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for wa.history_sync event")
	}
}

func TestHistorySyncNilData(t *testing.T) {
	b := bus.New()
	a, _ := newTestAdapter(b)
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	a.handle(&events.HistorySync{Data: nil})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
