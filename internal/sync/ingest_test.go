package sync

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
)

func TestIngestMessage(t *testing.T) {
	db := testDB(t)
	i := NewIngester(db, bus.New(), zap.NewNop())
	ctx := context.Background()

	live := wa.LiveMessage{
		Message: &store.Message{
			ChatJID: "chat@s.whatsapp.net", MsgID: "m1", Body: "hello",
			MessageType: "text", Timestamp: 1000,
		},
		ChatName: "Ana",
	}
	if err := i.IngestMessage(ctx, live); err != nil {
		t.Fatal(err)
	}
	// Redelivery is idempotent.
	if err := i.IngestMessage(ctx, live); err != nil {
		t.Fatal(err)
	}

	chat, err := db.GetChat(ctx, "chat@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil || chat.Name != "Ana" || chat.UnreadCount != 1 {
		t.Fatalf("chat = %+v", chat)
	}
	msgs, err := db.ListMessages(ctx, "chat@s.whatsapp.net", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestIngestHistory(t *testing.T) {
	db := testDB(t)
	i := NewIngester(db, bus.New(), zap.NewNop())
	ctx := context.Background()

	if err := i.IngestHistory(ctx, store.HistoryBatch{}); err != nil {
		t.Fatal(err)
	}

	batch := store.HistoryBatch{
		Chats: []store.ChatRow{{JID: "g@g.us", Name: "Family", IsGroup: true, LastMessageAt: 3000, LastMessagePreview: "c"}},
		Messages: []store.Message{
			{ChatJID: "g@g.us", MsgID: "a", Body: "a", MessageType: "text", Timestamp: 1000},
			{ChatJID: "g@g.us", MsgID: "b", Body: "b", MessageType: "text", Timestamp: 2000},
		},
	}
	if err := i.IngestHistory(ctx, batch); err != nil {
		t.Fatal(err)
	}
	if err := i.IngestHistory(ctx, batch); err != nil {
		t.Fatal(err)
	}
	n, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("message count = %d, want 2", n)
	}
}

func TestIngesterConsumesBus(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	i := NewIngester(db, b, zap.NewNop())
	i.Start(context.Background())
	defer i.Stop()

	b.Emit(bus.KindMessage, wa.LiveMessage{Message: &store.Message{
		ChatJID: "x@s.whatsapp.net", MsgID: "m1", Body: "hey", MessageType: "text", Timestamp: 5000,
	}})
	b.Emit(bus.KindMessage, "not a message")

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := db.MessageCount(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("message not ingested")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngesterStopIdempotentBeforeStart(t *testing.T) {
	i := NewIngester(nil, bus.New(), zap.NewNop())
	i.Stop()
}
