package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (journal + cache)", result.Version)
	}
	if result.Dirty {
		t.Error("schema is dirty")
	}
}

func TestOpenMigratedMovesCorruptFileAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database, just garbage bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	db, err := OpenMigrated(path, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenMigrated() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	snap, err := db.LoadCache(context.Background())
	if err != nil {
		t.Fatalf("LoadCache() on fresh db error = %v", err)
	}
	if len(snap.Contacts) != 0 {
		t.Errorf("fresh db has %d contacts", len(snap.Contacts))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "app.db.corrupt-") {
			found = true
		}
	}
	if !found {
		t.Error("corrupt database was not moved aside")
	}
}

func TestSaveAndLoadCache(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	lastSync := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	snap := Snapshot{
		Contacts: []Contact{
			{ID: "2@c.us", Name: "Bruno", Number: "2", IsMyContact: true},
			{ID: "1@c.us", Name: "Ana", Number: "1", IsMyContact: true},
		},
		Chats: []Chat{
			{ID: "1@c.us", Name: "Ana", UnreadCount: 3, LastMessage: &LastMessage{Body: "hi", Timestamp: 1700000000, From: "1@c.us"}},
			{ID: "g@g.us", Name: "Family", IsGroup: true},
		},
		LastSync: lastSync,
	}
	if err := db.SaveCache(ctx, snap); err != nil {
		t.Fatalf("SaveCache() error = %v", err)
	}

	got, err := db.LoadCache(ctx)
	if err != nil {
		t.Fatalf("LoadCache() error = %v", err)
	}
	if got.Version != CacheVersion {
		t.Errorf("Version = %q, want %q", got.Version, CacheVersion)
	}
	if !got.LastSync.Equal(lastSync) {
		t.Errorf("LastSync = %v, want %v", got.LastSync, lastSync)
	}
	if got.SavedAt.IsZero() {
		t.Error("SavedAt not recorded")
	}
	if len(got.Contacts) != 2 || got.Contacts[0].Name != "Bruno" || got.Contacts[1].Name != "Ana" {
		t.Errorf("contacts order not preserved: %+v", got.Contacts)
	}
	if !got.Contacts[0].IsMyContact || got.Contacts[0].IsGroup {
		t.Errorf("contact flags = %+v", got.Contacts[0])
	}
	if len(got.Chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(got.Chats))
	}
	if got.Chats[0].LastMessage == nil || got.Chats[0].LastMessage.Body != "hi" {
		t.Errorf("last message lost: %+v", got.Chats[0].LastMessage)
	}
	if got.Chats[1].LastMessage != nil {
		t.Errorf("chat without last message got %+v", got.Chats[1].LastMessage)
	}
	if !got.Chats[1].IsGroup {
		t.Error("group flag lost")
	}

	// A second save fully replaces the first.
	if err := db.SaveCache(ctx, Snapshot{}); err != nil {
		t.Fatal(err)
	}
	got, err = db.LoadCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Contacts) != 0 || len(got.Chats) != 0 || !got.LastSync.IsZero() {
		t.Errorf("cache not replaced: %+v", got)
	}
}

func TestLoadCacheVersionMismatch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.SaveCache(ctx, Snapshot{Contacts: []Contact{{ID: "1", Name: "Ana"}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE sync_state SET value = '0.9' WHERE key = 'cache_version'`); err != nil {
		t.Fatal(err)
	}

	_, err := db.LoadCache(ctx)
	if !errors.Is(err, ErrCacheVersion) {
		t.Errorf("LoadCache() error = %v, want ErrCacheVersion", err)
	}
}

func TestLoadCacheEmptyDB(t *testing.T) {
	db := testDB(t)
	snap, err := db.LoadCache(context.Background())
	if err != nil {
		t.Fatalf("LoadCache() error = %v", err)
	}
	if snap.Version != "" || len(snap.Contacts) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestHistoryChatsUpsertAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.RecordHistory(ctx, HistoryBatch{Chats: []ChatRow{{JID: "1@s.whatsapp.net", Name: "Alice", LastMessageAt: 1000, LastMessagePreview: "hello"}}}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordHistory(ctx, HistoryBatch{Chats: []ChatRow{{JID: "2@s.whatsapp.net", Name: "Bob", LastMessageAt: 2000}}}); err != nil {
		t.Fatal(err)
	}
	// An older summary with no name keeps the newer preview and the name.
	if err := db.RecordHistory(ctx, HistoryBatch{Chats: []ChatRow{{JID: "1@s.whatsapp.net", LastMessageAt: 500, LastMessagePreview: "older"}}}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].JID != "2@s.whatsapp.net" {
		t.Errorf("first chat = %q, want most recent", chats[0].JID)
	}
	if chats[1].Name != "Alice" || chats[1].LastMessagePreview != "hello" {
		t.Errorf("chat regressed: %+v", chats[1])
	}
}

func TestGetChat(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.RecordHistory(ctx, HistoryBatch{Chats: []ChatRow{{JID: "a@s", Name: "A"}}}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat(ctx, "a@s")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "A" {
		t.Errorf("got %v, want A", c)
	}

	c, err = db.GetChat(ctx, "missing@s")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestRecordMessage(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	msg := &Message{ChatJID: "chat@s", MsgID: "m1", SenderJID: "x@s", Body: "hello", MessageType: "text", Timestamp: 1000}
	if err := db.RecordMessage(ctx, msg, "Xavier", false); err != nil {
		t.Fatal(err)
	}
	// Redelivery does not duplicate nor bump unread.
	if err := db.RecordMessage(ctx, msg, "Xavier", false); err != nil {
		t.Fatal(err)
	}
	mine := &Message{ChatJID: "chat@s", MsgID: "m2", Body: "reply", MessageType: "text", FromMe: true, Timestamp: 2000}
	if err := db.RecordMessage(ctx, mine, "", false); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat(ctx, "chat@s")
	if err != nil || c == nil {
		t.Fatalf("GetChat() = %v, %v", c, err)
	}
	if c.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", c.UnreadCount)
	}
	if c.Name != "Xavier" {
		t.Errorf("name = %q, want Xavier", c.Name)
	}
	if c.LastMessagePreview != "reply" || c.LastMessageAt != 2000 {
		t.Errorf("last message = %q@%d, want reply@2000", c.LastMessagePreview, c.LastMessageAt)
	}

	msgs, err := db.ListMessages(ctx, "chat@s", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].MsgID != "m2" {
		t.Errorf("first message = %q, want newest first", msgs[0].MsgID)
	}
}

func TestRecordHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	batch := HistoryBatch{
		Chats: []ChatRow{{JID: "g@g.us", Name: "Team", IsGroup: true, UnreadCount: 2, LastMessageAt: 3000}},
		Messages: []Message{
			{ChatJID: "g@g.us", MsgID: "h1", Body: "one", MessageType: "text", Timestamp: 1000},
			{ChatJID: "g@g.us", MsgID: "h2", Body: "two", MessageType: "image", HasMedia: true, Timestamp: 3000},
		},
	}
	if err := db.RecordHistory(ctx, batch); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordHistory(ctx, batch); err != nil {
		t.Fatal(err)
	}

	n, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("MessageCount() = %d, want 2", n)
	}
	n, err = db.ChatCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ChatCount() = %d, want 1", n)
	}

	msgs, err := db.ListMessages(ctx, "g@g.us", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !msgs[0].HasMedia {
		t.Errorf("ListMessages(limit=1) = %+v", msgs)
	}
}
