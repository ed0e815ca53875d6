package model

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
)

type fakeAPI struct {
	status    api.StatusResponse
	statusErr error
	contacts  []store.Contact
	chats     []store.Chat
	details   map[string]client.ChatDetail
	syncErr   error

	syncs   int
	resets  int
	sentTo  string
	sentMsg string
}

func (f *fakeAPI) Status(context.Context) (api.StatusResponse, error) {
	return f.status, f.statusErr
}

func (f *fakeAPI) Contacts(context.Context) (client.ContactList, error) {
	return client.ContactList{Contacts: f.contacts, Cached: !f.status.Ready}, nil
}

func (f *fakeAPI) Chats(context.Context, bool) (client.ChatList, error) {
	return client.ChatList{Chats: f.chats, Cached: !f.status.Ready}, nil
}

func (f *fakeAPI) Chat(_ context.Context, id string, _ bool, _ int) (client.ChatDetail, error) {
	d, ok := f.details[id]
	if !ok {
		return client.ChatDetail{}, &client.APIError{Code: http.StatusNotFound, Message: "Chat not found"}
	}
	return d, nil
}

func (f *fakeAPI) Messages(ctx context.Context, id string, limit int) (client.ChatDetail, error) {
	return f.Chat(ctx, id, true, limit)
}

func (f *fakeAPI) Send(_ context.Context, to, text string) (client.SendResult, error) {
	f.sentTo, f.sentMsg = to, text
	return client.SendResult{MessageID: "sent-1"}, nil
}

func (f *fakeAPI) SyncAll(context.Context) (client.SyncResult, error) {
	f.syncs++
	return client.SyncResult{}, f.syncErr
}

func (f *fakeAPI) Reset(context.Context) (string, error) {
	f.resets++
	return "Account reset successfully", nil
}

func (f *fakeAPI) Connect(context.Context) (string, error) { return "Connecting", nil }

func readyAPI() *fakeAPI {
	return &fakeAPI{
		status: api.StatusResponse{Ready: true, Status: status.Ready},
		contacts: []store.Contact{
			{ID: "1@s.whatsapp.net", Name: "Ángela"},
			{ID: "2@s.whatsapp.net", Name: "Unknown"},
			{ID: "", Name: "No id"},
			{ID: "3@s.whatsapp.net", Name: "Bruno"},
		},
		chats: []store.Chat{
			{ID: "1@s.whatsapp.net", Name: "Ángela M."},
			{ID: "x@g.us", Name: ""},
		},
		details: map[string]client.ChatDetail{
			"1@s.whatsapp.net": {
				Chat: store.Chat{ID: "1@s.whatsapp.net", Name: "Ángela M."},
				Messages: []api.MessageView{
					{ID: "b", Body: "second", Timestamp: 20},
					{ID: "m", Body: "", Timestamp: 15, Type: "image"},
					{ID: "a", Body: "first", Timestamp: 10},
				},
			},
		},
	}
}

func TestSmartSyncWhenReady(t *testing.T) {
	f := readyAPI()
	vm := New(f)

	sum, err := vm.SmartSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.syncs != 1 {
		t.Errorf("syncs = %d, want 1", f.syncs)
	}
	if sum.Offline || sum.Chats != 1 || sum.Contacts != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if _, cached := vm.Chats(); cached {
		t.Error("chats marked cached while ready")
	}
}

func TestSmartSyncOffline(t *testing.T) {
	f := readyAPI()
	f.status = api.StatusResponse{Status: status.QRReady}
	vm := New(f)

	sum, err := vm.SmartSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.syncs != 0 {
		t.Errorf("syncs = %d, want none while not ready", f.syncs)
	}
	if !sum.Offline || sum.Chats != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !vm.NeedsPairing() {
		t.Error("NeedsPairing() = false in QR_READY")
	}
}

func TestSmartSyncRaceToNotReady(t *testing.T) {
	f := readyAPI()
	f.syncErr = &client.APIError{Code: http.StatusBadRequest, Message: "WhatsApp not ready", Status: "DISCONNECTED"}
	vm := New(f)

	sum, err := vm.SmartSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Offline {
		t.Errorf("summary = %+v, want offline", sum)
	}
}

func TestSmartSyncDaemonDown(t *testing.T) {
	f := readyAPI()
	f.statusErr = errors.New("connection refused")
	vm := New(f)

	if _, err := vm.SmartSync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, reachable := vm.Status(); reachable {
		t.Error("daemon reported reachable")
	}
}

func TestSearchContacts(t *testing.T) {
	vm := New(readyAPI())
	if err := vm.LoadContacts(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"ÁNG", []string{"Ángela"}},
		{"  bru ", []string{"Bruno"}},
		{"unknown", nil},
		{"", nil},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := vm.SearchContacts(tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("SearchContacts(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for i := range got {
			if got[i].Name != tt.want[i] {
				t.Errorf("SearchContacts(%q)[%d] = %q, want %q", tt.query, i, got[i].Name, tt.want[i])
			}
		}
	}
}

func TestOpenChatOrdersAndFilters(t *testing.T) {
	vm := New(readyAPI())
	if err := vm.OpenChat(context.Background(), "1@s.whatsapp.net", ""); err != nil {
		t.Fatal(err)
	}
	chat, msgs := vm.Active()
	if chat.Name != "Ángela M." {
		t.Errorf("chat = %+v", chat)
	}
	if len(msgs) != 2 || msgs[0].ID != "a" || msgs[1].ID != "b" {
		t.Errorf("messages = %+v, want [a b]", msgs)
	}
}

func TestStartChatWithNewContact(t *testing.T) {
	vm := New(readyAPI())
	err := vm.StartChatWithContact(context.Background(), store.Contact{ID: "3@s.whatsapp.net", Name: "Bruno"})
	if err != nil {
		t.Fatal(err)
	}
	chat, msgs := vm.Active()
	if chat.ID != "3@s.whatsapp.net" || chat.Name != "Bruno" || len(msgs) != 0 {
		t.Errorf("chat = %+v messages = %v", chat, msgs)
	}
}

func TestSendAppendsToActiveChat(t *testing.T) {
	f := readyAPI()
	vm := New(f)
	vm.now = func() time.Time { return time.Unix(99, 0) }

	if err := vm.Send(context.Background(), "hi"); !errors.Is(err, ErrNoActiveChat) {
		t.Fatalf("err = %v, want ErrNoActiveChat", err)
	}

	if err := vm.OpenChat(context.Background(), "1@s.whatsapp.net", ""); err != nil {
		t.Fatal(err)
	}
	if err := vm.Send(context.Background(), "  hola  "); err != nil {
		t.Fatal(err)
	}
	if f.sentTo != "1@s.whatsapp.net" || f.sentMsg != "hola" {
		t.Errorf("sent %q to %q", f.sentMsg, f.sentTo)
	}
	_, msgs := vm.Active()
	last := msgs[len(msgs)-1]
	if !last.FromMe || last.Body != "hola" || last.Timestamp != 99 || last.ID != "sent-1" {
		t.Errorf("last message = %+v", last)
	}
}

func TestPollActiveDetectsNewMessages(t *testing.T) {
	f := readyAPI()
	vm := New(f)
	ctx := context.Background()
	if err := vm.OpenChat(ctx, "1@s.whatsapp.net", ""); err != nil {
		t.Fatal(err)
	}

	changed, err := vm.PollActive(ctx)
	if err != nil || changed {
		t.Fatalf("PollActive() = %v, %v, want no change", changed, err)
	}

	d := f.details["1@s.whatsapp.net"]
	d.Messages = append(d.Messages, api.MessageView{ID: "c", Body: "third", Timestamp: 30})
	f.details["1@s.whatsapp.net"] = d

	changed, err = vm.PollActive(ctx)
	if err != nil || !changed {
		t.Fatalf("PollActive() = %v, %v, want change", changed, err)
	}
	_, msgs := vm.Active()
	if msgs[len(msgs)-1].ID != "c" {
		t.Errorf("last = %+v", msgs[len(msgs)-1])
	}

	vm.CloseChat()
	if changed, _ := vm.PollActive(ctx); changed {
		t.Error("PollActive changed with no open chat")
	}
}

func TestResetClearsLists(t *testing.T) {
	f := readyAPI()
	vm := New(f)
	ctx := context.Background()
	if _, err := vm.SmartSync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := vm.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	chats, _ := vm.Chats()
	if f.resets != 1 || len(chats) != 0 || len(vm.Contacts()) != 0 {
		t.Errorf("resets = %d chats = %d contacts = %d", f.resets, len(chats), len(vm.Contacts()))
	}
}

func TestFlashExpires(t *testing.T) {
	now := time.Unix(0, 0)
	f := Flash{now: func() time.Time { return now }}

	f.Warn("sync failed", 3*time.Second)
	if msg, level := f.Get(); msg != "sync failed" || level != LevelWarn {
		t.Errorf("Get() = %q, %v", msg, level)
	}
	now = now.Add(3 * time.Second)
	if msg, _ := f.Get(); msg != "" {
		t.Errorf("Get() = %q after expiry", msg)
	}
}
