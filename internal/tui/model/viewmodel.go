// Package model holds the terminal UI state fetched from the daemon.
package model

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
)

const (
	// ChatMessages is how many messages opening a chat loads.
	ChatMessages = 50
	// maxMessages bounds the open conversation kept in memory.
	maxMessages = 100
)

// ErrNoActiveChat is returned by Send when no conversation is open.
var ErrNoActiveChat = errors.New("no chat open")

// API is the part of the daemon client the UI uses.
type API interface {
	Status(ctx context.Context) (api.StatusResponse, error)
	Contacts(ctx context.Context) (client.ContactList, error)
	Chats(ctx context.Context, groups bool) (client.ChatList, error)
	Chat(ctx context.Context, id string, includeMessages bool, limit int) (client.ChatDetail, error)
	Messages(ctx context.Context, id string, limit int) (client.ChatDetail, error)
	Send(ctx context.Context, to, text string) (client.SendResult, error)
	SyncAll(ctx context.Context) (client.SyncResult, error)
	Reset(ctx context.Context) (string, error)
	Connect(ctx context.Context) (string, error)
}

// SyncSummary reports what a smart sync loaded.
type SyncSummary struct {
	Chats    int
	Contacts int
	Offline  bool
}

// ViewModel caches what the views render. Loaders fetch from the daemon
// and are safe to call from background goroutines; getters return
// snapshots.
type ViewModel struct {
	mu sync.RWMutex

	api         API
	status      api.StatusResponse
	reachable   bool
	chats       []store.Chat
	chatsCached bool
	contacts    []store.Contact
	active      store.Chat
	messages    []api.MessageView
	now         func() time.Time

	Flash Flash
}

// New creates a view model backed by c.
func New(c API) *ViewModel {
	return &ViewModel{api: c, now: time.Now}
}

// LoadStatus fetches the connection status. A failed fetch marks the
// daemon unreachable.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.api.Status(ctx)
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.reachable = err == nil
	if err != nil {
		return err
	}
	vm.status = st
	return nil
}

// LoadChats fetches the chat list, keeping chats that have both an id and
// a name.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	list, err := vm.api.Chats(ctx, true)
	if err != nil {
		return err
	}
	chats := make([]store.Chat, 0, len(list.Chats))
	for _, c := range list.Chats {
		if c.ID != "" && strings.TrimSpace(c.Name) != "" {
			chats = append(chats, c)
		}
	}
	vm.mu.Lock()
	vm.chats = chats
	vm.chatsCached = list.Cached
	vm.mu.Unlock()
	return nil
}

// LoadContacts fetches the contact list used by contact search.
func (vm *ViewModel) LoadContacts(ctx context.Context) error {
	list, err := vm.api.Contacts(ctx)
	if err != nil {
		return err
	}
	contacts := make([]store.Contact, 0, len(list.Contacts))
	for _, c := range list.Contacts {
		name := strings.TrimSpace(c.Name)
		if c.ID == "" || name == "" || name == "Unknown" {
			continue
		}
		contacts = append(contacts, c)
	}
	vm.mu.Lock()
	vm.contacts = contacts
	vm.mu.Unlock()
	return nil
}

// SmartSync refreshes everything. When the connection is READY the daemon
// re-syncs from WhatsApp first; otherwise the cached lists are loaded and
// the summary is marked offline.
func (vm *ViewModel) SmartSync(ctx context.Context) (SyncSummary, error) {
	if err := vm.LoadStatus(ctx); err != nil {
		return SyncSummary{Offline: true}, err
	}
	offline := !vm.Ready()
	if !offline {
		if _, err := vm.api.SyncAll(ctx); err != nil {
			if !client.IsNotReady(err) {
				return SyncSummary{}, err
			}
			offline = true
		}
	}
	if err := vm.LoadChats(ctx); err != nil {
		return SyncSummary{Offline: offline}, err
	}
	if err := vm.LoadContacts(ctx); err != nil {
		return SyncSummary{Offline: offline}, err
	}

	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return SyncSummary{Chats: len(vm.chats), Contacts: len(vm.contacts), Offline: offline}, nil
}

// Reset asks the daemon to wipe the paired account and clears every local
// list.
func (vm *ViewModel) Reset(ctx context.Context) (string, error) {
	msg, err := vm.api.Reset(ctx)
	if err != nil {
		return "", err
	}
	vm.mu.Lock()
	vm.chats = nil
	vm.contacts = nil
	vm.active = store.Chat{}
	vm.messages = nil
	vm.mu.Unlock()
	return msg, nil
}

// Connect asks the daemon to start a connection attempt.
func (vm *ViewModel) Connect(ctx context.Context) (string, error) {
	return vm.api.Connect(ctx)
}

// SearchContacts returns the contacts whose name contains query, ignoring
// case. An empty query matches nothing.
func (vm *ViewModel) SearchContacts(query string) []store.Contact {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	// Casers keep state and are not shared.
	fold := cases.Fold()
	needle := fold.String(query)

	vm.mu.RLock()
	defer vm.mu.RUnlock()
	var out []store.Contact
	for _, c := range vm.contacts {
		if strings.Contains(fold.String(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}

// OpenChat makes id the active conversation and loads its recent
// messages. name is shown until the daemon reports the chat's own name.
func (vm *ViewModel) OpenChat(ctx context.Context, id, name string) error {
	detail, err := vm.api.Chat(ctx, id, true, ChatMessages)
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound:
		// A contact without a conversation yet.
		detail = client.ChatDetail{Chat: store.Chat{ID: id, Name: name}}
	case err != nil:
		return err
	}
	if detail.Chat.Name == "" {
		detail.Chat.Name = name
	}

	vm.mu.Lock()
	vm.active = detail.Chat
	vm.messages = conversation(detail.Messages)
	vm.mu.Unlock()
	return nil
}

// StartChatWithContact opens the existing chat with contact, or an empty
// conversation when there is none.
func (vm *ViewModel) StartChatWithContact(ctx context.Context, contact store.Contact) error {
	name := contact.Name
	vm.mu.RLock()
	for _, c := range vm.chats {
		if c.ID == contact.ID {
			name = c.Name
			break
		}
	}
	vm.mu.RUnlock()
	return vm.OpenChat(ctx, contact.ID, name)
}

// CloseChat forgets the active conversation.
func (vm *ViewModel) CloseChat() {
	vm.mu.Lock()
	vm.active = store.Chat{}
	vm.messages = nil
	vm.mu.Unlock()
}

// PollActive refetches the open conversation and reports whether it
// gained messages.
func (vm *ViewModel) PollActive(ctx context.Context) (bool, error) {
	vm.mu.RLock()
	id := vm.active.ID
	vm.mu.RUnlock()
	if id == "" {
		return false, nil
	}

	detail, err := vm.api.Messages(ctx, id, ChatMessages)
	if err != nil {
		return false, err
	}
	fresh := conversation(detail.Messages)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.active.ID != id {
		return false, nil
	}
	if lastID(fresh) == lastID(vm.messages) {
		return false, nil
	}
	vm.messages = fresh
	return true, nil
}

// Send sends text to the active conversation and appends it locally.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	vm.mu.RLock()
	id := vm.active.ID
	vm.mu.RUnlock()
	if id == "" {
		return ErrNoActiveChat
	}

	res, err := vm.api.Send(ctx, id, text)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.active.ID != id {
		return nil
	}
	vm.messages = append(vm.messages, api.MessageView{
		ID:        res.MessageID,
		Body:      text,
		FromMe:    true,
		Timestamp: vm.now().Unix(),
		Type:      "text",
	})
	if n := len(vm.messages); n > maxMessages {
		vm.messages = slices.Clone(vm.messages[n-maxMessages:])
	}
	return nil
}

// Ready reports whether the last status fetch found the connection READY.
func (vm *ViewModel) Ready() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.reachable && vm.status.Ready
}

// NeedsPairing reports whether the daemon is waiting for a QR scan.
func (vm *ViewModel) NeedsPairing() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.reachable && vm.status.Status == status.QRReady
}

// Status returns the last fetched status and whether the daemon answered.
func (vm *ViewModel) Status() (api.StatusResponse, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status, vm.reachable
}

func (vm *ViewModel) Chats() ([]store.Chat, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.chats, vm.chatsCached
}

func (vm *ViewModel) Contacts() []store.Contact {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.contacts
}

// Active returns the open conversation, oldest message first.
func (vm *ViewModel) Active() (store.Chat, []api.MessageView) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active, vm.messages
}

// conversation keeps the messages with a body and orders them oldest
// first.
func conversation(msgs []api.MessageView) []api.MessageView {
	out := make([]api.MessageView, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Body) != "" {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b api.MessageView) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	if len(out) > maxMessages {
		out = out[len(out)-maxMessages:]
	}
	return out
}

func lastID(msgs []api.MessageView) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}
