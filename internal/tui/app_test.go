package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/tui/keys"
	"github.com/matheus3301/wppbridge/internal/tui/model"
)

var errDown = errors.New("daemon down")

// downAPI answers every call with errDown.
type downAPI struct{}

func (downAPI) Status(context.Context) (api.StatusResponse, error) {
	return api.StatusResponse{}, errDown
}

func (downAPI) Contacts(context.Context) (client.ContactList, error) {
	return client.ContactList{}, errDown
}

func (downAPI) Chats(context.Context, bool) (client.ChatList, error) {
	return client.ChatList{}, errDown
}

func (downAPI) Chat(context.Context, string, bool, int) (client.ChatDetail, error) {
	return client.ChatDetail{}, errDown
}

func (downAPI) Messages(context.Context, string, int) (client.ChatDetail, error) {
	return client.ChatDetail{}, errDown
}

func (downAPI) Send(context.Context, string, string) (client.SendResult, error) {
	return client.SendResult{}, errDown
}

func (downAPI) SyncAll(context.Context) (client.SyncResult, error) {
	return client.SyncResult{}, errDown
}

func (downAPI) Reset(context.Context) (string, error)   { return "", errDown }
func (downAPI) Connect(context.Context) (string, error) { return "", errDown }

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestNavigation(t *testing.T) {
	a := NewApp(model.New(downAPI{}), Options{Addr: "127.0.0.1:1"})
	defer a.cancel()

	steps := []struct {
		ev   *tcell.EventKey
		want string
	}{
		{runeKey('n'), pageSearch},
		// Typed into the query field, not handled as a binding.
		{runeKey('q'), pageSearch},
		{tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), pageChats},
		{runeKey('?'), pageHelp},
		{tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), pageChats},
		{runeKey('R'), pageConfirm},
		{runeKey('q'), pageConfirm},
	}
	for i, s := range steps {
		a.capture(s.ev)
		if got := a.page(); got != s.want {
			t.Fatalf("step %d: page = %q, want %q", i, got, s.want)
		}
	}
}

func TestSearchFocusesInput(t *testing.T) {
	a := NewApp(model.New(downAPI{}), Options{})
	defer a.cancel()

	if ev := a.capture(runeKey('n')); ev != nil {
		t.Fatal("n not handled")
	}
	if a.app.GetFocus() != a.search.Input {
		t.Errorf("focus = %T, want the query field", a.app.GetFocus())
	}
	if ev := a.capture(runeKey('x')); ev == nil {
		t.Error("key swallowed while typing a query")
	}
}

func TestHelpListsEveryScreen(t *testing.T) {
	a := NewApp(model.New(downAPI{}), Options{})
	defer a.cancel()

	for _, page := range []string{keys.Global, pageChats, pageChat, pageSearch} {
		if len(a.keys.Hints(page)) == 0 {
			t.Errorf("no hints for page %q", page)
		}
	}
}
