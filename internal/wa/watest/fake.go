// Package watest provides an in-memory wa.Client for tests.
package watest

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/wppbridge/internal/wa"
)

// Client is a scriptable wa.Client. Zero values of the data fields yield
// empty results.
type Client struct {
	mu sync.Mutex

	Opts         wa.Options
	ContactList  []wa.RawContact
	ChatList     []wa.RawChat
	Messages     map[string][]wa.RawMessage
	ConnectErr   error
	ContactsErr  error
	ChatsErr     error
	SendErr      error
	LogoutErr    error
	handler      wa.EventHandler
	connects     int
	destroys     int
	logouts      int
	contactCalls int
	chatCalls    int
	sent         []Sent
}

// Sent records one SendText call.
type Sent struct {
	To   string
	Body string
}

var _ wa.Client = (*Client)(nil)

func (c *Client) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.ConnectErr
}

func (c *Client) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroys++
	c.handler = nil
	return nil
}

// Logout succeeds by emitting a LOGOUT disconnect, like the real client.
func (c *Client) Logout(context.Context) error {
	c.mu.Lock()
	c.logouts++
	err := c.LogoutErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.Emit(wa.Event{Kind: wa.EventDisconnected, Reason: wa.ReasonLogout})
	return nil
}

func (c *Client) Contacts(context.Context) ([]wa.RawContact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contactCalls++
	if c.ContactsErr != nil {
		return nil, c.ContactsErr
	}
	return append([]wa.RawContact(nil), c.ContactList...), nil
}

func (c *Client) Chats(context.Context) ([]wa.RawChat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatCalls++
	if c.ChatsErr != nil {
		return nil, c.ChatsErr
	}
	return append([]wa.RawChat(nil), c.ChatList...), nil
}

func (c *Client) ChatByID(_ context.Context, id string) (wa.RawChat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.ChatList {
		if ch.ID == id {
			return ch, nil
		}
	}
	return wa.RawChat{}, fmt.Errorf("%w: %s", wa.ErrChatNotFound, id)
}

func (c *Client) SendText(_ context.Context, to, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.sent = append(c.sent, Sent{To: to, Body: body})
	return fmt.Sprintf("MSG%d", len(c.sent)), nil
}

func (c *Client) FetchMessages(_ context.Context, chatID string, limit int) ([]wa.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.Messages[chatID]
	if !ok {
		found := false
		for _, ch := range c.ChatList {
			found = found || ch.ID == chatID
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", wa.ErrChatNotFound, chatID)
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]wa.RawMessage(nil), msgs...), nil
}

func (c *Client) SetEventHandler(h wa.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Emit delivers evt to the installed handler, if any. It reports whether a
// handler received it.
func (c *Client) Emit(evt wa.Event) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(evt)
	return true
}

// Connects returns how many times Connect was called.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Destroys returns how many times Destroy was called.
func (c *Client) Destroys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroys
}

// Logouts returns how many times Logout was called.
func (c *Client) Logouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// FetchCalls returns how many times Contacts and Chats were called.
func (c *Client) FetchCalls() (contacts, chats int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contactCalls, c.chatCalls
}

// SentMessages returns every successful SendText call.
func (c *Client) SentMessages() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Factory hands out scripted clients in order and records every one it
// built. When the script runs out it builds empty clients.
type Factory struct {
	mu      sync.Mutex
	Script  []*Client
	Err     error
	built   []*Client
	calls   int
	Prepare func(*Client)
}

// New implements wa.Factory.
func (f *Factory) New(_ context.Context, opts wa.Options) (wa.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	var c *Client
	if len(f.Script) > 0 {
		c, f.Script = f.Script[0], f.Script[1:]
	} else {
		c = &Client{}
	}
	c.Opts = opts
	if f.Prepare != nil {
		f.Prepare(c)
	}
	f.built = append(f.built, c)
	return c, nil
}

// Built returns every client constructed so far.
func (f *Factory) Built() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.built...)
}

// Last returns the most recently built client, or nil.
func (f *Factory) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}

// Calls returns how many times New was called, failed calls included.
func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
