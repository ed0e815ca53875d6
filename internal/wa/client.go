// Package wa is the boundary to the messaging network. Everything above it
// talks to a Client and receives Events; the whatsmeow-backed Adapter is
// the production implementation.
package wa

import (
	"context"
	"errors"
	"time"
)

// ErrChatNotFound is returned by ChatByID for unknown chats.
var ErrChatNotFound = errors.New("chat not found")

// EventKind names a client lifecycle event.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
	EventChangeState   EventKind = "change_state"
	EventError         EventKind = "error"
)

// Disconnect reasons carried by EventDisconnected.
const (
	ReasonLogout         = "LOGOUT"
	ReasonConnectionLost = "CONNECTION_LOST"
	ReasonConflict       = "CONFLICT"
	ReasonQRTimeout      = "QR_TIMEOUT"
	ReasonConnectFailure = "CONNECT_FAILURE"
)

// Event is one lifecycle notification. Only the field matching Kind is set.
type Event struct {
	Kind   EventKind
	QRCode string
	Reason string
	State  string
	Err    error
}

// EventHandler receives lifecycle events. It may be called from any
// goroutine.
type EventHandler func(Event)

// RawContact is a contact as the network reports it, before filtering.
type RawContact struct {
	ID          string
	Number      string
	Name        string
	PushName    string
	IsGroup     bool
	IsMyContact bool
}

// RawMessage is a message as the network reports it.
type RawMessage struct {
	ID          string
	ChatID      string
	Body        string
	FromMe      bool
	Timestamp   time.Time
	From        string
	To          string
	Type        string
	Author      string
	IsForwarded bool
	HasMedia    bool
}

// RawChat is a chat as the network reports it.
type RawChat struct {
	ID          string
	Name        string
	IsGroup     bool
	UnreadCount int
	LastMessage *RawMessage
}

// Client is one connection to the messaging network. A Client is used for
// a single connect/destroy cycle.
type Client interface {
	// Connect starts the connection. Progress is reported through events.
	Connect(ctx context.Context) error
	// Destroy tears the client down. It is safe to call more than once.
	Destroy(ctx context.Context) error
	// Logout unlinks the device and ends with EventDisconnected(LOGOUT).
	Logout(ctx context.Context) error

	Contacts(ctx context.Context) ([]RawContact, error)
	Chats(ctx context.Context) ([]RawChat, error)
	ChatByID(ctx context.Context, id string) (RawChat, error)
	SendText(ctx context.Context, to, body string) (string, error)
	FetchMessages(ctx context.Context, chatID string, limit int) ([]RawMessage, error)

	SetEventHandler(h EventHandler)
}

// Options configure a new Client.
type Options struct {
	// SessionDir is where the client keeps its device credentials.
	SessionDir string
	// DeviceName is shown in the phone's linked devices list.
	DeviceName string
}

// Factory builds a fresh Client.
type Factory func(ctx context.Context, opts Options) (Client, error)
