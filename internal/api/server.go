// Package api serves the daemon's HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/credential"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	cachesync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// Version is reported by GET /status.
const Version = "1.2.1"

const errNotReady = "WhatsApp not ready"

// Connection exposes the connection context.
type Connection interface {
	Snapshot() status.Snapshot
	ReadyClient() (wa.Client, bool)
}

// Lifecycle is the part of the supervisor the API may drive.
type Lifecycle interface {
	Start()
	Reset(ctx context.Context)
	Logout(ctx context.Context) error
}

// Cache is the contact/chat sync engine.
type Cache interface {
	SyncContacts(ctx context.Context) ([]store.Contact, error)
	SyncChats(ctx context.Context) ([]store.Chat, error)
	SyncAll(ctx context.Context) (cachesync.Result, error)
	Contacts() []store.Contact
	Chats() []store.Chat
	LastSync() time.Time
}

// Tokens is the credential store.
type Tokens interface {
	IsValid() bool
	HasRefreshToken() bool
	Snapshot() credential.Credentials
	Refresh() (credential.Credentials, bool, error)
}

// Sessions reports whether a paired session is on disk.
type Sessions interface {
	HasValidSession() bool
}

// Deps groups the collaborators of a Server.
type Deps struct {
	Connection Connection
	Lifecycle  Lifecycle
	Cache      Cache
	Tokens     Tokens
	Sessions   Sessions
	Bus        *bus.Bus
	Logger     *zap.Logger
}

// Server implements the HTTP routes.
type Server struct {
	conn           Connection
	lifecycle      Lifecycle
	cache          Cache
	tokens         Tokens
	sessions       Sessions
	bus            *bus.Bus
	allowedOrigins []string
	logger         *zap.Logger
	now            func() time.Time
}

// New creates a Server. allowedOrigins governs CORS and websocket origin
// checks; "*" allows any origin.
func New(deps Deps, allowedOrigins []string) *Server {
	return &Server{
		conn:           deps.Connection,
		lifecycle:      deps.Lifecycle,
		cache:          deps.Cache,
		tokens:         deps.Tokens,
		sessions:       deps.Sessions,
		bus:            deps.Bus,
		allowedOrigins: allowedOrigins,
		logger:         deps.Logger,
		now:            time.Now,
	}
}

// Handler returns the chi router serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(s.allowedOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/qr.png", s.handleQR)
	r.Get("/contacts", s.handleContacts)
	r.Get("/chats", s.handleChats)
	r.Post("/send-message", s.handleSendMessage)
	r.Post("/sync/all", s.handleSyncAll)
	r.Get("/events", s.handleEvents)

	r.Route("/account", func(r chi.Router) {
		r.Post("/reset", s.handleReset)
		r.Post("/logout", s.handleLogout)
		r.Post("/connect", s.handleConnect)
	})
	r.Post("/tokens/refresh", s.handleTokenRefresh)

	r.Route("/chat/{id}", func(r chi.Router) {
		r.Get("/", s.handleChat)
		r.Get("/messages", s.handleChatMessages)
		r.Post("/send", s.handleChatSend)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

// writeNotReady declines a request that needs a READY connection.
func (s *Server) writeNotReady(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"error":   errNotReady,
		"status":  s.conn.Snapshot().State,
	})
}

// readyClient returns the live client or answers 400 itself.
func (s *Server) readyClient(w http.ResponseWriter) (wa.Client, bool) {
	client, ok := s.conn.ReadyClient()
	if !ok {
		s.writeNotReady(w)
		return nil, false
	}
	return client, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

// optionalTime renders the zero time as JSON null.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
