package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	cachesync "github.com/matheus3301/wppbridge/internal/sync"
)

type sessionInfo struct {
	Exists bool `json:"exists"`
	Valid  bool `json:"valid"`
}

type tokenInfo struct {
	Valid           bool   `json:"valid"`
	ExpiresAt       *int64 `json:"expiresAt"`
	HasRefreshToken bool   `json:"hasRefreshToken"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Ready         bool         `json:"ready"`
	Authenticated bool         `json:"authenticated"`
	Status        status.State `json:"status"`
	HasQR         bool         `json:"hasQR"`
	QR            string       `json:"qr"`
	ContactsCount int          `json:"contactsCount"`
	ChatsCount    int          `json:"chatsCount"`
	LastSync      *time.Time   `json:"lastSync"`
	Session       sessionInfo  `json:"session"`
	Tokens        tokenInfo    `json:"tokens"`
	Version       string       `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"state":     s.conn.Snapshot().State,
		"timestamp": s.now().UnixMilli(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.conn.Snapshot()
	hasSession := s.sessions.HasValidSession()

	tokens := tokenInfo{
		Valid:           s.tokens.IsValid(),
		HasRefreshToken: s.tokens.HasRefreshToken(),
	}
	if exp := s.tokens.Snapshot().ExpiresAt; !exp.IsZero() {
		ms := exp.UnixMilli()
		tokens.ExpiresAt = &ms
	}

	resp := StatusResponse{
		Ready:         snap.Ready,
		Authenticated: snap.Authenticated,
		Status:        snap.State,
		HasQR:         snap.QR != "",
		QR:            snap.QR,
		ContactsCount: len(s.cache.Contacts()),
		ChatsCount:    len(s.cache.Chats()),
		LastSync:      optionalTime(s.cache.LastSync()),
		Session: sessionInfo{
			Exists: hasSession,
			Valid:  hasSession && snap.Authenticated,
		},
		Tokens:  tokens,
		Version: Version,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	code := s.conn.Snapshot().QR
	if code == "" {
		writeError(w, http.StatusNotFound, "no QR code available")
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 320)
	if err != nil {
		s.logger.Error("failed to render qr code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.conn.ReadyClient(); !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "contacts": nonNil(s.cache.Contacts()), "cached": true})
		return
	}
	contacts, err := s.cache.SyncContacts(r.Context())
	switch {
	case errors.Is(err, cachesync.ErrNotReady):
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "contacts": nonNil(contacts), "cached": true})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "contacts": nonNil(contacts)})
	}
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	includeGroups := r.URL.Query().Get("groups") != "false"

	chats, cached := s.cache.Chats(), true
	if _, ok := s.conn.ReadyClient(); ok {
		fresh, err := s.cache.SyncChats(r.Context())
		switch {
		case errors.Is(err, cachesync.ErrNotReady):
			chats = fresh
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		default:
			chats, cached = fresh, false
		}
	}

	if !includeGroups {
		filtered := make([]store.Chat, 0, len(chats))
		for _, c := range chats {
			if !c.IsGroup {
				filtered = append(filtered, c)
			}
		}
		chats = filtered
	}

	resp := map[string]any{"success": true, "chats": nonNil(chats)}
	if cached {
		resp["cached"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	client, ok := s.readyClient(w)
	if !ok {
		return
	}
	var req sendRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.To) == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "to and message are required")
		return
	}

	if !s.tokens.IsValid() && s.conn.Snapshot().Authenticated {
		if _, _, err := s.tokens.Refresh(); err != nil {
			s.logger.Warn("token refresh before send failed", zap.Error(err))
		}
	}

	s.logger.Info("sending message", zap.String("to", req.To), zap.String("preview", preview(req.Message, 50)))
	id, err := client.SendText(r.Context(), req.To, req.Message)
	if err != nil {
		s.logger.Error("send failed", zap.String("to", req.To), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": id,
		"timestamp": s.now().UnixMilli(),
	})
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.readyClient(w); !ok {
		return
	}
	res, err := s.cache.SyncAll(r.Context())
	switch {
	case errors.Is(err, cachesync.ErrNotReady):
		s.writeNotReady(w)
	case err != nil:
		s.logger.Error("sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"contacts":  res.Contacts,
			"chats":     res.Chats,
			"lastSync":  optionalTime(res.LastSync),
			"timestamp": s.now().UnixMilli(),
		})
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.lifecycle.Reset(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Account reset successfully"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.readyClient(w); !ok {
		return
	}
	if err := s.lifecycle.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

func (s *Server) handleConnect(w http.ResponseWriter, _ *http.Request) {
	state := s.conn.Snapshot().State
	switch state {
	case status.Disconnected, status.AuthFailed, status.Error:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "connection already in progress",
			"status":  state,
		})
		return
	}
	s.lifecycle.Start()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Connecting"})
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.readyClient(w); !ok {
		return
	}
	creds, rotated, err := s.tokens.Refresh()
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case !rotated:
		writeError(w, http.StatusBadRequest, "Failed to refresh tokens")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tokens": creds})
	}
}

// preview cuts s to at most n runes for logging.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
