package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/wa"
)

const (
	defaultChatMessages = 20
	defaultMessageLimit = 30
	maxMessageLimit     = 500
)

type chatInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	UnreadCount int    `json:"unreadCount"`
}

// MessageView is one message as the chat routes render it. Timestamp is in
// Unix seconds.
type MessageView struct {
	ID          string  `json:"id"`
	Body        string  `json:"body"`
	FromMe      bool    `json:"fromMe"`
	Timestamp   int64   `json:"timestamp"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Type        string  `json:"type"`
	Author      string  `json:"author"`
	IsForwarded bool    `json:"isForwarded"`
	HasMedia    bool    `json:"hasMedia"`
	MediaType   *string `json:"mediaType"`
}

func messageView(m wa.RawMessage) MessageView {
	v := MessageView{
		ID:          m.ID,
		Body:        m.Body,
		FromMe:      m.FromMe,
		Timestamp:   m.Timestamp.Unix(),
		From:        m.From,
		To:          m.To,
		Type:        m.Type,
		Author:      m.Author,
		IsForwarded: m.IsForwarded,
		HasMedia:    m.HasMedia,
	}
	if v.Author == "" {
		v.Author = m.From
	}
	if m.Type != "text" {
		t := m.Type
		v.MediaType = &t
	}
	return v
}

func messageViews(msgs []wa.RawMessage) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView(m)
	}
	return out
}

func chatInfoOf(c wa.RawChat) chatInfo {
	return chatInfo{ID: c.ID, Name: c.Name, IsGroup: c.IsGroup, UnreadCount: c.UnreadCount}
}

// parseLimit reads a positive limit query parameter, falling back to def
// and capping at maxMessageLimit.
func parseLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxMessageLimit)
}

// handleChat returns the chat summary and, unless includeMessages=false,
// its most recent messages.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	client, ok := s.readyClient(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	chat, err := client.ChatByID(r.Context(), id)
	if err != nil {
		s.chatLookupFailed(w, id, err)
		return
	}

	messages := []MessageView{}
	if r.URL.Query().Get("includeMessages") != "false" {
		msgs, err := client.FetchMessages(r.Context(), id, parseLimit(r, defaultChatMessages))
		if err != nil {
			s.logger.Warn("could not fetch messages", zap.String("chat", id), zap.Error(err))
		} else {
			messages = messageViews(msgs)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"chat":         chatInfoOf(chat),
		"messages":     messages,
		"messageCount": len(messages),
		"hasMessages":  len(messages) > 0,
	})
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	client, ok := s.readyClient(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	chat, err := client.ChatByID(r.Context(), id)
	if err != nil {
		s.chatLookupFailed(w, id, err)
		return
	}
	msgs, err := client.FetchMessages(r.Context(), id, parseLimit(r, defaultMessageLimit))
	if err != nil {
		s.chatLookupFailed(w, id, err)
		return
	}

	views := messageViews(msgs)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"chat":         chatInfoOf(chat),
		"messages":     views,
		"messageCount": len(views),
		"timestamp":    s.now().UnixMilli(),
	})
}

type chatSendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	client, ok := s.readyClient(w)
	if !ok {
		return
	}
	var req chatSendRequest
	if err := decodeBody(w, r, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	id, err := client.SendText(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": id})
}

func (s *Server) chatLookupFailed(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, wa.ErrChatNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Chat not found",
			"details": err.Error(),
			"chatId":  id,
		})
		return
	}
	s.logger.Error("chat lookup failed", zap.String("chat", id), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}
