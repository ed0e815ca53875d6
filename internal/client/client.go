// Package client is the HTTP client for a running wppd, shared by wppctl
// and wpptui.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/credential"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
)

// APIError is the failure body every route answers with.
type APIError struct {
	Code    int
	Message string
	Status  string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s (status %s, http %d)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (http %d)", e.Message, e.Code)
}

// IsNotReady reports whether err is the daemon declining a request because
// the connection is not READY.
func IsNotReady(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		apiErr.Status != "" && apiErr.Status != string(status.Ready)
}

// ContactList is the body of GET /contacts.
type ContactList struct {
	Contacts []store.Contact `json:"contacts"`
	Cached   bool            `json:"cached"`
}

// ChatList is the body of GET /chats.
type ChatList struct {
	Chats  []store.Chat `json:"chats"`
	Cached bool         `json:"cached"`
}

// ChatDetail is the body of GET /chat/{id} and GET /chat/{id}/messages.
type ChatDetail struct {
	Chat     store.Chat        `json:"chat"`
	Messages []api.MessageView `json:"messages"`
}

// SendResult is the reply to a sent message.
type SendResult struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// SyncResult is the reply to POST /sync/all.
type SyncResult struct {
	Contacts int        `json:"contacts"`
	Chats    int        `json:"chats"`
	LastSync *time.Time `json:"lastSync"`
}

// Client talks to a running wppd over HTTP.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for addr. A bare host:port gets an http:// scheme.
func New(addr string, timeout time.Duration) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// Base returns the daemon URL requests are sent to.
func (c *Client) Base() string { return c.base }

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var st api.StatusResponse
	err := c.Get(ctx, "/status", nil, &st)
	return st, err
}

func (c *Client) Contacts(ctx context.Context) (ContactList, error) {
	var list ContactList
	err := c.Get(ctx, "/contacts", nil, &list)
	return list, err
}

func (c *Client) Chats(ctx context.Context, groups bool) (ChatList, error) {
	var list ChatList
	err := c.Get(ctx, "/chats", url.Values{"groups": {strconv.FormatBool(groups)}}, &list)
	return list, err
}

// Chat returns one chat and, when includeMessages is set, up to limit of
// its recent messages.
func (c *Client) Chat(ctx context.Context, id string, includeMessages bool, limit int) (ChatDetail, error) {
	q := url.Values{
		"includeMessages": {strconv.FormatBool(includeMessages)},
		"limit":           {strconv.Itoa(limit)},
	}
	var detail ChatDetail
	err := c.Get(ctx, chatPath(id), q, &detail)
	return detail, err
}

func (c *Client) Messages(ctx context.Context, id string, limit int) (ChatDetail, error) {
	var detail ChatDetail
	err := c.Get(ctx, chatPath(id)+"/messages", url.Values{"limit": {strconv.Itoa(limit)}}, &detail)
	return detail, err
}

// Send sends text to a phone number or JID through /send-message.
func (c *Client) Send(ctx context.Context, to, text string) (SendResult, error) {
	var res SendResult
	err := c.Post(ctx, "/send-message", map[string]string{"to": to, "message": text}, &res)
	return res, err
}

// SendToChat sends text to an existing chat through /chat/{id}/send.
func (c *Client) SendToChat(ctx context.Context, chatID, text string) (SendResult, error) {
	var res SendResult
	err := c.Post(ctx, chatPath(chatID)+"/send", map[string]string{"message": text}, &res)
	return res, err
}

func (c *Client) SyncAll(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	err := c.Post(ctx, "/sync/all", nil, &res)
	return res, err
}

// Connect asks the daemon to start a connection attempt.
func (c *Client) Connect(ctx context.Context) (string, error) {
	return c.action(ctx, "/account/connect")
}

// Reset wipes the paired session so a new account can be linked.
func (c *Client) Reset(ctx context.Context) (string, error) {
	return c.action(ctx, "/account/reset")
}

func (c *Client) Logout(ctx context.Context) (string, error) {
	return c.action(ctx, "/account/logout")
}

func (c *Client) RefreshTokens(ctx context.Context) (credential.Credentials, error) {
	var resp struct {
		Tokens credential.Credentials `json:"tokens"`
	}
	err := c.Post(ctx, "/tokens/refresh", nil, &resp)
	return resp.Tokens, err
}

// QRPNG returns the pending pairing code as a PNG image.
func (c *Client) QRPNG(ctx context.Context) ([]byte, error) {
	return c.GetRaw(ctx, "/qr.png")
}

// action POSTs to path and returns the reply's message.
func (c *Client) action(ctx context.Context, path string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.Post(ctx, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.Message == "" {
		return "OK", nil
	}
	return resp.Message, nil
}

func chatPath(id string) string {
	return "/chat/" + url.PathEscape(id)
}

// Get decodes the JSON body of GET path into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON (when non-nil) and decodes the reply into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// GetRaw returns the undecoded body of GET path.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(code int, data []byte) error {
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
		Status  string `json:"status"`
	}
	e := &APIError{Code: code}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		e.Message = body.Error
		if body.Details != "" {
			e.Message += ": " + body.Details
		}
		e.Status = body.Status
		return e
	}
	e.Message = strings.TrimSpace(string(data))
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	return e
}
