package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewAddsScheme(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:3333", "http://127.0.0.1:3333"},
		{"http://host:1/", "http://host:1"},
		{"https://host", "https://host"},
	}
	for _, tt := range tests {
		if got := New(tt.addr, 0).Base(); got != tt.want {
			t.Errorf("New(%q).Base() = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestChatEscapesIDAndPassesQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.EscapedPath(), r.URL.RawQuery
		_, _ = w.Write([]byte(`{"success":true,"chat":{"id":"1@s.whatsapp.net","name":"Ana"},"messages":[{"id":"m1","body":"hola","fromMe":true,"timestamp":5}]}`))
	}))
	defer srv.Close()

	detail, err := New(srv.URL, time.Second).Chat(context.Background(), "1@s.whatsapp.net", false, 7)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/chat/1@s.whatsapp.net" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "includeMessages=false&limit=7" {
		t.Errorf("query = %q", gotQuery)
	}
	if detail.Chat.Name != "Ana" || len(detail.Messages) != 1 || !detail.Messages[0].FromMe {
		t.Errorf("detail = %+v", detail)
	}
}

func TestSendToChatBody(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/g@g.us/send" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"success":true,"messageId":"XYZ"}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, time.Second).SendToChat(context.Background(), "g@g.us", "hey")
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "XYZ" || body["message"] != "hey" {
		t.Errorf("res = %+v body = %v", res, body)
	}
}

func TestErrorDecoding(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		body      string
		wantMsg   string
		wantReady bool
	}{
		{"not ready", http.StatusBadRequest, `{"success":false,"error":"WhatsApp not ready","status":"QR_READY"}`, "WhatsApp not ready", true},
		{"details", http.StatusInternalServerError, `{"success":false,"error":"Failed","details":"boom"}`, "Failed: boom", false},
		{"plain text", http.StatusBadGateway, "upstream gone\n", "upstream gone", false},
		{"empty", http.StatusServiceUnavailable, "", "Service Unavailable", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).SyncAll(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Code != tt.code || apiErr.Message != tt.wantMsg {
				t.Errorf("apiErr = %+v", apiErr)
			}
			if IsNotReady(err) != tt.wantReady {
				t.Errorf("IsNotReady = %v, want %v", IsNotReady(err), tt.wantReady)
			}
		})
	}
}

func TestActionFallsBackToOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	msg, err := New(srv.URL, time.Second).Connect(context.Background())
	if err != nil || msg != "OK" {
		t.Errorf("Connect() = %q, %v", msg, err)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	if _, err := New(addr, time.Second).Status(context.Background()); err == nil {
		t.Fatal("expected an error for a closed daemon")
	}
}
