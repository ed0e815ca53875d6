package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/config"
)

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"ready":true,"authenticated":true,"status":"READY","contactsCount":3,"chatsCount":2,"lastSync":null,"tokens":{"valid":true,"expiresAt":null},"version":"1.2.1"}`))
	}))
	defer srv.Close()

	out, err := runCtl(t, "--addr", srv.URL, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"READY", "Contacts:", "3", "never", "1.2.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSendCommandPostsBody(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send-message" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true,"messageId":"ABC","timestamp":1}`))
	}))
	defer srv.Close()

	out, err := runCtl(t, "--addr", srv.URL, "send", "5511999999999", "hola")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["to"] != "5511999999999" || got["message"] != "hola" {
		t.Errorf("body = %v", got)
	}
	if !strings.Contains(out, "ABC") {
		t.Errorf("output = %q", out)
	}
}

func TestChatsCommandPassesGroupsFilter(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"success":true,"chats":[{"id":"1@s.whatsapp.net","name":"Ana","unreadCount":2}],"cached":true}`))
	}))
	defer srv.Close()

	out, err := runCtl(t, "--addr", srv.URL, "chats", "--groups=false")
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if query != "groups=false" {
		t.Errorf("query = %q", query)
	}
	if !strings.Contains(out, "Ana") || !strings.Contains(out, "(cached)") {
		t.Errorf("output = %q", out)
	}
}

func TestNotReadyErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"WhatsApp not ready","status":"QR_READY"}`))
	}))
	defer srv.Close()

	_, err := runCtl(t, "--addr", srv.URL, "sync")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *client.APIError", err)
	}
	if apiErr.Code != http.StatusBadRequest || apiErr.Status != "QR_READY" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestQRCommandWithoutPendingCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"CONNECTING","hasQR":false}`))
	}))
	defer srv.Close()

	if _, err := runCtl(t, "--addr", srv.URL, "qr"); err == nil {
		t.Fatal("expected error when no QR is pending")
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if _, err := runCtl(t, "config", "init", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.HTTP.Addr != config.Default().HTTP.Addr {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}

	if _, err := runCtl(t, "config", "init", path); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := runCtl(t, "config", "init", "--force", path); err != nil {
		t.Errorf("init --force: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestResetCommand(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.Method + " " + r.URL.Path
		_, _ = w.Write([]byte(`{"success":true,"message":"Account reset successfully"}`))
	}))
	defer srv.Close()

	out, err := runCtl(t, "--addr", srv.URL, "reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if path != "POST /account/reset" {
		t.Errorf("request = %q", path)
	}
	if strings.TrimSpace(out) != "Account reset successfully" {
		t.Errorf("output = %q", out)
	}
}
