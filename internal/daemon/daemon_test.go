package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/lock"
	"github.com/matheus3301/wppbridge/internal/status"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.LogLevel = "error"
	// Keep the test from scanning the host's processes or reaching the network.
	cfg.Reaper.ProcessPatterns = nil
	cfg.Reaper.TempGlobs = nil
	cfg.Timings.Settle = time.Hour
	return cfg
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(testConfig(t))); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)

	var (
		srv     *Server
		machine *status.Machine
	)
	app := fx.New(Module(cfg), fx.NopLogger, fx.Populate(&srv, &machine))
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A second daemon in the same data dir is refused.
	var held *lock.HeldError
	if _, err := lock.Acquire(cfg.DataDir); !errors.As(err, &held) {
		t.Errorf("second Acquire() error = %v, want HeldError", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/status")
	if err != nil {
		t.Fatal(err)
	}
	var body api.StatusResponse
	err = json.NewDecoder(resp.Body).Decode(&body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if body.Status != status.Connecting || body.Ready || body.Version != api.Version {
		t.Errorf("status = %+v", body)
	}
	if machine.Current() != status.Connecting {
		t.Errorf("machine = %s, want CONNECTING", machine.Current())
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = l.Release()
}

func TestServerStartFailsOnBusyAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	cfg := config.Default()
	cfg.HTTP.Addr = ln.Addr().String()
	handler := api.New(api.Deps{Logger: zap.NewNop()}, nil)
	srv := NewServer(cfg, handler, zap.NewNop())
	if err := srv.Start(); err == nil {
		srv.Stop(context.Background())
		t.Fatal("Start() succeeded on a busy address")
	}
}
