package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/config"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewServer creates an HTTP server for the API. Nothing listens until Start.
func NewServer(cfg *config.Config, handler *api.Server, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Handler:           handler.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		addr:    cfg.HTTP.Addr,
		timeout: cfg.HTTP.ShutdownTimeout,
		logger:  logger,
	}
}

// Start binds the listen address and serves in the background. A bind
// failure is returned so startup aborts.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("http server starting", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop drains in-flight requests, bounded by ctx and the configured
// shutdown timeout.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", zap.Error(err))
		_ = s.httpServer.Close()
	}
}
