package api

import (
	"net/http"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/bus"
)

// handleEvents streams session.* bus events to a websocket client until
// either side goes away. Events that overflow a slow client's buffer are
// skipped.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: s.allowedOrigins}
	if slices.Contains(s.allowedOrigins, "*") {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	events, unsub := s.bus.Subscribe("session.", 64)
	defer unsub()

	// The client sends nothing; CloseRead surfaces its close frame.
	ctx := conn.CloseRead(r.Context())

	if err := wsjson.Write(ctx, conn, bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: s.now(),
		Payload:   map[string]any{"to": s.conn.Snapshot().State},
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return
		case evt := <-events:
			if err := wsjson.Write(ctx, conn, evt); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
