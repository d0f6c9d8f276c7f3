package intent

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is a same-origin browser client; a stricter allowlist
	// belongs at the ingress layer, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// handleSubscribe upgrades the connection, sends an initial snapshot of
// every store visible to the caller, then streams bus events until the
// client disconnects or a write fails. A client that falls behind is not
// disconnected; the bus drops the events its buffer cannot hold.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.bus.Degraded() {
		http.Error(w, "event bus is degraded; live updates are unavailable", http.StatusServiceUnavailable)
		return
	}

	identity := callerIdentity(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()

	snapshot, err := s.svc.List(ctx, identity)
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = conn.WriteJSON(map[string]interface{}{"type": "snapshot", "stores": snapshot})
	}

	events, cancel := s.bus.Subscribe("")
	defer cancel()

	// Detect client-initiated close without processing incoming frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !s.eventVisible(ctx, evt.Store, identity) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(map[string]interface{}{"type": "event", "event": evt}); err != nil {
				return
			}
		}
	}
}

// eventVisible re-checks ownership per event since the subscriber may
// have connected before some of the stores it now hears about existed.
func (s *Server) eventVisible(ctx context.Context, storeName, identity string) bool {
	if isPrivileged(identity) {
		return true
	}
	snap, err := s.svc.Get(ctx, storeName, identity)
	if err != nil {
		return false
	}
	return snap.Owner == identity
}
