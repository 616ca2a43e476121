package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/progression-engine/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEventsWS streams progression events as JSON text frames. With
// ?user_id= only that user's events are sent; otherwise everything.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "events_disabled", "event stream is not enabled")
		return
	}

	userID := r.URL.Query().Get("user_id")
	var filter events.Filter
	if userID != "" {
		filter = events.ForUser(userID)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(filter)
	defer sub.Close()

	s.logger.Info("event stream connected", "user_id", userID, "subscribers", s.hub.Subscribers())

	// The reader only handles control frames and notices the client leaving
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("event stream read error", "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			s.logger.Info("event stream disconnected", "user_id", userID)
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("failed to send event", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
