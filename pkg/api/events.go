package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// visible reports whether a caller with auth may see ev. Unscoped admins
// see every event, everyone else only those of their organizations.
func visible(auth catalog.AuthContext, ev realtime.Event) bool {
	if auth.IsAdmin && len(auth.OrgUUIDs) == 0 {
		return true
	}
	return auth.InScope(ev.OrgGUID)
}

// HandleEvents streams catalog notifications over a WebSocket. Each
// message is one JSON event. Clients that fall behind miss events.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	a := authContext(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id, events := s.hub.Register()
	defer s.hub.Unregister(id)
	s.metrics.StreamListeners.Inc()
	defer s.metrics.StreamListeners.Dec()
	s.log.Debugf("event stream %d opened from %s", id, r.RemoteAddr)

	// The read loop only handles control frames and notices the client
	// leaving.
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !visible(a, ev) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debugf("event stream %d write failed: %v", id, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			s.log.Debugf("event stream %d closed by client", id)
			return
		case <-r.Context().Done():
			return
		}
	}
}
