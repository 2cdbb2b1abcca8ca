// ABOUTME: WebSocket endpoint pushing agent_update events to dashboards
// ABOUTME: Authenticates via token query parameter, closes 4401 on failure

package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single event write to a client.
	writeWait = 10 * time.Second

	// closeUnauthorized is sent when the token query parameter is
	// missing or invalid.
	closeUnauthorized = 4401
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAgentEventsSocket handles GET /api/ws. Browsers cannot set an
// Authorization header on a WebSocket handshake, so the token travels in
// the query string and is checked after the upgrade; a bad token gets a
// close frame with an application close code instead of an HTTP 401.
func (g *Gateway) handleAgentEventsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	subject, err := g.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil || subject != g.config.Operator.User {
		msg := websocket.FormatCloseMessage(closeUnauthorized, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	clientID, events := g.events.Register()
	g.logger.Info("websocket client connected", "client_id", clientID)

	defer func() {
		g.events.Unregister(clientID)
		conn.Close()
		g.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	// The server never expects frames from the client; the read loop only
	// notices the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
				g.logger.Debug("websocket write failed", "client_id", clientID, "error", err)
				return
			}
		}
	}
}
