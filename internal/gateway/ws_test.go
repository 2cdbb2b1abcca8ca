// ABOUTME: Tests for the WebSocket agent-events endpoint
// ABOUTME: Covers token rejection and agent_update delivery

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/auth"
)

func wsURL(srv *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "not-a-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeUnauthorized, closeErr.Code)
}

func TestWebSocketDeliversAgentUpdates(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, operatorToken(t, g)), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler registers with the hub after the handshake; wait for it
	// before triggering the broadcast.
	require.Eventually(t, func() bool {
		return g.events.Count() == 1
	}, 3*time.Second, 10*time.Millisecond)

	payload := []byte(`{"agent_id":"web-01","apps":{"nginx":"running"}}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/heartbeat",
		strings.NewReader(string(payload)))
	require.NoError(t, err)
	req.Header.Set(auth.HeaderAgentID, "web-01")
	req.Header.Set(auth.HeaderSignature, auth.Sign(payload, testFleetKey))
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var event agentUpdateEvent
	require.NoError(t, json.Unmarshal(message, &event))
	assert.Equal(t, "agent_update", event.Type)
	assert.Equal(t, "web-01", event.Agent.ID)
	assert.JSONEq(t, `{"nginx":"running"}`, string(event.Agent.AppsState))
}
