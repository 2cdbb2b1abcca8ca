// ABOUTME: Tests for the signed protocol client and the command runner
// ABOUTME: Uses a fake gateway that verifies every request signature

package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetward/fleetward/internal/auth"
)

const testKey = "agent-test-key"

// fakeGateway records signed agent requests and serves canned claims.
type fakeGateway struct {
	t  *testing.T
	mu sync.Mutex

	heartbeats []Heartbeat
	chunks     []string
	results    []Result
	claims     []json.RawMessage
}

func (f *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var hb Heartbeat
		f.verifyAndDecode(r, &hb)
		f.mu.Lock()
		f.heartbeats = append(f.heartbeats, hb)
		f.mu.Unlock()
		io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/api/agents/web-01/next-command", func(w http.ResponseWriter, r *http.Request) {
		f.verifyAndDecode(r, nil)
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.claims) == 0 {
			io.WriteString(w, `{"command":null}`)
			return
		}
		next := f.claims[0]
		f.claims = f.claims[1:]
		json.NewEncoder(w).Encode(map[string]json.RawMessage{"command": next})
	})
	mux.HandleFunc("/api/command-chunk", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Chunk string `json:"chunk"`
		}
		f.verifyAndDecode(r, &payload)
		f.mu.Lock()
		f.chunks = append(f.chunks, payload.Chunk)
		f.mu.Unlock()
		io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("/api/command-result", func(w http.ResponseWriter, r *http.Request) {
		var result Result
		f.verifyAndDecode(r, &result)
		f.mu.Lock()
		f.results = append(f.results, result)
		f.mu.Unlock()
		io.WriteString(w, `{"ack":true}`)
	})
	return mux
}

// verifyAndDecode checks the HMAC signature the way the gateway does,
// treating a bodyless request as the literal "{}".
func (f *fakeGateway) verifyAndDecode(r *http.Request, out any) {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)

	signed := body
	if len(signed) == 0 {
		signed = []byte("{}")
	}
	require.Equal(f.t, "web-01", r.Header.Get(auth.HeaderAgentID))
	require.True(f.t, auth.Verify(r.Header.Get(auth.HeaderSignature), signed, testKey),
		"signature mismatch for %s %s", r.Method, r.URL.Path)

	if out != nil {
		require.NoError(f.t, json.Unmarshal(body, out))
	}
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	t.Helper()
	f := &fakeGateway{t: t}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientHeartbeat(t *testing.T) {
	f, srv := newFakeGateway(t)
	client := NewClient(srv.URL, "web-01", testKey, testLogger())

	hb := &Heartbeat{
		AgentID:      "web-01",
		Apps:         map[string]AppState{"nginx": {Type: "docker", Status: "unknown", Health: "unknown"}},
		Logs:         []string{},
		AgentVersion: "1.0.0",
		OSUpdate:     OSUpdate{PkgManager: "apt", Upgrades: 2, Status: "outdated"},
	}
	require.NoError(t, client.SendHeartbeat(context.Background(), hb))

	require.Len(t, f.heartbeats, 1)
	assert.Equal(t, "web-01", f.heartbeats[0].AgentID)
	assert.Equal(t, 2, f.heartbeats[0].OSUpdate.Upgrades)
}

func TestClientNextCommandEmpty(t *testing.T) {
	_, srv := newFakeGateway(t)
	client := NewClient(srv.URL, "web-01", testKey, testLogger())

	cmd, err := client.NextCommand(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestClientNextCommandClaim(t *testing.T) {
	f, srv := newFakeGateway(t)
	f.claims = append(f.claims, json.RawMessage(`{"command_id":"cmd-1","commands":["uptime"]}`))
	client := NewClient(srv.URL, "web-01", testKey, testLogger())

	cmd, err := client.NextCommand(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "cmd-1", cmd.CommandID)
	assert.Equal(t, []string{"uptime"}, cmd.Commands)

	cmd, err = client.NextCommand(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestRunnerExecuteStreamsAndReports(t *testing.T) {
	f, srv := newFakeGateway(t)

	cfg := &Config{}
	cfg.Agent.ID = "web-01"
	cfg.Agent.ServerURL = srv.URL
	cfg.Agent.Key = testKey
	cfg.Agent.PollInterval = time.Second
	cfg.Agent.CommandTimeout = 10 * time.Second

	runner := NewRunner(cfg, testLogger())
	runner.execute(context.Background(), &Command{
		CommandID: "cmd-1",
		Commands:  []string{"echo hello", "exit 2", "echo never"},
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	// Command echo, output, and exit markers arrive as chunks in order;
	// the sequence stops at the first failing command.
	assert.Equal(t, []string{
		"$ echo hello\n",
		"hello\n",
		"[EXIT 0]\n",
		"$ exit 2\n",
		"[EXIT 2]\n",
	}, f.chunks)

	require.Len(t, f.results, 1)
	result := f.results[0]
	assert.Equal(t, "cmd-1", result.CommandID)
	assert.Equal(t, "failed", result.Status)
	assert.Contains(t, result.Logs, "hello\n")
}
