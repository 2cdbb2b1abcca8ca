// ABOUTME: Handlers for the agent-facing fleet protocol endpoints
// ABOUTME: Heartbeat ingestion, command claims, chunk ingestion, result acks

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fleetward/fleetward/internal/auth"
	"github.com/fleetward/fleetward/internal/store"
)

// heartbeatPayload is the body of POST /api/heartbeat. Apps and OSUpdate
// are opaque to the server; they are stored and forwarded untouched.
type heartbeatPayload struct {
	AgentID      string          `json:"agent_id"`
	Apps         json.RawMessage `json:"apps"`
	Logs         []string        `json:"logs"`
	AgentVersion string          `json:"agent_version"`
	OSUpdate     json.RawMessage `json:"os_update"`
}

// chunkPayload is the body of POST /api/command-chunk.
type chunkPayload struct {
	CommandID string `json:"command_id"`
	Chunk     string `json:"chunk"`
}

// resultPayload is the body of POST /api/command-result.
type resultPayload struct {
	CommandID string   `json:"command_id"`
	Status    string   `json:"status"`
	Output    []string `json:"output"`
	Duration  int      `json:"duration"`
	Logs      string   `json:"logs"`
}

// agentUpdateEvent is pushed to every live observer after a heartbeat.
type agentUpdateEvent struct {
	Type  string        `json:"type"`
	Agent agentSnapshot `json:"agent"`
}

// handleHeartbeat handles POST /api/heartbeat. The HMAC middleware has
// already verified the signature over the raw body; here the payload is
// parsed, the registry upserted, and the update broadcast.
func (g *Gateway) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload heartbeatPayload
	if err := json.Unmarshal(auth.RawBody(r.Context()), &payload); err != nil || payload.AgentID == "" {
		g.writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if payload.AgentID != auth.AgentID(r.Context()) {
		g.writeJSONError(w, http.StatusBadRequest, "agent id mismatch")
		return
	}

	agent := &store.Agent{
		ID:        payload.AgentID,
		LastSeen:  time.Now().UTC(),
		Status:    store.AgentStatusOnline,
		AppsState: payload.Apps,
		OSUpdate:  payload.OSUpdate,
	}
	if err := g.store.UpsertAgent(r.Context(), agent); err != nil {
		g.logger.Error("failed to upsert agent", "agent_id", payload.AgentID, "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.broadcastAgentUpdate(agent)

	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// broadcastAgentUpdate pushes the updated agent snapshot to all connected
// observers. Best-effort: encoding failures are logged, delivery failures
// handled by the hub.
func (g *Gateway) broadcastAgentUpdate(agent *store.Agent) {
	event := agentUpdateEvent{
		Type:  "agent_update",
		Agent: snapshotAgent(agent),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		g.logger.Error("failed to marshal agent update", "error", err)
		return
	}
	g.events.Broadcast(payload)
}

// handleNextCommand handles GET /api/agents/{id}/next-command: the claim
// side of the dispatch queue. The oldest pending command for the agent is
// transitioned to running and returned; an empty queue is an explicit
// {"command":null}, not an error.
func (g *Gateway) handleNextCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agentID := agentIDFromPath(r.URL.Path)
	if agentID != auth.AgentID(r.Context()) {
		g.writeJSONError(w, http.StatusBadRequest, "agent id mismatch")
		return
	}

	cmd, err := g.store.ClaimNext(r.Context(), agentID)
	if errors.Is(err, store.ErrNoPendingCommand) {
		g.writeJSON(w, http.StatusOK, map[string]any{"command": nil})
		return
	}
	if err != nil {
		g.logger.Error("failed to claim command", "agent_id", agentID, "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("command claimed",
		"command_id", cmd.CommandID,
		"agent_id", agentID)
	g.writeJSON(w, http.StatusOK, map[string]any{"command": json.RawMessage(cmd.Payload)})
}

// handleCommandChunk handles POST /api/command-chunk. Persistence and live
// fan-out are decoupled: a chunk for an unknown command id is dropped
// silently (races between enqueue and first chunk are tolerated), and the
// chunk is always handed to the hub regardless of persistence outcome.
func (g *Gateway) handleCommandChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload chunkPayload
	if err := json.Unmarshal(auth.RawBody(r.Context()), &payload); err != nil || payload.CommandID == "" {
		g.writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := g.store.AppendOutput(r.Context(), payload.CommandID, payload.Chunk); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Error("failed to persist chunk", "command_id", payload.CommandID, "error", err)
		}
		// Fall through: live observers still get the chunk.
	}

	g.streams.Publish(payload.CommandID, payload.Chunk)

	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleCommandResult handles POST /api/command-result. The submission is
// authenticated and acknowledged but not persisted; the terminal status
// lives only in the streamed output markers for now.
//
// TODO: persist the result and call store.CompleteCommand so command rows
// reach a terminal status without replaying output markers.
func (g *Gateway) handleCommandResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload resultPayload
	if err := json.Unmarshal(auth.RawBody(r.Context()), &payload); err != nil || payload.CommandID == "" {
		g.writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	g.logger.Info("command result acknowledged",
		"command_id", payload.CommandID,
		"status", payload.Status,
		"duration", payload.Duration)

	g.writeJSON(w, http.StatusOK, map[string]bool{"ack": true})
}
