// ABOUTME: HTTP API handlers for operator-facing endpoints
// ABOUTME: Login, agent listing, command enqueue, metrics, and the SSE stream

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetward/fleetward/internal/store"
)

// loginRequest is the JSON request body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// agentSnapshot is the JSON shape of an agent in API responses and
// agent_update events.
type agentSnapshot struct {
	ID        string          `json:"id"`
	LastSeen  string          `json:"last_seen"`
	Status    string          `json:"status"`
	AppsState json.RawMessage `json:"apps_state"`
	OSUpdate  json.RawMessage `json:"os_update"`
}

// agentListEntry extends the snapshot with derived fields for the
// dashboard list view.
type agentListEntry struct {
	agentSnapshot
	UptimeSeconds int64 `json:"uptime_seconds"`
	Outdated      bool  `json:"outdated"`
}

// metricsResponse is the JSON response for GET /api/metrics.
type metricsResponse struct {
	AgentsTotal        int              `json:"agents_total"`
	AgentsOnline       int              `json:"agents_online"`
	UptimeSeconds      map[string]int64 `json:"uptime_seconds"`
	CommandSuccessRate *float64         `json:"command_success_rate_last100"`
}

// tokenTTL is the lifetime of operator tokens.
const tokenTTL = 8 * time.Hour

func snapshotAgent(agent *store.Agent) agentSnapshot {
	snap := agentSnapshot{
		ID:       agent.ID,
		LastSeen: agent.LastSeen.UTC().Format(time.RFC3339),
		Status:   agent.Status,
	}
	if len(agent.AppsState) > 0 {
		snap.AppsState = agent.AppsState
	}
	if len(agent.OSUpdate) > 0 {
		snap.OSUpdate = agent.OSUpdate
	}
	return snap
}

// secondsSince clamps negative clock skew to zero.
func secondsSince(t time.Time) int64 {
	s := int64(time.Since(t).Seconds())
	if s < 0 {
		return 0
	}
	return s
}

// isOutdated checks the opaque os_update payload for a positive top-level
// "upgrades" count. This is the only field the server ever looks at.
func isOutdated(osUpdate json.RawMessage) bool {
	if len(osUpdate) == 0 {
		return false
	}
	var probe struct {
		Upgrades float64 `json:"upgrades"`
	}
	if err := json.Unmarshal(osUpdate, &probe); err != nil {
		return false
	}
	return probe.Upgrades > 0
}

// handleLogin handles POST /api/auth/login for the single operator user.
// A bcrypt password_hash takes precedence over the plain password when
// both are configured.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	op := g.config.Operator
	if req.Username != op.User || !g.checkPassword(req.Password) {
		g.writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := g.verifier.Generate(op.User, tokenTTL)
	if err != nil {
		g.logger.Error("failed to generate token", "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (g *Gateway) checkPassword(password string) bool {
	op := g.config.Operator
	if op.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) == nil
	}
	return password == op.Password
}

// handleListAgents handles GET /api/agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := g.store.ListAgents(r.Context())
	if err != nil {
		g.logger.Error("failed to list agents", "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]agentListEntry, 0, len(agents))
	for _, a := range agents {
		response = append(response, agentListEntry{
			agentSnapshot: snapshotAgent(a),
			UptimeSeconds: secondsSince(a.LastSeen),
			Outdated:      isOutdated(a.OSUpdate),
		})
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleGetAgent handles GET /api/agents/{id}.
func (g *Gateway) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agentID := agentIDFromPath(r.URL.Path)
	agent, err := g.store.GetAgent(r.Context(), agentID)
	if errors.Is(err, store.ErrNotFound) {
		g.writeJSONError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get agent", "agent_id", agentID, "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, snapshotAgent(agent))
}

// handleEnqueueCommand handles POST /api/agents/{id}/commands. The body is
// stored as the opaque command payload; a command_id is accepted from the
// caller or assigned here.
func (g *Gateway) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	g.enqueueCommand(w, r, agentIDFromPath(r.URL.Path), body)
}

// handleSudoCheck handles POST /api/agents/{id}/sudo-check: a canned
// command the agent expands to a passwordless-sudo probe.
func (g *Gateway) handleSudoCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := map[string]any{"command": "sudo_check", "commands": []any{}}
	g.enqueueCommand(w, r, agentIDFromPath(r.URL.Path), body)
}

func (g *Gateway) enqueueCommand(w http.ResponseWriter, r *http.Request, agentID string, body map[string]any) {
	commandID, _ := body["command_id"].(string)
	if commandID == "" {
		commandID = uuid.New().String()
		body["command_id"] = commandID
	}

	payload, err := json.Marshal(body)
	if err != nil {
		g.writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	cmd := &store.Command{
		CommandID: commandID,
		AgentID:   agentID,
		Payload:   payload,
		Status:    store.CommandStatusPending,
	}
	if err := g.store.CreateCommand(r.Context(), cmd); err != nil {
		if errors.Is(err, store.ErrDuplicateCommand) {
			g.writeJSONError(w, http.StatusConflict, "command id already exists")
			return
		}
		g.logger.Error("failed to enqueue command", "command_id", commandID, "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("command enqueued",
		"command_id", commandID,
		"agent_id", agentID)

	g.writeJSON(w, http.StatusOK, map[string]any{
		"queued":     true,
		"agent_id":   agentID,
		"command_id": commandID,
	})
}

// handleMetrics handles GET /api/metrics.
func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := g.store.ListAgents(r.Context())
	if err != nil {
		g.logger.Error("failed to list agents", "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := metricsResponse{
		AgentsTotal:   len(agents),
		UptimeSeconds: make(map[string]int64, len(agents)),
	}
	for _, a := range agents {
		if a.Status == store.AgentStatusOnline {
			resp.AgentsOnline++
		}
		resp.UptimeSeconds[a.ID] = secondsSince(a.LastSeen)
	}

	recent, err := g.store.ListRecentCommands(r.Context(), 100)
	if err != nil {
		g.logger.Error("failed to list commands", "error", err)
		g.writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(recent) > 0 {
		succeeded := 0
		for _, c := range recent {
			if c.Status == store.CommandStatusSuccess {
				succeeded++
			}
		}
		rate := float64(succeeded) / float64(len(recent))
		resp.CommandSuccessRate = &rate
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// handleCommandRoutes dispatches /api/commands/{id}/stream.
func (g *Gateway) handleCommandRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/commands/")
	commandID, sub, _ := strings.Cut(rest, "/")
	if commandID == "" || sub != "stream" {
		http.NotFound(w, r)
		return
	}
	g.handleCommandStream(w, r, commandID)
}

// handleCommandStream serves the catch-up-then-live text event stream for
// one command. The subscription is taken out before the persisted output
// is replayed, so a chunk arriving mid-replay is delivered at least once
// rather than lost.
func (g *Gateway) handleCommandStream(w http.ResponseWriter, r *http.Request, commandID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := g.streams.Subscribe(r.Context(), commandID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Catch-up: replay persisted output line by line. An unknown command
	// id simply has nothing to replay; the live tail still works once the
	// command exists.
	cmd, err := g.store.GetCommand(r.Context(), commandID)
	if err == nil && cmd.Output != "" {
		writeSSEData(w, cmd.Output)
		flusher.Flush()
	}

	// Live tail: suspend on the subscription until the next chunk or
	// until the client goes away.
	for {
		chunk, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		writeSSEData(w, chunk)
		flusher.Flush()
	}
}

// writeSSEData frames data for an SSE stream, one frame per line. A chunk
// carrying interior newlines must be split here: a raw newline inside a
// frame would parse as a field separator and the rest of the chunk would
// be dropped by the client. Each line keeps its own trailing newline; the
// frame is terminated with a blank line either way.
func writeSSEData(w http.ResponseWriter, data string) {
	for _, line := range strings.SplitAfter(data, "\n") {
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		} else {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// writeJSONError writes a JSON error response.
func (g *Gateway) writeJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
