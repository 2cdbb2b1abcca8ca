// ABOUTME: Signed HTTP client for the fleetward agent protocol
// ABOUTME: Heartbeats, command claims, output chunks, and result submission

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fleetward/fleetward/internal/auth"
)

// Heartbeat is the payload of POST /api/heartbeat.
type Heartbeat struct {
	AgentID      string              `json:"agent_id"`
	Apps         map[string]AppState `json:"apps"`
	Logs         []string            `json:"logs"`
	AgentVersion string              `json:"agent_version"`
	OSUpdate     OSUpdate            `json:"os_update"`
}

// Command is a claimed command payload. Commands holds the literal shell
// commands to run; Command optionally names a canned command type the
// agent expands itself.
type Command struct {
	CommandID string   `json:"command_id"`
	Command   string   `json:"command"`
	Commands  []string `json:"commands"`
}

// Result is the payload of POST /api/command-result.
type Result struct {
	CommandID string   `json:"command_id"`
	Status    string   `json:"status"`
	Output    []string `json:"output"`
	Duration  int      `json:"duration"`
	Logs      string   `json:"logs"`
}

// Client talks to the gateway, signing every request with the shared
// fleet key.
type Client struct {
	baseURL    string
	agentID    string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an agent protocol client for the given gateway URL.
func NewClient(serverURL, agentID, key string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		agentID:    agentID,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "client"),
	}
}

// SendHeartbeat reports the agent's current state to the gateway.
func (c *Client) SendHeartbeat(ctx context.Context, hb *Heartbeat) error {
	body, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}
	return c.post(ctx, "/api/heartbeat", body, nil)
}

// NextCommand claims the oldest pending command for this agent. An empty
// queue returns (nil, nil).
func (c *Client) NextCommand(ctx context.Context) (*Command, error) {
	var response struct {
		Command *Command `json:"command"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents/"+c.agentID+"/next-command", nil, &response); err != nil {
		return nil, err
	}
	return response.Command, nil
}

// SendChunk forwards one piece of command output to the gateway.
func (c *Client) SendChunk(ctx context.Context, commandID, chunk string) error {
	body, err := json.Marshal(map[string]string{"command_id": commandID, "chunk": chunk})
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}
	return c.post(ctx, "/api/command-chunk", body, nil)
}

// SendResult submits the final outcome of a command run.
func (c *Client) SendResult(ctx context.Context, result *Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return c.post(ctx, "/api/command-result", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do sends a signed request. Bodyless requests sign the literal "{}" so
// every request carries a verifiable signature.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	signed := body
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	} else {
		signed = []byte("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderAgentID, c.agentID)
	req.Header.Set(auth.HeaderSignature, auth.Sign(signed, c.key))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
