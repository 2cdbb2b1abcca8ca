// ABOUTME: Main agent loop: heartbeat, command poll, execute, sleep
// ABOUTME: Failures are logged and the loop continues; only ctx stops it

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// logsTailLimit caps the logs field of a command result.
const logsTailLimit = 4000

// tailString returns at most limit trailing bytes of s without splitting
// a multi-byte rune at the cut point.
func tailString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := len(s) - limit
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

// Runner drives the agent: it heartbeats, polls for commands, executes
// them, and streams their output back.
type Runner struct {
	config *Config
	client *Client
	logger *slog.Logger
}

// NewRunner creates a runner from an agent configuration.
func NewRunner(cfg *Config, logger *slog.Logger) *Runner {
	return &Runner{
		config: cfg,
		client: NewClient(cfg.Agent.ServerURL, cfg.Agent.ID, cfg.Agent.Key, logger),
		logger: logger.With("component", "runner"),
	}
}

// Run loops until ctx is cancelled. Each iteration sends a heartbeat,
// polls for a command, executes it if one was claimed, then sleeps for
// the poll interval. A failed heartbeat never stops command polling and
// vice versa.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("agent started",
		"agent_id", r.config.Agent.ID,
		"server_url", r.config.Agent.ServerURL,
		"poll_interval", r.config.Agent.PollInterval)

	for {
		if err := r.client.SendHeartbeat(ctx, r.buildHeartbeat(ctx)); err != nil {
			r.logger.Warn("heartbeat failed", "error", err)
		}

		cmd, err := r.client.NextCommand(ctx)
		if err != nil {
			r.logger.Warn("command poll failed", "error", err)
		} else if cmd != nil {
			r.execute(ctx, cmd)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.Agent.PollInterval):
		}
	}
}

func (r *Runner) buildHeartbeat(ctx context.Context) *Heartbeat {
	return &Heartbeat{
		AgentID:      r.config.Agent.ID,
		Apps:         collectAppsState(r.config.Apps),
		Logs:         []string{},
		AgentVersion: Version(),
		OSUpdate:     collectOSUpdate(ctx),
	}
}

// execute runs a claimed command's shell commands in order, streaming
// each output line as a chunk. The first nonzero exit code stops the
// sequence and marks the result failed.
func (r *Runner) execute(ctx context.Context, cmd *Command) {
	r.logger.Info("executing command", "command_id", cmd.CommandID)
	start := time.Now()

	var outputs []string
	status := "success"

	sendChunk := func(chunk string) {
		if err := r.client.SendChunk(ctx, cmd.CommandID, chunk); err != nil {
			r.logger.Warn("chunk send failed", "command_id", cmd.CommandID, "error", err)
		}
	}

	for _, command := range expandCommands(cmd) {
		sendChunk(fmt.Sprintf("$ %s\n", command))

		runCtx, cancel := context.WithTimeout(ctx, r.config.Agent.CommandTimeout)
		code := streamCommand(runCtx, command, func(line string) {
			outputs = append(outputs, line)
			sendChunk(line)
		})
		cancel()

		if code != 0 {
			status = "failed"
			break
		}
	}

	result := &Result{
		CommandID: cmd.CommandID,
		Status:    status,
		Output:    outputs,
		Duration:  int(time.Since(start).Seconds()),
		Logs:      tailString(strings.Join(outputs, ""), logsTailLimit),
	}
	if err := r.client.SendResult(ctx, result); err != nil {
		r.logger.Warn("result send failed", "command_id", cmd.CommandID, "error", err)
	}

	r.logger.Info("command finished",
		"command_id", cmd.CommandID,
		"status", status,
		"duration", result.Duration)
}
