// ABOUTME: Entry point for the fleetward host agent
// ABOUTME: Usage: fleetward-agent [-config /etc/fleetward/agent.yaml]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fleetward/fleetward/internal/agent"
)

// defaultConfigPath returns the agent config path.
// Priority: AGENT_CONFIG env var > /etc/fleetward/agent.yaml
func defaultConfigPath() string {
	if envPath := os.Getenv("AGENT_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join("/etc", "fleetward", "agent.yaml")
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to agent config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := agent.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("agent_id", cfg.Agent.ID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := agent.NewRunner(cfg, logger)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("agent stopped")
	return nil
}
