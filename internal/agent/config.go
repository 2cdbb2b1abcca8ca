// ABOUTME: Configuration loading for the fleetward agent
// ABOUTME: YAML agent settings plus the monitored application list

package agent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fleetward/fleetward/internal/config"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultCommandTimeout = 10 * time.Minute

	// defaultVersion is reported in heartbeats unless AGENT_VERSION is set.
	defaultVersion = "1.0.0"
)

// Config represents the complete agent configuration.
type Config struct {
	Agent SettingsConfig `yaml:"agent"`
	Apps  []AppConfig    `yaml:"apps"`
}

// SettingsConfig holds the agent identity and server connection settings.
type SettingsConfig struct {
	ID             string        `yaml:"id"`
	ServerURL      string        `yaml:"server_url"`
	Key            string        `yaml:"key"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// AppConfig describes one application the agent reports state for.
type AppConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load reads an agent configuration file. Environment variables in the
// format ${VAR_NAME} are expanded, so the signing key can live outside
// the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(config.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Agent.PollInterval <= 0 {
		cfg.Agent.PollInterval = defaultPollInterval
	}
	if cfg.Agent.CommandTimeout <= 0 {
		cfg.Agent.CommandTimeout = defaultCommandTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are present.
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	if c.Agent.ServerURL == "" {
		return fmt.Errorf("agent.server_url is required")
	}
	if c.Agent.Key == "" {
		return fmt.Errorf("agent.key is required")
	}
	return nil
}

// Version returns the agent software version reported in heartbeats,
// preferring the AGENT_VERSION environment override.
func Version() string {
	if v := os.Getenv("AGENT_VERSION"); v != "" {
		return v
	}
	return defaultVersion
}
