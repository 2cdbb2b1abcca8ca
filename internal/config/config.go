// ABOUTME: Configuration loading and parsing for the fleetward server
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fleetward server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Fleet    FleetConfig    `yaml:"fleet"`
	Operator OperatorConfig `yaml:"operator"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FleetConfig holds the shared fleet key agents sign requests with.
// Compromise of this key compromises the fleet.
type FleetConfig struct {
	Key string `yaml:"key"`
}

// OperatorConfig holds dashboard authentication configuration. Exactly
// one operator user exists; PasswordHash (bcrypt) takes precedence over
// the plain Password when both are set.
type OperatorConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ExpandEnv replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func ExpandEnv(s string) string {
	return expandEnvVars(s)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Fleet.Key == "" {
		return fmt.Errorf("fleet.key is required")
	}
	if c.Operator.JWTSecret == "" {
		return fmt.Errorf("operator.jwt_secret is required")
	}
	if c.Operator.User == "" {
		return fmt.Errorf("operator.user is required")
	}
	if c.Operator.Password == "" && c.Operator.PasswordHash == "" {
		return fmt.Errorf("operator.password or operator.password_hash is required")
	}
	return nil
}
