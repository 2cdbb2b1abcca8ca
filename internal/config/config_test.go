// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

fleet:
  key: "shared-fleet-key"

operator:
  jwt_secret: "jwt-secret"
  user: "admin"
  password: "hunter2"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Fleet.Key != "shared-fleet-key" {
		t.Errorf("Fleet.Key = %q, want %q", cfg.Fleet.Key, "shared-fleet-key")
	}
	if cfg.Operator.User != "admin" {
		t.Errorf("Operator.User = %q, want %q", cfg.Operator.User, "admin")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_FLEET_KEY", "key-from-env")

	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
fleet:
  key: "${TEST_FLEET_KEY}"
operator:
  jwt_secret: "s"
  user: "admin"
  password: "p"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fleet.Key != "key-from-env" {
		t.Errorf("Fleet.Key = %q, want %q", cfg.Fleet.Key, "key-from-env")
	}
}

func TestLoad_UnsetEnvVarFailsValidation(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
fleet:
  key: "${DEFINITELY_NOT_SET_FLEET_KEY}"
operator:
  jwt_secret: "s"
  user: "admin"
  password: "p"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "fleet.key") {
		t.Errorf("error = %v, want mention of fleet.key", err)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http_addr",
			content: "database:\n  path: db\nfleet:\n  key: k\noperator:\n  jwt_secret: s\n  user: u\n  password: p\n",
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			content: "server:\n  http_addr: a\nfleet:\n  key: k\noperator:\n  jwt_secret: s\n  user: u\n  password: p\n",
			wantErr: "database.path",
		},
		{
			name:    "missing jwt secret",
			content: "server:\n  http_addr: a\ndatabase:\n  path: db\nfleet:\n  key: k\noperator:\n  user: u\n  password: p\n",
			wantErr: "operator.jwt_secret",
		},
		{
			name:    "missing password",
			content: "server:\n  http_addr: a\ndatabase:\n  path: db\nfleet:\n  key: k\noperator:\n  jwt_secret: s\n  user: u\n",
			wantErr: "operator.password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_PasswordHashSatisfiesValidation(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
fleet:
  key: "k"
operator:
  jwt_secret: "s"
  user: "admin"
  password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`)

	if _, err := Load(configPath); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error, got nil")
	}
}
