package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "INFO"

graph:
  type: "memory"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.AdminKey != "admin" {
		t.Errorf("Expected default admin key 'admin', got %q", cfg.Server.AdminKey)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.Storage.Services) != 1 || cfg.Storage.Services[0].Type != "memory" {
		t.Errorf("Expected one default memory storage service, got %+v", cfg.Storage.Services)
	}
	if cfg.Storage.Default != "default" {
		t.Errorf("Expected default storage service 'default', got %q", cfg.Storage.Default)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path inside a temp dir so the user's real config
	// at ~/.config/castellan/ is never picked up
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Graph.Type != "memory" {
		t.Errorf("Expected default graph type 'memory', got %q", cfg.Graph.Type)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "debug"
  output: "stderr"

server:
  admin_key: "root"
  shutdown_timeout: 10s

graph:
  type: "badger"
  badger:
    path: "/var/lib/castellan"
    block_cache_size_mb: 128

storage:
  default: "archive"
  services:
    - name: "archive"
      type: "fs"
      options:
        path: "/var/lib/castellan/blobs"
    - name: "scratch"
      type: "memory"

events:
  sinks:
    - name: "audit"
      type: "log"
    - name: "hook"
      type: "webhook"
      options:
        url: "https://example.com/events"
        headers:
          Authorization: "Bearer token"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Log level is normalized to uppercase
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Server.AdminKey != "root" {
		t.Errorf("Expected admin key 'root', got %q", cfg.Server.AdminKey)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown_timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Graph.Type != "badger" {
		t.Errorf("Expected graph type 'badger', got %q", cfg.Graph.Type)
	}
	if cfg.Graph.Badger["path"] != "/var/lib/castellan" {
		t.Errorf("Expected badger path, got %v", cfg.Graph.Badger["path"])
	}
	if len(cfg.Storage.Services) != 2 {
		t.Fatalf("Expected 2 storage services, got %d", len(cfg.Storage.Services))
	}
	if cfg.Storage.Default != "archive" {
		t.Errorf("Expected default 'archive', got %q", cfg.Storage.Default)
	}
	if len(cfg.Events.Sinks) != 2 {
		t.Fatalf("Expected 2 event sinks, got %d", len(cfg.Events.Sinks))
	}
	if cfg.Events.Sinks[1].Options["url"] != "https://example.com/events" {
		t.Errorf("Expected webhook url, got %v", cfg.Events.Sinks[1].Options["url"])
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "INFO"
`)

	t.Setenv("CASTELLAN_LOGGING_LEVEL", "error")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected env override level 'ERROR', got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "logging: [broken")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidGraphType(t *testing.T) {
	configPath := writeConfig(t, `
graph:
  type: "neo4j"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown graph type")
	}
}
