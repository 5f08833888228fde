package config

import (
	"strings"
	"testing"
)

// validConfig returns a configuration that passes validation; tests mutate
// one aspect at a time.
func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Expected default config to validate, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for unknown log level")
	}
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for zero shutdown timeout")
	}
}

func TestValidate_DuplicateStorageServiceNames(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Services = []StorageServiceConfig{
		{Name: "blob", Type: "memory"},
		{Name: "blob", Type: "fs"},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for duplicate service names")
	}
	if !strings.Contains(err.Error(), "duplicate service name") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_UnknownDefaultService(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Default = "missing"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for unknown default service")
	}
	if !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_UnknownStorageServiceType(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Services = []StorageServiceConfig{
		{Name: "blob", Type: "ftp"},
	}
	cfg.Storage.Default = "blob"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for unknown storage service type")
	}
}

func TestValidate_DuplicateSinkNames(t *testing.T) {
	cfg := validConfig()
	cfg.Events.Sinks = []EventSinkConfig{
		{Name: "audit", Type: "log"},
		{Name: "audit", Type: "log"},
	}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for duplicate sink names")
	}
}
