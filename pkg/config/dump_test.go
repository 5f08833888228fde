package config

import (
	"strings"
	"testing"
)

func TestDumpYAML_RedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Services = []StorageServiceConfig{
		{Name: "archive", Type: "s3", Options: map[string]any{
			"bucket":            "blobs",
			"access_key_id":     "AKIAEXAMPLE",
			"secret_access_key": "supersecret",
		}},
	}
	cfg.Storage.Default = "archive"
	cfg.Events.Sinks = []EventSinkConfig{
		{Name: "hook", Type: "webhook", Options: map[string]any{
			"url":     "https://example.com/events",
			"headers": map[string]string{"Authorization": "Bearer token"},
		}},
	}

	dump, err := cfg.DumpYAML()
	if err != nil {
		t.Fatalf("Failed to dump config: %v", err)
	}

	if strings.Contains(dump, "supersecret") || strings.Contains(dump, "AKIAEXAMPLE") {
		t.Error("Expected credentials to be redacted")
	}
	if strings.Contains(dump, "Bearer token") {
		t.Error("Expected webhook headers to be redacted")
	}
	if !strings.Contains(dump, "blobs") {
		t.Error("Expected non-secret options to survive")
	}
	if !strings.Contains(dump, "https://example.com/events") {
		t.Error("Expected webhook url to survive")
	}

	// The original config is untouched
	if cfg.Storage.Services[0].Options["secret_access_key"] != "supersecret" {
		t.Error("DumpYAML must not mutate the source config")
	}
}
