package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backend implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyGraphDefaults(&cfg.Graph)
	applyStorageDefaults(&cfg.Storage)
	applyEventsDefaults(&cfg.Events)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.AdminKey == "" {
		cfg.AdminKey = "admin"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyGraphDefaults sets graph store defaults.
func applyGraphDefaults(cfg *GraphConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

// applyStorageDefaults sets storage defaults.
//
// With no services configured an in-memory service named "default" is added
// so a bare configuration starts a fully working, ephemeral server.
func applyStorageDefaults(cfg *StorageConfig) {
	if len(cfg.Services) == 0 {
		cfg.Services = []StorageServiceConfig{
			{Name: "default", Type: "memory"},
		}
	}
	for i := range cfg.Services {
		if cfg.Services[i].Options == nil {
			cfg.Services[i].Options = make(map[string]any)
		}
	}
	if cfg.Default == "" {
		cfg.Default = cfg.Services[0].Name
	}
}

// applyEventsDefaults sets event sink defaults.
func applyEventsDefaults(cfg *EventsConfig) {
	for i := range cfg.Sinks {
		if cfg.Sinks[i].Options == nil {
			cfg.Sinks[i].Options = make(map[string]any)
		}
	}
}
