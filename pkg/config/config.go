package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Castellan configuration.
//
// This structure captures all configurable aspects of the Castellan server:
//   - Logging configuration
//   - Server-wide settings (shutdown behavior, admin principal)
//   - Graph store selection and store-specific configuration
//   - Storage service definitions (multiple services, one default)
//   - Event sink definitions
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CASTELLAN_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each backend defines its own option set. The Config struct carries the
// options as untyped maps and the factory for the selected type decodes the
// map it understands; sections for unselected types are ignored.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Graph specifies the graph store type and type-specific configuration
	Graph GraphConfig `mapstructure:"graph"`

	// Storage defines the blob storage services available to the catalog
	Storage StorageConfig `mapstructure:"storage"`

	// Events defines the sinks domain events are delivered to
	Events EventsConfig `mapstructure:"events"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// AdminKey is the key of the administrative user. Created on first
	// startup; bypasses access checks and never appears in user listings.
	AdminKey string `mapstructure:"admin_key" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// GraphConfig specifies graph store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type GraphConfig struct {
	// Type specifies which graph store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// StorageConfig defines the blob storage services.
type StorageConfig struct {
	// Default names the service used when a request does not specify one.
	// Empty selects the first configured service.
	Default string `mapstructure:"default"`

	// Services lists the configured storage services.
	Services []StorageServiceConfig `mapstructure:"services" validate:"dive"`
}

// StorageServiceConfig defines a single storage service.
type StorageServiceConfig struct {
	// Name identifies the service; file versions record it, so renaming a
	// service orphans the blobs stored under the old name.
	Name string `mapstructure:"name" validate:"required"`

	// Type specifies the service implementation
	// Valid values: fs, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=fs memory s3"`

	// Options contains type-specific configuration
	Options map[string]any `mapstructure:"options"`
}

// EventsConfig defines the event sinks.
type EventsConfig struct {
	// Sinks lists the configured sinks. Empty disables event delivery.
	Sinks []EventSinkConfig `mapstructure:"sinks" validate:"dive"`
}

// EventSinkConfig defines a single event sink.
type EventSinkConfig struct {
	// Name identifies the sink in logs
	Name string `mapstructure:"name" validate:"required"`

	// Type specifies the sink implementation
	// Valid values: log, webhook
	Type string `mapstructure:"type" validate:"required,oneof=log webhook"`

	// Options contains type-specific configuration
	Options map[string]any `mapstructure:"options"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CASTELLAN_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use CASTELLAN_ prefix and underscores
	// Example: CASTELLAN_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CASTELLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/castellan/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "castellan")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "castellan")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
