package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation via
// struct tags, with additional custom validation for rules that cannot be
// expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Storage.Services) == 0 {
		return fmt.Errorf("storage: at least one service must be configured")
	}

	// Service names must be unique and the default must exist
	names := make(map[string]bool)
	for i, svc := range cfg.Storage.Services {
		if names[svc.Name] {
			return fmt.Errorf("storage.services[%d]: duplicate service name %q", i, svc.Name)
		}
		names[svc.Name] = true
	}
	if cfg.Storage.Default != "" && !names[cfg.Storage.Default] {
		return fmt.Errorf("storage: default service %q is not configured", cfg.Storage.Default)
	}

	// Sink names must be unique
	sinkNames := make(map[string]bool)
	for i, sink := range cfg.Events.Sinks {
		if sinkNames[sink.Name] {
			return fmt.Errorf("events.sinks[%d]: duplicate sink name %q", i, sink.Name)
		}
		sinkNames[sink.Name] = true
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
