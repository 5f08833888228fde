package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// secretOptionKeys lists option keys whose values are blanked before the
// configuration is logged.
var secretOptionKeys = map[string]bool{
	"secret_access_key": true,
	"access_key_id":     true,
}

// DumpYAML renders the effective configuration as YAML with credential
// values redacted. Intended for startup debug logging so operators can see
// what the merged file, environment and defaults actually produced.
func (c *Config) DumpYAML() (string, error) {
	redacted := *c

	redacted.Storage.Services = make([]StorageServiceConfig, len(c.Storage.Services))
	copy(redacted.Storage.Services, c.Storage.Services)
	for i, svc := range redacted.Storage.Services {
		redacted.Storage.Services[i].Options = redactOptions(svc.Options)
	}

	redacted.Events.Sinks = make([]EventSinkConfig, len(c.Events.Sinks))
	copy(redacted.Events.Sinks, c.Events.Sinks)
	for i, sink := range redacted.Events.Sinks {
		redacted.Events.Sinks[i].Options = redactOptions(sink.Options)
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(out), nil
}

// redactOptions copies an options map, blanking secret values and any
// nested "headers" map (webhook headers commonly carry bearer tokens).
func redactOptions(options map[string]any) map[string]any {
	if options == nil {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		switch {
		case secretOptionKeys[k]:
			out[k] = "<redacted>"
		case k == "headers":
			out[k] = "<redacted>"
		default:
			out[k] = v
		}
	}
	return out
}
