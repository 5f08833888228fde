package event

import (
	"context"
	"encoding/json"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/domain"
)

// LogSink writes events to the application log. Useful in development and
// as a delivery audit trail.
type LogSink struct {
	name string
}

func NewLogSink(name string) *LogSink {
	return &LogSink{name: name}
}

func (s *LogSink) Name() string { return s.name }

func (s *LogSink) Deliver(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	logger.Info("event: %s", payload)
	return nil
}
