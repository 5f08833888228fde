// Package event delivers domain events to configured sinks.
//
// Delivery is best effort and fully decoupled from the operations that emit
// events: a slow or failing sink never fails or delays a catalog operation.
// Failures are logged and the event dropped for that sink.
package event

import (
	"context"

	"github.com/castellan-io/castellan/pkg/domain"
)

// Sink receives events. Implementations must be safe for use from a single
// dispatcher goroutine; they do not need their own locking.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Deliver sends one event. Errors are logged by the dispatcher and the
	// event is dropped for this sink.
	Deliver(ctx context.Context, event domain.Event) error
}
