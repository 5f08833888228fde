package event

import (
	"context"
	"sync"
	"time"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/domain"
)

// queueSize bounds the number of undelivered events per sink before new
// events are dropped for that sink.
const queueSize = 256

// deliverTimeout bounds one delivery attempt.
const deliverTimeout = 10 * time.Second

// Dispatcher fans events out to every sink on dedicated goroutines.
type Dispatcher struct {
	workers []*worker

	mu     sync.Mutex
	closed bool
}

type worker struct {
	sink  Sink
	queue chan domain.Event
	done  chan struct{}
}

// NewDispatcher starts one delivery goroutine per sink.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, sink := range sinks {
		w := &worker{
			sink:  sink,
			queue: make(chan domain.Event, queueSize),
			done:  make(chan struct{}),
		}
		d.workers = append(d.workers, w)
		go w.run()
	}
	return d
}

// Dispatch queues the event for every sink and returns immediately. Events
// dispatched after Close, or to a sink whose queue is full, are dropped.
func (d *Dispatcher) Dispatch(event domain.Event) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	for _, w := range d.workers {
		select {
		case w.queue <- event:
		default:
			logger.Warn("event: sink %s queue full, dropping %s (%s)", w.sink.Name(), event.Name, event.UID)
		}
	}
}

// Close stops accepting events and waits for queued deliveries to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	for _, w := range d.workers {
		close(w.queue)
	}
	for _, w := range d.workers {
		<-w.done
	}
}

func (w *worker) run() {
	defer close(w.done)
	for event := range w.queue {
		w.deliver(event)
	}
}

func (w *worker) deliver(event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event: sink %s panicked delivering %s: %v", w.sink.Name(), event.Name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if err := w.sink.Deliver(ctx, event); err != nil {
		logger.Warn("event: sink %s failed to deliver %s (%s): %v", w.sink.Name(), event.Name, event.UID, err)
	}
}
