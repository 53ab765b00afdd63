package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoHandler is returned when an entry's event type has no registered handler.
var ErrNoHandler = errors.New("no handler for event type")

// Handler processes one follow-up job. Handlers must be idempotent: delivery is at-least-once.
type Handler func(ctx context.Context, entry *Entry) error

// Sink receives entries claimed by the worker.
type Sink interface {
	Deliver(ctx context.Context, entry *Entry) error
}

// Router dispatches entries to handlers by event type. It is the in-process Sink
// and also the terminal stage behind the Kafka consumer.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers h for eventType, replacing any previous handler.
func (r *Router) Handle(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Deliver runs the handler registered for entry.EventType.
func (r *Router) Deliver(ctx context.Context, entry *Entry) error {
	r.mu.RLock()
	h, ok := r.handlers[entry.EventType]
	r.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoHandler, entry.EventType))
	}
	return h(ctx, entry)
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; the worker dead-letters the entry at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
