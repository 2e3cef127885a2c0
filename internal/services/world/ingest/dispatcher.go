package ingest

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
)

// Handler processes one validated event envelope.
type Handler interface {
	Handle(ctx context.Context, envelope event.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope event.Envelope) error

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, envelope event.Envelope) error {
	return f(ctx, envelope)
}

// Dispatcher routes envelopes to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[event.Type]Handler)}
}

// Register binds a handler to an event type, replacing any previous binding.
func (d *Dispatcher) Register(eventType event.Type, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = handler
}

// Handles reports whether a handler is registered for the type.
func (d *Dispatcher) Handles(eventType event.Type) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch routes the envelope to its handler. A panicking handler is
// recovered and reported as a handler error so one bad event cannot take
// down the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, envelope event.Envelope) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	d.mu.RLock()
	handler, ok := d.handlers[envelope.Type]
	d.mu.RUnlock()
	if !ok {
		return apperrors.WithMetadata(
			apperrors.CodeEventTypeUnhandled,
			fmt.Sprintf("no handler registered for event type %q", envelope.Type),
			map[string]string{"event_type": string(envelope.Type)},
		)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = apperrors.WithMetadata(
				apperrors.CodeHandlerFailure,
				fmt.Sprintf("handler for %q panicked: %v", envelope.Type, recovered),
				map[string]string{"event_type": string(envelope.Type)},
			)
		}
	}()
	return handler.Handle(ctx, envelope)
}
