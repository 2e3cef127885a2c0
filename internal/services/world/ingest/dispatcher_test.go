package ingest

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
)

func TestDispatcherRoutesToRegisteredHandler(t *testing.T) {
	dispatcher := NewDispatcher()
	var handled event.Type
	dispatcher.Register(event.TypeActorMoved, HandlerFunc(func(_ context.Context, envelope event.Envelope) error {
		handled = envelope.Type
		return nil
	}))

	err := dispatcher.Dispatch(context.Background(), event.Envelope{Type: event.TypeActorMoved})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if handled != event.TypeActorMoved {
		t.Fatalf("handled = %q, want %q", handled, event.TypeActorMoved)
	}
}

func TestDispatcherUnregisteredType(t *testing.T) {
	dispatcher := NewDispatcher()

	err := dispatcher.Dispatch(context.Background(), event.Envelope{Type: event.TypeQuestProposed})
	if !errors.Is(err, apperrors.New(apperrors.CodeEventTypeUnhandled, "")) {
		t.Fatalf("Dispatch() error = %v, want code %s", err, apperrors.CodeEventTypeUnhandled)
	}
}

func TestDispatcherRecoversPanickingHandler(t *testing.T) {
	dispatcher := NewDispatcher()
	dispatcher.Register(event.TypeActorMoved, HandlerFunc(func(_ context.Context, _ event.Envelope) error {
		panic("payload assumption violated")
	}))

	err := dispatcher.Dispatch(context.Background(), event.Envelope{Type: event.TypeActorMoved})
	if !errors.Is(err, apperrors.New(apperrors.CodeHandlerFailure, "")) {
		t.Fatalf("Dispatch() error = %v, want code %s", err, apperrors.CodeHandlerFailure)
	}
}

func TestDispatcherHandles(t *testing.T) {
	dispatcher := NewDispatcher()
	if dispatcher.Handles(event.TypeActorMoved) {
		t.Fatal("Handles() = true before registration")
	}
	dispatcher.Register(event.TypeActorMoved, HandlerFunc(func(_ context.Context, _ event.Envelope) error {
		return nil
	}))
	if !dispatcher.Handles(event.TypeActorMoved) {
		t.Fatal("Handles() = false after registration")
	}
}
