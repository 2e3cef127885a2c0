package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/domain/clock"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
	"github.com/hollowmere/hollowmere/internal/services/world/storage/memory"
)

type handlerFixture struct {
	dispatcher *Dispatcher
	store      *memory.Store
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := memory.NewStore()
	emitter := telemetry.NewEmitter(store)
	world := clock.NewWorldService(store, store, emitter, nil)
	players := clock.NewPlayerService(store, world, store, emitter)
	locations := clock.NewLocationManager(store, emitter)

	dispatcher := NewDispatcher()
	NewHandlerSet(players, locations, emitter).RegisterAll(dispatcher)
	return &handlerFixture{dispatcher: dispatcher, store: store}
}

func (f *handlerFixture) seedActor(t *testing.T, id string, tick int64) {
	t.Helper()
	now := time.Now().UTC()
	err := f.store.PutActor(context.Background(), storage.ActorRecord{
		ID:        id,
		Kind:      event.ActorKindPlayer,
		ClockTick: tick,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("PutActor() error = %v", err)
	}
}

func envelopeFor(eventType event.Type, actorID string, payload map[string]any) event.Envelope {
	now := time.Now().UTC()
	return event.Envelope{
		EventID:        "3b241101-e2bb-4255-8caf-4136c566a962",
		Type:           eventType,
		OccurredUTC:    now,
		IngestedUTC:    now,
		Actor:          event.Actor{Kind: event.ActorKindPlayer, ID: actorID},
		CorrelationID:  "corr-1",
		IdempotencyKey: "key-1",
		Version:        1,
		Payload:        payload,
	}
}

func TestHandlerSetCoversEveryKnownType(t *testing.T) {
	fixture := newHandlerFixture(t)
	for _, eventType := range event.KnownTypes() {
		if !fixture.dispatcher.Handles(eventType) {
			t.Fatalf("no handler for %q", eventType)
		}
	}
}

func TestActorMovedAdvancesAndReconciles(t *testing.T) {
	fixture := newHandlerFixture(t)
	ctx := context.Background()
	fixture.seedActor(t, "actor-1", 0)

	envelope := envelopeFor(event.TypeActorMoved, "actor-1", map[string]any{
		"toLocationId": "loc-road",
		"durationMs":   float64(4_000),
	})
	if err := fixture.dispatcher.Dispatch(ctx, envelope); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	actor, err := fixture.store.GetActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("GetActor() error = %v", err)
	}
	// World tick is 0, so the 4000ms lead is kept by the reconcile policy.
	if actor.ClockTick != 4_000 {
		t.Fatalf("tick = %d, want 4000", actor.ClockTick)
	}

	if _, err := fixture.store.GetLocationClock(ctx, "loc-road"); err != nil {
		t.Fatalf("destination location not tracked: %v", err)
	}
}

func TestActorMovedUsesDefaultDuration(t *testing.T) {
	fixture := newHandlerFixture(t)
	ctx := context.Background()
	fixture.seedActor(t, "actor-1", 0)

	envelope := envelopeFor(event.TypeActorMoved, "actor-1", map[string]any{})
	if err := fixture.dispatcher.Dispatch(ctx, envelope); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	actor, err := fixture.store.GetActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("GetActor() error = %v", err)
	}
	if actor.ClockTick != defaultMoveDurationMs {
		t.Fatalf("tick = %d, want default %d", actor.ClockTick, defaultMoveDurationMs)
	}
}

func TestActorLookedAdvancesClock(t *testing.T) {
	fixture := newHandlerFixture(t)
	ctx := context.Background()
	fixture.seedActor(t, "actor-1", 500)

	envelope := envelopeFor(event.TypeActorLooked, "actor-1", map[string]any{})
	if err := fixture.dispatcher.Dispatch(ctx, envelope); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	actor, err := fixture.store.GetActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("GetActor() error = %v", err)
	}
	if actor.ClockTick != 500+defaultLookDurationMs {
		t.Fatalf("tick = %d, want %d", actor.ClockTick, 500+defaultLookDurationMs)
	}
}

func TestExitCreatedTracksBothLocations(t *testing.T) {
	fixture := newHandlerFixture(t)
	ctx := context.Background()

	envelope := envelopeFor(event.TypeExitCreated, "system-1", map[string]any{
		"fromLocationId": "loc-inn",
		"toLocationId":   "loc-road",
	})
	envelope.Actor.Kind = event.ActorKindSystem
	if err := fixture.dispatcher.Dispatch(ctx, envelope); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	for _, id := range []string{"loc-inn", "loc-road"} {
		if _, err := fixture.store.GetLocationClock(ctx, id); err != nil {
			t.Fatalf("location %s not tracked: %v", id, err)
		}
	}
}

func TestExitCreatedRequiresBothLocations(t *testing.T) {
	fixture := newHandlerFixture(t)
	envelope := envelopeFor(event.TypeExitCreated, "system-1", map[string]any{
		"fromLocationId": "loc-inn",
	})
	if err := fixture.dispatcher.Dispatch(context.Background(), envelope); err == nil {
		t.Fatal("Dispatch() error = nil, want error for missing destination")
	}
}

func TestEnvironmentChangedTracksLocation(t *testing.T) {
	fixture := newHandlerFixture(t)
	ctx := context.Background()

	envelope := envelopeFor(event.TypeEnvironmentChanged, "system-1", map[string]any{
		"locationId": "loc-keep",
	})
	envelope.Actor.Kind = event.ActorKindSystem
	if err := fixture.dispatcher.Dispatch(ctx, envelope); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if _, err := fixture.store.GetLocationClock(ctx, "loc-keep"); err != nil {
		t.Fatalf("location not tracked: %v", err)
	}
}

func TestQuestProposedAcknowledged(t *testing.T) {
	fixture := newHandlerFixture(t)
	ctx := context.Background()

	envelope := envelopeFor(event.TypeQuestProposed, "actor-1", map[string]any{"questId": "q-1"})
	if err := fixture.dispatcher.Dispatch(ctx, envelope); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	events, err := fixture.store.ListTelemetryEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListTelemetryEvents() error = %v", err)
	}
	found := false
	for _, evt := range events {
		if evt.Name == "Ingest.Acknowledged" && evt.Properties["event_type"] == string(event.TypeQuestProposed) {
			found = true
		}
	}
	if !found {
		t.Fatal("quest proposal was not acknowledged")
	}
}
