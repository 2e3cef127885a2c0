package clock

import (
	"context"
	"testing"

	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage/memory"
)

func newLocationFixture(t *testing.T) (*LocationManager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewLocationManager(store, telemetry.NewEmitter(store)), store
}

func TestLocationManagerTrack(t *testing.T) {
	manager, store := newLocationFixture(t)
	ctx := context.Background()

	if err := manager.Track(ctx, "loc-inn"); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	record, err := store.GetLocationClock(ctx, "loc-inn")
	if err != nil {
		t.Fatalf("GetLocationClock() error = %v", err)
	}
	if record.Tick != 0 {
		t.Fatalf("tick = %d, want 0 on fresh track", record.Tick)
	}

	// Re-tracking after a sync must not reset the projection.
	if err := manager.Apply(ctx, "loc-inn", AdvanceNotice{Tick: 500}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := manager.Track(ctx, "loc-inn"); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	record, err = store.GetLocationClock(ctx, "loc-inn")
	if err != nil {
		t.Fatalf("GetLocationClock() error = %v", err)
	}
	if record.Tick != 500 {
		t.Fatalf("tick = %d, want 500 after re-track", record.Tick)
	}
}

func TestLocationManagerTrackRequiresID(t *testing.T) {
	manager, _ := newLocationFixture(t)
	if err := manager.Track(context.Background(), "  "); err == nil {
		t.Fatal("Track() error = nil, want error for blank id")
	}
}

func TestLocationManagerHandleWorldAdvanced(t *testing.T) {
	manager, store := newLocationFixture(t)
	ctx := context.Background()

	for _, id := range []string{"loc-inn", "loc-road", "loc-keep"} {
		if err := manager.Track(ctx, id); err != nil {
			t.Fatalf("Track(%s) error = %v", id, err)
		}
	}

	if err := manager.HandleWorldAdvanced(ctx, AdvanceNotice{Tick: 100_000, Reason: "setup"}); err != nil {
		t.Fatalf("HandleWorldAdvanced() error = %v", err)
	}
	for _, id := range []string{"loc-inn", "loc-road", "loc-keep"} {
		record, err := store.GetLocationClock(ctx, id)
		if err != nil {
			t.Fatalf("GetLocationClock(%s) error = %v", id, err)
		}
		if record.Tick != 100_000 {
			t.Fatalf("%s tick = %d, want 100000", id, record.Tick)
		}
		if record.LastSyncedWorldTick != 100_000 {
			t.Fatalf("%s last synced = %d, want 100000", id, record.LastSyncedWorldTick)
		}
	}
}

func TestLocationManagerApplyIdempotentPerTick(t *testing.T) {
	manager, store := newLocationFixture(t)
	ctx := context.Background()

	notice := AdvanceNotice{Tick: 100_000, Reason: "setup", CorrelationID: "corr-1"}
	for i := 0; i < 3; i++ {
		if err := manager.Apply(ctx, "loc-inn", notice); err != nil {
			t.Fatalf("Apply() attempt %d error = %v", i+1, err)
		}
	}

	record, err := store.GetLocationClock(ctx, "loc-inn")
	if err != nil {
		t.Fatalf("GetLocationClock() error = %v", err)
	}
	if record.Tick != 100_000 {
		t.Fatalf("tick = %d, want 100000", record.Tick)
	}

	events, err := store.ListTelemetryEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListTelemetryEvents() error = %v", err)
	}
	synced := 0
	for _, evt := range events {
		if evt.Name == telemetry.EventLocationClockSynced {
			synced++
		}
	}
	if synced != 1 {
		t.Fatalf("synced events = %d, want 1 for duplicate deliveries", synced)
	}
}

func TestLocationManagerApplyIgnoresStaleNotice(t *testing.T) {
	manager, store := newLocationFixture(t)
	ctx := context.Background()

	if err := manager.Apply(ctx, "loc-inn", AdvanceNotice{Tick: 200_000}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := manager.Apply(ctx, "loc-inn", AdvanceNotice{Tick: 100_000}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	record, err := store.GetLocationClock(ctx, "loc-inn")
	if err != nil {
		t.Fatalf("GetLocationClock() error = %v", err)
	}
	if record.Tick != 200_000 {
		t.Fatalf("tick = %d, want 200000 after stale notice", record.Tick)
	}
}
