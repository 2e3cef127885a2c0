package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/domain/deadletter"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/ledger"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

func TestActorRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.GetActor(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetActor() error = %v, want ErrNotFound", err)
	}

	now := time.Now().UTC()
	actor := storage.ActorRecord{
		ID:        "actor-1",
		Kind:      event.ActorKindPlayer,
		Name:      "Mira",
		ClockTick: 12_000,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.PutActor(ctx, actor); err != nil {
		t.Fatalf("PutActor() error = %v", err)
	}

	got, err := store.GetActor(ctx, "actor-1")
	if err != nil {
		t.Fatalf("GetActor() error = %v", err)
	}
	if got.ClockTick != 12_000 || got.Name != "Mira" {
		t.Fatalf("GetActor() = %+v, want stored record", got)
	}
}

func TestWorldClockDefaultsToZero(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	record, err := store.GetWorldClock(ctx)
	if err != nil {
		t.Fatalf("GetWorldClock() error = %v", err)
	}
	if record.Tick != 0 {
		t.Fatalf("tick = %d, want 0 on fresh store", record.Tick)
	}

	record.Tick = 500
	record.LastReason = "setup"
	if err := store.PutWorldClock(ctx, record); err != nil {
		t.Fatalf("PutWorldClock() error = %v", err)
	}
	got, err := store.GetWorldClock(ctx)
	if err != nil {
		t.Fatalf("GetWorldClock() error = %v", err)
	}
	if got.Tick != 500 || got.LastReason != "setup" {
		t.Fatalf("GetWorldClock() = %+v, want stored record", got)
	}
}

func TestListLocationIDsSorted(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, id := range []string{"loc-c", "loc-a", "loc-b"} {
		if err := store.PutLocationClock(ctx, storage.LocationClockRecord{LocationID: id}); err != nil {
			t.Fatalf("PutLocationClock(%s) error = %v", id, err)
		}
	}
	ids, err := store.ListLocationIDs(ctx)
	if err != nil {
		t.Fatalf("ListLocationIDs() error = %v", err)
	}
	want := []string{"loc-a", "loc-b", "loc-c"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestLedgerEntriesFilteredByScopeAndRange(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	entries := []ledger.Entry{
		{ID: "1", ScopeKey: "wc", Type: ledger.EventWorldAdvanced, Timestamp: base},
		{ID: "2", ScopeKey: "player:a", Type: ledger.EventActorAdvanced, Timestamp: base.Add(time.Minute)},
		{ID: "3", ScopeKey: "wc", Type: ledger.EventWorldAdvanced, Timestamp: base.Add(2 * time.Minute)},
		{ID: "4", ScopeKey: "wc", Type: ledger.EventWorldAdvanced, Timestamp: base.Add(time.Hour)},
	}
	for _, entry := range entries {
		if err := store.AppendLedgerEntry(ctx, entry); err != nil {
			t.Fatalf("AppendLedgerEntry(%s) error = %v", entry.ID, err)
		}
	}

	got, err := store.ListLedgerEntries(ctx, "wc", base, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("ListLedgerEntries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("entries = [%s %s], want chronological [1 3]", got[0].ID, got[1].ID)
	}
}

func TestDeadLetterRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.GetDeadLetter(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetDeadLetter() error = %v, want ErrNotFound", err)
	}

	record := deadletter.Record{
		ID:              "dl-1",
		EventType:       "actor.moved",
		ErrorCode:       deadletter.CodeHandlerError,
		DeadLetteredUTC: time.Now().UTC(),
		RetryCount:      2,
	}
	if err := store.StoreDeadLetter(ctx, record); err != nil {
		t.Fatalf("StoreDeadLetter() error = %v", err)
	}
	got, err := store.GetDeadLetter(ctx, "dl-1")
	if err != nil {
		t.Fatalf("GetDeadLetter() error = %v", err)
	}
	if got.ErrorCode != deadletter.CodeHandlerError || got.RetryCount != 2 {
		t.Fatalf("GetDeadLetter() = %+v, want stored record", got)
	}
}

func TestIdempotencyKeys(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seen, err := store.HasIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("HasIdempotencyKey() error = %v", err)
	}
	if seen {
		t.Fatal("fresh store reports key as seen")
	}

	if err := store.PutIdempotencyKey(ctx, "key-1", time.Now().UTC()); err != nil {
		t.Fatalf("PutIdempotencyKey() error = %v", err)
	}
	seen, err = store.HasIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("HasIdempotencyKey() error = %v", err)
	}
	if !seen {
		t.Fatal("committed key not reported as seen")
	}
}

func TestTelemetryEventsNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		err := store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{Name: name, Timestamp: time.Now().UTC()})
		if err != nil {
			t.Fatalf("AppendTelemetryEvent(%s) error = %v", name, err)
		}
	}

	events, err := store.ListTelemetryEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListTelemetryEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Name != "third" || events[1].Name != "second" {
		t.Fatalf("events = [%s %s], want newest first [third second]", events[0].Name, events[1].Name)
	}
}

func TestCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.PutActor(ctx, storage.ActorRecord{ID: "actor-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("PutActor() error = %v, want context.Canceled", err)
	}
}
