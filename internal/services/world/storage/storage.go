// Package storage defines the persistence interfaces for the world core.
//
// Core services depend only on these interfaces; the memory and sqlite
// subpackages provide the swappable implementations. Core logic never
// branches on which implementation is wired in.
package storage

import (
	"context"
	"time"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/deadletter"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/ledger"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate legitimate "no such entity" states
// from transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ActorRecord captures an actor and its embedded clock state.
// A zero ClockTick means the actor has never advanced its personal clock.
type ActorRecord struct {
	ID         string
	Kind       event.ActorKind
	Name       string
	LocationID string
	ClockTick  int64
	LastAction *time.Time
	LastDrift  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WorldClockRecord is the single global simulation clock.
type WorldClockRecord struct {
	Tick            int64
	LastAdvancedUTC time.Time
	LastReason      string
}

// LocationClockRecord is the per-location projection of world time.
type LocationClockRecord struct {
	LocationID          string
	Tick                int64
	LastSyncedWorldTick int64
	UpdatedAt           time.Time
}

// TelemetryEvent is one operational telemetry record. Properties hold
// low-cardinality identifiers and numeric values only, never payloads.
type TelemetryEvent struct {
	Name       string
	Severity   string
	Timestamp  time.Time
	Properties map[string]string
}

// ActorStore owns actor records, including their clock state.
type ActorStore interface {
	PutActor(ctx context.Context, actor ActorRecord) error
	GetActor(ctx context.Context, id string) (ActorRecord, error)
}

// WorldClockStore owns the single world clock record. GetWorldClock on a
// fresh store returns the zero record, not ErrNotFound.
type WorldClockStore interface {
	GetWorldClock(ctx context.Context) (WorldClockRecord, error)
	PutWorldClock(ctx context.Context, clock WorldClockRecord) error
}

// LocationClockStore owns per-location clock projections.
type LocationClockStore interface {
	PutLocationClock(ctx context.Context, clock LocationClockRecord) error
	GetLocationClock(ctx context.Context, locationID string) (LocationClockRecord, error)
	ListLocationIDs(ctx context.Context) ([]string, error)
}

// LedgerStore owns the append-only temporal ledger.
type LedgerStore interface {
	AppendLedgerEntry(ctx context.Context, entry ledger.Entry) error
	// ListLedgerEntries returns entries for a scope in chronological
	// order. Zero from/to values leave that bound open.
	ListLedgerEntries(ctx context.Context, scopeKey string, from, to time.Time) ([]ledger.Entry, error)
}

// DeadLetterStore owns the durable quarantine of failed events.
type DeadLetterStore interface {
	StoreDeadLetter(ctx context.Context, record deadletter.Record) error
	GetDeadLetter(ctx context.Context, id string) (deadletter.Record, error)
	// ListDeadLetters returns records in the time range, oldest first.
	ListDeadLetters(ctx context.Context, from, to time.Time) ([]deadletter.Record, error)
}

// IdempotencyRegistry is the durable, cross-process authority on which
// idempotency keys have already been processed.
type IdempotencyRegistry interface {
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)
	PutIdempotencyKey(ctx context.Context, key string, seenAt time.Time) error
}

// TelemetryStore persists operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
	// ListTelemetryEvents returns the newest events first.
	ListTelemetryEvents(ctx context.Context, limit int) ([]TelemetryEvent, error)
}
