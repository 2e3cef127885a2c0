// Package ledger defines the append-only temporal ledger recording every
// clock-affecting operation, keyed by a world or actor scope.
package ledger

import "time"

// EventType names the clock operation a ledger entry records.
type EventType string

const (
	// EventWorldAdvanced records a world clock advancement.
	EventWorldAdvanced EventType = "world.advanced"
	// EventActorAdvanced records an explicit actor clock advancement.
	EventActorAdvanced EventType = "actor.advanced"
	// EventActorDrifted records passive actor clock drift.
	EventActorDrifted EventType = "actor.drifted"
	// EventActorReconciled records an actor clock reconciliation.
	EventActorReconciled EventType = "actor.reconciled"
)

// Entry is one immutable temporal ledger record. Entries are only ever
// appended; there is no update or delete path.
type Entry struct {
	ID       string
	ScopeKey string
	Type     EventType
	// Timestamp is the wall-clock time the operation happened.
	Timestamp time.Time
	// WorldClockTick is the world tick observed when the entry was written.
	WorldClockTick int64

	// Optional attribution.
	ActorID              string
	LocationID           string
	DurationMs           int64
	ReconciliationMethod string
	Metadata             map[string]string
}
