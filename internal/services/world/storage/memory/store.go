// Package memory provides an in-memory implementation of the world storage
// interfaces, used by tests and single-process development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/domain/deadletter"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/ledger"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// Store keeps all world records in process memory guarded by one mutex.
type Store struct {
	mu sync.Mutex

	actors          map[string]storage.ActorRecord
	worldClock      storage.WorldClockRecord
	locationClocks  map[string]storage.LocationClockRecord
	ledgerEntries   []ledger.Entry
	deadLetters     map[string]deadletter.Record
	idempotencyKeys map[string]time.Time
	telemetryEvents []storage.TelemetryEvent
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		actors:          make(map[string]storage.ActorRecord),
		locationClocks:  make(map[string]storage.LocationClockRecord),
		deadLetters:     make(map[string]deadletter.Record),
		idempotencyKeys: make(map[string]time.Time),
	}
}

// PutActor stores an actor record.
func (s *Store) PutActor(ctx context.Context, actor storage.ActorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[actor.ID] = actor
	return nil
}

// GetActor retrieves an actor record by id.
func (s *Store) GetActor(ctx context.Context, id string) (storage.ActorRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ActorRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[id]
	if !ok {
		return storage.ActorRecord{}, storage.ErrNotFound
	}
	return actor, nil
}

// GetWorldClock returns the world clock; the zero record before any advance.
func (s *Store) GetWorldClock(ctx context.Context) (storage.WorldClockRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.WorldClockRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worldClock, nil
}

// PutWorldClock stores the world clock record.
func (s *Store) PutWorldClock(ctx context.Context, clock storage.WorldClockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worldClock = clock
	return nil
}

// PutLocationClock stores a location clock projection.
func (s *Store) PutLocationClock(ctx context.Context, clock storage.LocationClockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationClocks[clock.LocationID] = clock
	return nil
}

// GetLocationClock retrieves a location clock projection.
func (s *Store) GetLocationClock(ctx context.Context, locationID string) (storage.LocationClockRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.LocationClockRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clock, ok := s.locationClocks[locationID]
	if !ok {
		return storage.LocationClockRecord{}, storage.ErrNotFound
	}
	return clock, nil
}

// ListLocationIDs returns tracked location ids in stable order.
func (s *Store) ListLocationIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.locationClocks))
	for id := range s.locationClocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendLedgerEntry appends a temporal ledger entry.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgerEntries = append(s.ledgerEntries, entry)
	return nil
}

// ListLedgerEntries returns scope entries in chronological order.
func (s *Store) ListLedgerEntries(ctx context.Context, scopeKey string, from, to time.Time) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []ledger.Entry
	for _, entry := range s.ledgerEntries {
		if entry.ScopeKey != scopeKey {
			continue
		}
		if !from.IsZero() && entry.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && entry.Timestamp.After(to) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// StoreDeadLetter persists a dead-letter record.
func (s *Store) StoreDeadLetter(ctx context.Context, record deadletter.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters[record.ID] = record
	return nil
}

// GetDeadLetter retrieves a dead-letter record by id.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (deadletter.Record, error) {
	if err := ctx.Err(); err != nil {
		return deadletter.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.deadLetters[id]
	if !ok {
		return deadletter.Record{}, storage.ErrNotFound
	}
	return record, nil
}

// ListDeadLetters returns records in the time range, oldest first.
func (s *Store) ListDeadLetters(ctx context.Context, from, to time.Time) ([]deadletter.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []deadletter.Record
	for _, record := range s.deadLetters {
		if !from.IsZero() && record.DeadLetteredUTC.Before(from) {
			continue
		}
		if !to.IsZero() && record.DeadLetteredUTC.After(to) {
			continue
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DeadLetteredUTC.Before(records[j].DeadLetteredUTC)
	})
	return records, nil
}

// HasIdempotencyKey reports whether a key was already committed.
func (s *Store) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.idempotencyKeys[strings.TrimSpace(key)]
	return ok, nil
}

// PutIdempotencyKey commits a processed key.
func (s *Store) PutIdempotencyKey(ctx context.Context, key string, seenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotencyKeys[strings.TrimSpace(key)] = seenAt
	return nil
}

// AppendTelemetryEvent records a telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetryEvents = append(s.telemetryEvents, evt)
	return nil
}

// ListTelemetryEvents returns the newest events first, up to limit.
func (s *Store) ListTelemetryEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.telemetryEvents) {
		limit = len(s.telemetryEvents)
	}
	events := make([]storage.TelemetryEvent, 0, limit)
	for i := len(s.telemetryEvents) - 1; i >= 0 && len(events) < limit; i-- {
		events = append(events, s.telemetryEvents[i])
	}
	return events, nil
}

var (
	_ storage.ActorStore          = (*Store)(nil)
	_ storage.WorldClockStore     = (*Store)(nil)
	_ storage.LocationClockStore  = (*Store)(nil)
	_ storage.LedgerStore         = (*Store)(nil)
	_ storage.DeadLetterStore     = (*Store)(nil)
	_ storage.IdempotencyRegistry = (*Store)(nil)
	_ storage.TelemetryStore      = (*Store)(nil)
)
