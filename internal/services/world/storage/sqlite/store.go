// Package sqlite provides the durable sqlite implementation of the world
// storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hollowmere/hollowmere/internal/platform/storage/sqlitemigrate"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/deadletter"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/ledger"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists world records in a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent callers.
	db.SetMaxOpenConns(1)

	if err := sqlitemigrate.ApplyMigrations(db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutActor inserts or replaces an actor record.
func (s *Store) PutActor(ctx context.Context, actor storage.ActorRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO actors (id, kind, name, location_id, clock_tick, last_action, last_drift, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    kind = excluded.kind,
    name = excluded.name,
    location_id = excluded.location_id,
    clock_tick = excluded.clock_tick,
    last_action = excluded.last_action,
    last_drift = excluded.last_drift,
    updated_at = excluded.updated_at
`,
		actor.ID, string(actor.Kind), actor.Name, actor.LocationID, actor.ClockTick,
		optionalMillis(actor.LastAction), optionalMillis(actor.LastDrift),
		actor.CreatedAt.UnixMilli(), actor.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put actor: %w", err)
	}
	return nil
}

// GetActor retrieves an actor record by id.
func (s *Store) GetActor(ctx context.Context, id string) (storage.ActorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, kind, name, location_id, clock_tick, last_action, last_drift, created_at, updated_at
FROM actors WHERE id = ?
`, id)

	var (
		actor                 storage.ActorRecord
		kind                  string
		lastAction, lastDrift sql.NullInt64
		createdAt, updatedAt  int64
	)
	err := row.Scan(&actor.ID, &kind, &actor.Name, &actor.LocationID, &actor.ClockTick,
		&lastAction, &lastDrift, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ActorRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ActorRecord{}, fmt.Errorf("get actor: %w", err)
	}
	actor.Kind = event.ActorKind(kind)
	actor.LastAction = optionalTime(lastAction)
	actor.LastDrift = optionalTime(lastDrift)
	actor.CreatedAt = time.UnixMilli(createdAt).UTC()
	actor.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return actor, nil
}

// GetWorldClock returns the world clock; the zero record before any advance.
func (s *Store) GetWorldClock(ctx context.Context) (storage.WorldClockRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT tick, last_advanced, last_reason FROM world_clock WHERE id = 1
`)
	var (
		record       storage.WorldClockRecord
		lastAdvanced int64
	)
	err := row.Scan(&record.Tick, &lastAdvanced, &record.LastReason)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.WorldClockRecord{}, nil
	}
	if err != nil {
		return storage.WorldClockRecord{}, fmt.Errorf("get world clock: %w", err)
	}
	if lastAdvanced > 0 {
		record.LastAdvancedUTC = time.UnixMilli(lastAdvanced).UTC()
	}
	return record, nil
}

// PutWorldClock stores the singleton world clock row.
func (s *Store) PutWorldClock(ctx context.Context, clock storage.WorldClockRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO world_clock (id, tick, last_advanced, last_reason)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    tick = excluded.tick,
    last_advanced = excluded.last_advanced,
    last_reason = excluded.last_reason
`, clock.Tick, clock.LastAdvancedUTC.UnixMilli(), clock.LastReason)
	if err != nil {
		return fmt.Errorf("put world clock: %w", err)
	}
	return nil
}

// PutLocationClock inserts or replaces a location clock projection.
func (s *Store) PutLocationClock(ctx context.Context, clock storage.LocationClockRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO location_clocks (location_id, tick, last_synced_world_tick, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (location_id) DO UPDATE SET
    tick = excluded.tick,
    last_synced_world_tick = excluded.last_synced_world_tick,
    updated_at = excluded.updated_at
`, clock.LocationID, clock.Tick, clock.LastSyncedWorldTick, clock.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put location clock: %w", err)
	}
	return nil
}

// GetLocationClock retrieves a location clock projection.
func (s *Store) GetLocationClock(ctx context.Context, locationID string) (storage.LocationClockRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT location_id, tick, last_synced_world_tick, updated_at
FROM location_clocks WHERE location_id = ?
`, locationID)

	var (
		record    storage.LocationClockRecord
		updatedAt int64
	)
	err := row.Scan(&record.LocationID, &record.Tick, &record.LastSyncedWorldTick, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LocationClockRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.LocationClockRecord{}, fmt.Errorf("get location clock: %w", err)
	}
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}

// ListLocationIDs returns tracked location ids in stable order.
func (s *Store) ListLocationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT location_id FROM location_clocks ORDER BY location_id`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan location id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendLedgerEntry appends a temporal ledger entry.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry ledger.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode ledger metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO temporal_ledger (id, scope_key, event_type, timestamp, world_clock_tick, actor_id, location_id, duration_ms, reconciliation_method, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		entry.ID, entry.ScopeKey, string(entry.Type), entry.Timestamp.UnixMilli(),
		entry.WorldClockTick, entry.ActorID, entry.LocationID, entry.DurationMs,
		entry.ReconciliationMethod, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListLedgerEntries returns scope entries in chronological order.
func (s *Store) ListLedgerEntries(ctx context.Context, scopeKey string, from, to time.Time) ([]ledger.Entry, error) {
	query := `
SELECT id, scope_key, event_type, timestamp, world_clock_tick, actor_id, location_id, duration_ms, reconciliation_method, metadata
FROM temporal_ledger WHERE scope_key = ?`
	args := []any{scopeKey}
	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UnixMilli())
	}
	query += " ORDER BY timestamp, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			entry     ledger.Entry
			eventType string
			timestamp int64
			metadata  string
		)
		if err := rows.Scan(&entry.ID, &entry.ScopeKey, &eventType, &timestamp,
			&entry.WorldClockTick, &entry.ActorID, &entry.LocationID, &entry.DurationMs,
			&entry.ReconciliationMethod, &metadata); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Type = ledger.EventType(eventType)
		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode ledger metadata: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// StoreDeadLetter persists a dead-letter record.
func (s *Store) StoreDeadLetter(ctx context.Context, record deadletter.Record) error {
	envelope, err := json.Marshal(record.RedactedEnvelope)
	if err != nil {
		return fmt.Errorf("encode redacted envelope: %w", err)
	}
	issues, err := json.Marshal(record.Issues)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO dead_letters (id, original_event_id, event_type, actor_kind, redacted_envelope, error_category, error_message, issues, error_code, dead_lettered_at, retry_count, final_error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID, record.OriginalEventID, record.EventType, record.ActorKind,
		string(envelope), record.ErrorCategory, record.ErrorMessage, string(issues),
		string(record.ErrorCode), record.DeadLetteredUTC.UnixMilli(), record.RetryCount,
		record.FinalError,
	)
	if err != nil {
		return fmt.Errorf("store dead letter: %w", err)
	}
	return nil
}

// GetDeadLetter retrieves a dead-letter record by id.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (deadletter.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, original_event_id, event_type, actor_kind, redacted_envelope, error_category, error_message, issues, error_code, dead_lettered_at, retry_count, final_error
FROM dead_letters WHERE id = ?
`, id)
	record, err := scanDeadLetter(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return deadletter.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return deadletter.Record{}, fmt.Errorf("get dead letter: %w", err)
	}
	return record, nil
}

// ListDeadLetters returns records in the time range, oldest first.
func (s *Store) ListDeadLetters(ctx context.Context, from, to time.Time) ([]deadletter.Record, error) {
	query := `
SELECT id, original_event_id, event_type, actor_kind, redacted_envelope, error_category, error_message, issues, error_code, dead_lettered_at, retry_count, final_error
FROM dead_letters WHERE 1 = 1`
	var args []any
	if !from.IsZero() {
		query += " AND dead_lettered_at >= ?"
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += " AND dead_lettered_at <= ?"
		args = append(args, to.UnixMilli())
	}
	query += " ORDER BY dead_lettered_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var records []deadletter.Record
	for rows.Next() {
		record, err := scanDeadLetter(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanDeadLetter(scan func(dest ...any) error) (deadletter.Record, error) {
	var (
		record         deadletter.Record
		envelope       string
		issues         string
		errorCode      string
		deadLetteredAt int64
	)
	err := scan(&record.ID, &record.OriginalEventID, &record.EventType, &record.ActorKind,
		&envelope, &record.ErrorCategory, &record.ErrorMessage, &issues, &errorCode,
		&deadLetteredAt, &record.RetryCount, &record.FinalError)
	if err != nil {
		return deadletter.Record{}, err
	}
	if err := json.Unmarshal([]byte(envelope), &record.RedactedEnvelope); err != nil {
		return deadletter.Record{}, fmt.Errorf("decode redacted envelope: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &record.Issues); err != nil {
		return deadletter.Record{}, fmt.Errorf("decode issues: %w", err)
	}
	record.ErrorCode = deadletter.Code(errorCode)
	record.DeadLetteredUTC = time.UnixMilli(deadLetteredAt).UTC()
	return record, nil
}

// HasIdempotencyKey reports whether a key was already committed.
func (s *Store) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM idempotency_keys WHERE key = ?`, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return count > 0, nil
}

// PutIdempotencyKey commits a processed key. Committing the same key twice
// keeps the first seen time.
func (s *Store) PutIdempotencyKey(ctx context.Context, key string, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO idempotency_keys (key, seen_at) VALUES (?, ?)
ON CONFLICT (key) DO NOTHING
`, key, seenAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put idempotency key: %w", err)
	}
	return nil
}

// AppendTelemetryEvent records a telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	properties, err := json.Marshal(evt.Properties)
	if err != nil {
		return fmt.Errorf("encode telemetry properties: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO telemetry_events (name, severity, timestamp, properties)
VALUES (?, ?, ?, ?)
`, evt.Name, evt.Severity, evt.Timestamp.UnixMilli(), string(properties))
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// ListTelemetryEvents returns the newest events first, up to limit.
func (s *Store) ListTelemetryEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	query := `SELECT name, severity, timestamp, properties FROM telemetry_events ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list telemetry events: %w", err)
	}
	defer rows.Close()

	var events []storage.TelemetryEvent
	for rows.Next() {
		var (
			evt        storage.TelemetryEvent
			timestamp  int64
			properties string
		)
		if err := rows.Scan(&evt.Name, &evt.Severity, &timestamp, &properties); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		evt.Timestamp = time.UnixMilli(timestamp).UTC()
		if err := json.Unmarshal([]byte(properties), &evt.Properties); err != nil {
			return nil, fmt.Errorf("decode telemetry properties: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func optionalMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UnixMilli()
}

func optionalTime(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed := time.UnixMilli(value.Int64).UTC()
	return &parsed
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
