// Package clock owns simulation time: the single world tick, per-actor
// ticks, their reconciliation policy, and the per-location projection of
// world time.
package clock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/platform/id"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/ledger"
	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// WorldService owns the global simulation tick. The tick only moves forward,
// and only through AdvanceTick; concurrent advances are serialized to keep it
// monotonic.
type WorldService struct {
	store     storage.WorldClockStore
	ledger    storage.LedgerStore
	telemetry *telemetry.Emitter
	notifier  Notifier
	clock     func() time.Time
	newID     func() (string, error)

	mu sync.Mutex
}

// NewWorldService creates a world clock service. The notifier may be nil when
// no location projection is wired.
func NewWorldService(store storage.WorldClockStore, ledgerStore storage.LedgerStore, emitter *telemetry.Emitter, notifier Notifier) *WorldService {
	return &WorldService{
		store:     store,
		ledger:    ledgerStore,
		telemetry: emitter,
		notifier:  notifier,
		clock:     time.Now,
		newID:     id.NewID,
	}
}

// AdvanceTick moves the world clock forward by deltaMs and records the
// advancement in the temporal ledger. It returns the new tick.
func (s *WorldService) AdvanceTick(ctx context.Context, deltaMs int64, reason string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("world clock store is not configured")
	}
	if deltaMs <= 0 {
		return 0, apperrors.New(apperrors.CodeDeltaNotPositive, "delta must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.store.GetWorldClock(ctx)
	if err != nil {
		return 0, fmt.Errorf("load world clock: %w", err)
	}

	now := s.clock().UTC()
	record.Tick += deltaMs
	record.LastAdvancedUTC = now
	record.LastReason = reason
	if err := s.store.PutWorldClock(ctx, record); err != nil {
		return 0, fmt.Errorf("persist world clock: %w", err)
	}

	entryID, err := s.newID()
	if err != nil {
		return 0, fmt.Errorf("generate ledger entry id: %w", err)
	}
	correlationID, err := s.newID()
	if err != nil {
		return 0, fmt.Errorf("generate correlation id: %w", err)
	}
	if err := s.ledger.AppendLedgerEntry(ctx, ledger.Entry{
		ID:             entryID,
		ScopeKey:       ledger.WorldScopeKey(),
		Type:           ledger.EventWorldAdvanced,
		Timestamp:      now,
		WorldClockTick: record.Tick,
		DurationMs:     deltaMs,
		Metadata: map[string]string{
			"reason":         reason,
			"correlation_id": correlationID,
		},
	}); err != nil {
		return 0, fmt.Errorf("append world ledger entry: %w", err)
	}

	_ = s.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventWorldClockAdvanced,
		Properties: map[string]string{
			"tick":           strconv.FormatInt(record.Tick, 10),
			"delta_ms":       strconv.FormatInt(deltaMs, 10),
			"reason":         reason,
			"correlation_id": correlationID,
		},
	})

	if s.notifier != nil {
		s.notifier.WorldAdvanced(AdvanceNotice{
			Tick:          record.Tick,
			Reason:        reason,
			CorrelationID: correlationID,
		})
	}
	return record.Tick, nil
}

// Tick returns the current world tick without side effects.
func (s *WorldService) Tick(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("world clock store is not configured")
	}
	record, err := s.store.GetWorldClock(ctx)
	if err != nil {
		return 0, fmt.Errorf("load world clock: %w", err)
	}
	return record.Tick, nil
}
