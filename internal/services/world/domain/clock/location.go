package clock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// LocationManager keeps per-location projections of world time so
// location-scoped consumers never query the global clock directly.
//
// It consumes world-advanced notices delivered at-least-once; applying the
// same (location, tick) pair twice is a no-op by construction.
type LocationManager struct {
	store     storage.LocationClockStore
	telemetry *telemetry.Emitter
	clock     func() time.Time
}

// NewLocationManager creates a location clock manager.
func NewLocationManager(store storage.LocationClockStore, emitter *telemetry.Emitter) *LocationManager {
	return &LocationManager{
		store:     store,
		telemetry: emitter,
		clock:     time.Now,
	}
}

// Track registers a location so future world advances project onto it.
// Tracking an already-known location is a no-op.
func (m *LocationManager) Track(ctx context.Context, locationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.store == nil {
		return fmt.Errorf("location clock store is not configured")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return fmt.Errorf("location id is required")
	}

	_, err := m.store.GetLocationClock(ctx, locationID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load location clock %s: %w", locationID, err)
	}
	return m.store.PutLocationClock(ctx, storage.LocationClockRecord{
		LocationID: locationID,
		UpdatedAt:  m.clock().UTC(),
	})
}

// HandleWorldAdvanced projects a world advancement onto every tracked
// location. Safe to call more than once with the same notice.
func (m *LocationManager) HandleWorldAdvanced(ctx context.Context, notice AdvanceNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.store == nil {
		return fmt.Errorf("location clock store is not configured")
	}

	locationIDs, err := m.store.ListLocationIDs(ctx)
	if err != nil {
		return fmt.Errorf("list locations: %w", err)
	}
	for _, locationID := range locationIDs {
		if err := m.Apply(ctx, locationID, notice); err != nil {
			return err
		}
	}
	return nil
}

// Apply updates one location's clock projection for a notice. Duplicate
// deliveries of the same (location, tick) pair change nothing.
func (m *LocationManager) Apply(ctx context.Context, locationID string, notice AdvanceNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record, err := m.store.GetLocationClock(ctx, locationID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load location clock %s: %w", locationID, err)
		}
		record = storage.LocationClockRecord{LocationID: locationID}
	}
	if record.LastSyncedWorldTick >= notice.Tick {
		// Already applied this world tick; redelivery is expected.
		return nil
	}

	record.Tick = notice.Tick
	record.LastSyncedWorldTick = notice.Tick
	record.UpdatedAt = m.clock().UTC()
	if err := m.store.PutLocationClock(ctx, record); err != nil {
		return fmt.Errorf("persist location clock %s: %w", locationID, err)
	}

	_ = m.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventLocationClockSynced,
		Properties: map[string]string{
			"location_id":    locationID,
			"world_tick":     strconv.FormatInt(notice.Tick, 10),
			"correlation_id": notice.CorrelationID,
		},
	})
	return nil
}
