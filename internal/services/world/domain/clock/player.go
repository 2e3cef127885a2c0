package clock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/platform/id"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/ledger"
	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// CompressThresholdMs is the positive offset beyond which a reconciliation
// snaps an actor back to the world clock: one simulated hour.
const CompressThresholdMs int64 = 3_600_000

// Method names the correction a reconciliation applied.
type Method string

const (
	// MethodWait snapped a lagging actor forward to the world tick.
	MethodWait Method = "wait"
	// MethodCompress snapped a far-ahead actor back to the world tick.
	MethodCompress Method = "compress"
	// MethodNone made no change: the actor was aligned or holding a
	// lead small enough to keep.
	MethodNone Method = "none"
)

// Reconciliation reports the outcome of a single reconcile call.
type Reconciliation struct {
	PlayerTickBefore int64
	PlayerTickAfter  int64
	WorldClockTick   int64
	Method           Method
	OffsetMs         int64
}

// WorldTicker reads the current world tick.
type WorldTicker interface {
	Tick(ctx context.Context) (int64, error)
}

// PlayerService owns per-actor clocks. All mutations of one actor's clock
// are serialized through a per-actor lock so concurrent advances cannot
// lose updates.
type PlayerService struct {
	actors    storage.ActorStore
	world     WorldTicker
	ledger    storage.LedgerStore
	telemetry *telemetry.Emitter
	clock     func() time.Time
	newID     func() (string, error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPlayerService creates an actor clock service.
func NewPlayerService(actors storage.ActorStore, world WorldTicker, ledgerStore storage.LedgerStore, emitter *telemetry.Emitter) *PlayerService {
	return &PlayerService{
		actors:    actors,
		world:     world,
		ledger:    ledgerStore,
		telemetry: emitter,
		clock:     time.Now,
		newID:     id.NewID,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *PlayerService) actorLock(actorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[actorID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[actorID] = lock
	}
	return lock
}

func (s *PlayerService) loadActor(ctx context.Context, actorID string) (storage.ActorRecord, error) {
	actor, err := s.actors.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ActorRecord{}, apperrors.WithMetadata(
				apperrors.CodeActorNotFound,
				fmt.Sprintf("actor %s not found", actorID),
				map[string]string{"actor_id": actorID},
			)
		}
		return storage.ActorRecord{}, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	return actor, nil
}

// AdvancePlayerTime moves an actor's clock forward by durationMs for an
// explicit action and returns the new tick.
func (s *PlayerService) AdvancePlayerTime(ctx context.Context, actorID string, durationMs int64, actionType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if durationMs <= 0 {
		return 0, apperrors.New(apperrors.CodeDurationNotPositive, "duration must be positive")
	}

	lock := s.actorLock(actorID)
	lock.Lock()
	defer lock.Unlock()

	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return 0, err
	}

	now := s.clock().UTC()
	actor.ClockTick += durationMs
	actor.LastAction = &now
	actor.UpdatedAt = now
	if err := s.actors.PutActor(ctx, actor); err != nil {
		return 0, fmt.Errorf("persist actor %s: %w", actorID, err)
	}

	worldTick, err := s.world.Tick(ctx)
	if err != nil {
		return 0, fmt.Errorf("read world tick: %w", err)
	}
	if err := s.appendActorEntry(ctx, actor.ID, ledger.Entry{
		Type:           ledger.EventActorAdvanced,
		Timestamp:      now,
		WorldClockTick: worldTick,
		ActorID:        actor.ID,
		DurationMs:     durationMs,
		Metadata:       map[string]string{"action_type": actionType},
	}); err != nil {
		return 0, err
	}

	_ = s.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventActorClockAdvanced,
		Properties: map[string]string{
			"actor_id":    actor.ID,
			"action_type": actionType,
			"duration_ms": strconv.FormatInt(durationMs, 10),
			"tick":        strconv.FormatInt(actor.ClockTick, 10),
		},
	})
	return actor.ClockTick, nil
}

// ApplyDrift advances an actor's clock for elapsed real time while the
// actor was not acting, scaled by rate, and returns the new tick.
func (s *PlayerService) ApplyDrift(ctx context.Context, actorID string, realElapsedMs int64, rate float64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if realElapsedMs <= 0 {
		return 0, apperrors.New(apperrors.CodeElapsedNotPositive, "elapsed must be positive")
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, apperrors.New(apperrors.CodeDriftRateInvalid, "drift rate must be a positive finite number")
	}

	lock := s.actorLock(actorID)
	lock.Lock()
	defer lock.Unlock()

	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return 0, err
	}

	driftMs := int64(math.Round(float64(realElapsedMs) * rate))
	now := s.clock().UTC()
	actor.ClockTick += driftMs
	actor.LastDrift = &now
	actor.UpdatedAt = now
	if err := s.actors.PutActor(ctx, actor); err != nil {
		return 0, fmt.Errorf("persist actor %s: %w", actorID, err)
	}

	worldTick, err := s.world.Tick(ctx)
	if err != nil {
		return 0, fmt.Errorf("read world tick: %w", err)
	}
	if err := s.appendActorEntry(ctx, actor.ID, ledger.Entry{
		Type:           ledger.EventActorDrifted,
		Timestamp:      now,
		WorldClockTick: worldTick,
		ActorID:        actor.ID,
		DurationMs:     driftMs,
		Metadata: map[string]string{
			"elapsed_ms": strconv.FormatInt(realElapsedMs, 10),
			"rate":       strconv.FormatFloat(rate, 'f', -1, 64),
		},
	}); err != nil {
		return 0, err
	}

	_ = s.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventActorDriftApplied,
		Properties: map[string]string{
			"actor_id":   actor.ID,
			"elapsed_ms": strconv.FormatInt(realElapsedMs, 10),
			"drift_ms":   strconv.FormatInt(driftMs, 10),
			"tick":       strconv.FormatInt(actor.ClockTick, 10),
		},
	})
	return actor.ClockTick, nil
}

// PlayerOffset returns the actor's tick minus the world tick: positive when
// the actor runs ahead of the world, negative when behind.
func (s *PlayerService) PlayerOffset(ctx context.Context, actorID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return 0, err
	}
	worldTick, err := s.world.Tick(ctx)
	if err != nil {
		return 0, fmt.Errorf("read world tick: %w", err)
	}
	return actor.ClockTick - worldTick, nil
}

// Reconcile realigns an actor's clock against the world clock.
//
// Policy bands, classified statelessly per call:
//   - offset == 0: aligned, no change (method "none").
//   - offset < 0: actor lags the world, snap forward (method "wait").
//   - offset > CompressThresholdMs: runaway lead, snap back (method
//     "compress").
//   - otherwise: a small lead the actor is allowed to keep (method "none").
func (s *PlayerService) Reconcile(ctx context.Context, actorID, locationID string) (Reconciliation, error) {
	if err := ctx.Err(); err != nil {
		return Reconciliation{}, err
	}

	lock := s.actorLock(actorID)
	lock.Lock()
	defer lock.Unlock()

	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return Reconciliation{}, err
	}
	worldTick, err := s.world.Tick(ctx)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("read world tick: %w", err)
	}

	before := actor.ClockTick
	offset := before - worldTick

	method := MethodNone
	after := before
	switch {
	case offset < 0:
		method = MethodWait
		after = worldTick
	case offset > CompressThresholdMs:
		method = MethodCompress
		after = worldTick
	}

	now := s.clock().UTC()
	if after != before {
		actor.ClockTick = after
		actor.UpdatedAt = now
		if err := s.actors.PutActor(ctx, actor); err != nil {
			return Reconciliation{}, fmt.Errorf("persist actor %s: %w", actorID, err)
		}
	}

	if err := s.appendActorEntry(ctx, actor.ID, ledger.Entry{
		Type:                 ledger.EventActorReconciled,
		Timestamp:            now,
		WorldClockTick:       worldTick,
		ActorID:              actor.ID,
		LocationID:           locationID,
		ReconciliationMethod: string(method),
		Metadata:             map[string]string{"offset_ms": strconv.FormatInt(offset, 10)},
	}); err != nil {
		return Reconciliation{}, err
	}

	_ = s.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventActorReconciled,
		Properties: map[string]string{
			"actor_id":    actor.ID,
			"location_id": locationID,
			"method":      string(method),
			"offset_ms":   strconv.FormatInt(offset, 10),
		},
	})

	return Reconciliation{
		PlayerTickBefore: before,
		PlayerTickAfter:  after,
		WorldClockTick:   worldTick,
		Method:           method,
		OffsetMs:         offset,
	}, nil
}

func (s *PlayerService) appendActorEntry(ctx context.Context, actorID string, entry ledger.Entry) error {
	scopeKey, err := ledger.ActorScopeKey(actorID)
	if err != nil {
		return err
	}
	entryID, err := s.newID()
	if err != nil {
		return fmt.Errorf("generate ledger entry id: %w", err)
	}
	entry.ID = entryID
	entry.ScopeKey = scopeKey
	if err := s.ledger.AppendLedgerEntry(ctx, entry); err != nil {
		return fmt.Errorf("append actor ledger entry: %w", err)
	}
	return nil
}
