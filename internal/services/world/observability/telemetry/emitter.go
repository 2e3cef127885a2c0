// Package telemetry records operational telemetry for the world core.
package telemetry

import (
	"context"
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event names emitted by the world core.
const (
	EventWorldClockAdvanced  = "WorldClockAdvanced"
	EventActorClockAdvanced  = "Actor.Clock.Advanced"
	EventActorDriftApplied   = "Actor.Clock.DriftApplied"
	EventActorReconciled     = "Actor.Clock.Reconciled"
	EventLocationClockSynced = "Location.Clock.Synced"
	EventProcessingStarted   = "Ingest.ProcessingStarted"
	EventProcessed           = "Ingest.Processed"
	EventDuplicateDetected   = "Ingest.DuplicateDetected"
	EventDeadLettered        = "Ingest.DeadLettered"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Severity == "" {
		evt.Severity = string(SeverityInfo)
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}
