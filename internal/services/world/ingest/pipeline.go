package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/platform/id"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/deadletter"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// Pipeline is the full ingestion path for inbound events: validate the
// envelope, suppress duplicates, dispatch to a handler, and dead-letter
// anything that cannot be processed.
//
// Ingest returns an error only for infrastructure failures where the
// delivery should be retried by the transport. Bad events are quarantined
// and reported as success so the transport acknowledges them.
type Pipeline struct {
	validator   *event.Validator
	guard       *Guard
	dispatcher  *Dispatcher
	deadLetters storage.DeadLetterStore
	telemetry   *telemetry.Emitter
	clock       func() time.Time
	newID       func() (string, error)
}

// NewPipeline wires an ingestion pipeline.
func NewPipeline(validator *event.Validator, guard *Guard, dispatcher *Dispatcher, deadLetters storage.DeadLetterStore, emitter *telemetry.Emitter) *Pipeline {
	return &Pipeline{
		validator:   validator,
		guard:       guard,
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		telemetry:   emitter,
		clock:       time.Now,
		newID:       id.NewID,
	}
}

// Ingest processes one raw delivery from the transport.
func (p *Pipeline) Ingest(ctx context.Context, raw any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope, failure := p.validator.Validate(raw)
	if failure != nil {
		return p.deadLetterFailure(ctx, failure)
	}

	duplicate, layer, err := p.guard.Check(ctx, envelope.IdempotencyKey)
	if err != nil {
		// A blank key passes the schema's minLength but can never be
		// deduplicated; quarantine instead of redelivering forever.
		if errors.Is(err, apperrors.New(apperrors.CodeIdempotencyKeyEmpty, "")) {
			return p.deadLetterFailure(ctx, &event.Failure{
				Category:  event.CategorySchema,
				Message:   err.Error(),
				Issues:    []event.Issue{{Path: "/idempotencyKey", Message: err.Error(), Code: "minLength"}},
				Document:  envelopeDocument(envelope),
				EventID:   envelope.EventID,
				EventType: string(envelope.Type),
				ActorKind: string(envelope.Actor.Kind),
			})
		}
		return err
	}
	if duplicate {
		_ = p.telemetry.Emit(ctx, storage.TelemetryEvent{
			Name: telemetry.EventDuplicateDetected,
			Properties: map[string]string{
				"event_id":        envelope.EventID,
				"event_type":      string(envelope.Type),
				"idempotency_key": envelope.IdempotencyKey,
				"layer":           layer,
			},
		})
		return nil
	}

	_ = p.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventProcessingStarted,
		Properties: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(envelope.Type),
			"correlation_id": envelope.CorrelationID,
		},
	})

	// Retry and backoff belong to the transport, not the pipeline: a
	// handler failure is quarantined on the first attempt.
	if handlerErr := p.dispatcher.Dispatch(ctx, envelope); handlerErr != nil {
		p.guard.Release(envelope.IdempotencyKey)
		return p.deadLetterHandlerError(ctx, envelope, handlerErr)
	}

	if err := p.guard.Commit(ctx, envelope.IdempotencyKey); err != nil {
		return err
	}
	_ = p.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name: telemetry.EventProcessed,
		Properties: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(envelope.Type),
			"correlation_id": envelope.CorrelationID,
		},
	})
	return nil
}

// deadLetterFailure quarantines input that failed validation.
func (p *Pipeline) deadLetterFailure(ctx context.Context, failure *event.Failure) error {
	code := deadletter.CodeSchemaValidation
	if failure.Category == event.CategoryParse {
		code = deadletter.CodeJSONParse
	}
	record := deadletter.Record{
		OriginalEventID:  failure.EventID,
		EventType:        failure.EventType,
		ActorKind:        failure.ActorKind,
		RedactedEnvelope: deadletter.Redact(failure.Document),
		ErrorCategory:    string(failure.Category),
		ErrorMessage:     failure.Message,
		Issues:           failure.Issues,
		ErrorCode:        code,
		FinalError:       failure.Message,
	}
	return p.storeDeadLetter(ctx, record)
}

// deadLetterHandlerError quarantines an event whose handler failed or whose
// type has no handler. RetryCount stays at zero here: handler failures are
// acknowledged rather than redelivered, so the transport never retries them.
func (p *Pipeline) deadLetterHandlerError(ctx context.Context, envelope event.Envelope, handlerErr error) error {
	code := deadletter.CodeHandlerError
	if errors.Is(handlerErr, apperrors.New(apperrors.CodeEventTypeUnhandled, "")) {
		code = deadletter.CodeUnknown
	}
	record := deadletter.Record{
		OriginalEventID:  envelope.EventID,
		EventType:        string(envelope.Type),
		ActorKind:        string(envelope.Actor.Kind),
		RedactedEnvelope: deadletter.Redact(envelopeDocument(envelope)),
		ErrorCategory:    string(code),
		ErrorMessage:     handlerErr.Error(),
		ErrorCode:        code,
		FinalError:       handlerErr.Error(),
	}
	return p.storeDeadLetter(ctx, record)
}

func (p *Pipeline) storeDeadLetter(ctx context.Context, record deadletter.Record) error {
	recordID, err := p.newID()
	if err != nil {
		return fmt.Errorf("generate dead letter id: %w", err)
	}
	record.ID = recordID
	record.DeadLetteredUTC = p.clock().UTC()
	if err := p.deadLetters.StoreDeadLetter(ctx, record); err != nil {
		return fmt.Errorf("store dead letter: %w", err)
	}
	_ = p.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name:     telemetry.EventDeadLettered,
		Severity: string(telemetry.SeverityWarn),
		Properties: map[string]string{
			"dead_letter_id": record.ID,
			"event_id":       record.OriginalEventID,
			"event_type":     record.EventType,
			"error_code":     string(record.ErrorCode),
			"retry_count":    strconv.Itoa(record.RetryCount),
		},
	})
	return nil
}

// envelopeDocument rebuilds the document view of a typed envelope so the
// dead-letter redaction has the same shape for handler failures as for
// validation failures.
func envelopeDocument(envelope event.Envelope) map[string]any {
	return map[string]any{
		"eventId":        envelope.EventID,
		"type":           string(envelope.Type),
		"occurredUtc":    envelope.OccurredUTC.Format(time.RFC3339),
		"ingestedUtc":    envelope.IngestedUTC.Format(time.RFC3339),
		"actor":          map[string]any{"kind": string(envelope.Actor.Kind), "id": envelope.Actor.ID},
		"correlationId":  envelope.CorrelationID,
		"causationId":    envelope.CausationID,
		"idempotencyKey": envelope.IdempotencyKey,
		"version":        envelope.Version,
		"payload":        envelope.Payload,
	}
}
