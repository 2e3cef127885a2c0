// Package deadletter defines the durable record kept for events that could
// not be processed, and the redaction applied before persisting them.
package deadletter

import (
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
)

// Code classifies why an event was dead-lettered.
type Code string

const (
	// CodeJSONParse marks input that was not valid JSON.
	CodeJSONParse Code = "json-parse"
	// CodeSchemaValidation marks an envelope that failed schema checks.
	CodeSchemaValidation Code = "schema-validation"
	// CodeHandlerError marks a handler that failed while processing.
	CodeHandlerError Code = "handler-error"
	// CodeUnknown marks failures outside the other classes, including
	// envelopes whose type has no registered handler.
	CodeUnknown Code = "unknown"
)

// Record is the immutable dead-letter entry persisted for a failed event.
// Records never carry raw payload content; RedactedEnvelope holds a masked
// summary produced by Redact.
type Record struct {
	ID string

	// Best-effort identity of the failed event.
	OriginalEventID string
	EventType       string
	ActorKind       string

	// RedactedEnvelope is a masked and truncated view of the input.
	RedactedEnvelope map[string]any

	ErrorCategory string
	ErrorMessage  string
	Issues        []event.Issue

	ErrorCode       Code
	DeadLetteredUTC time.Time
	RetryCount      int
	FinalError      string
}
