// Package errors provides structured error handling for the world core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Envelope errors
	CodeEnvelopeParse       Code = "ENVELOPE_PARSE"
	CodeEnvelopeSchema      Code = "ENVELOPE_SCHEMA"
	CodeEventTypeUnhandled  Code = "EVENT_TYPE_UNHANDLED"
	CodeHandlerFailure      Code = "HANDLER_FAILURE"
	CodeIdempotencyKeyEmpty Code = "IDEMPOTENCY_KEY_EMPTY"

	// Clock errors
	CodeActorNotFound       Code = "ACTOR_NOT_FOUND"
	CodeDurationNotPositive Code = "DURATION_NOT_POSITIVE"
	CodeElapsedNotPositive  Code = "ELAPSED_NOT_POSITIVE"
	CodeDeltaNotPositive    Code = "DELTA_NOT_POSITIVE"
	CodeDriftRateInvalid    Code = "DRIFT_RATE_INVALID"

	// Ledger errors
	CodeScopeKeyMalformed Code = "SCOPE_KEY_MALFORMED"
	CodeScopeActorIDEmpty Code = "SCOPE_ACTOR_ID_EMPTY"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeEnvelopeParse,
		CodeEnvelopeSchema,
		CodeIdempotencyKeyEmpty,
		CodeDurationNotPositive,
		CodeElapsedNotPositive,
		CodeDeltaNotPositive,
		CodeDriftRateInvalid,
		CodeScopeKeyMalformed,
		CodeScopeActorIDEmpty:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeEventTypeUnhandled:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeActorNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
