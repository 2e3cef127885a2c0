package event

import (
	"strings"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return validator
}

func validDocument() map[string]any {
	return map[string]any{
		"eventId":        "0b9cf8a2-4f6d-4a94-9c2e-9a1f7a3b5c6d",
		"type":           "actor.moved",
		"occurredUtc":    "2026-08-20T10:00:00Z",
		"ingestedUtc":    "2026-08-20T10:00:01Z",
		"actor":          map[string]any{"kind": "player", "id": "player-1"},
		"correlationId":  "corr-1",
		"idempotencyKey": "key-1",
		"version":        1,
		"payload":        map[string]any{"toLocationId": "loc-2"},
	}
}

func TestValidateAcceptsWellFormedEnvelope(t *testing.T) {
	validator := newTestValidator(t)

	envelope, failure := validator.Validate(validDocument())
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if envelope.EventID != "0b9cf8a2-4f6d-4a94-9c2e-9a1f7a3b5c6d" {
		t.Fatalf("event id = %q", envelope.EventID)
	}
	if envelope.Type != TypeActorMoved {
		t.Fatalf("type = %q, want %q", envelope.Type, TypeActorMoved)
	}
	if envelope.Actor.Kind != ActorKindPlayer {
		t.Fatalf("actor kind = %q, want %q", envelope.Actor.Kind, ActorKindPlayer)
	}
	if envelope.Version != 1 {
		t.Fatalf("version = %d, want 1", envelope.Version)
	}
	if envelope.OccurredUTC.After(envelope.IngestedUTC) {
		t.Fatal("occurred must not be after ingested")
	}
	if !envelope.Valid() {
		t.Fatal("expected envelope to self-report valid")
	}
}

func TestValidateAcceptsJSONString(t *testing.T) {
	validator := newTestValidator(t)

	raw := `{
		"eventId": "0b9cf8a2-4f6d-4a94-9c2e-9a1f7a3b5c6d",
		"type": "actor.looked",
		"occurredUtc": "2026-08-20T10:00:00Z",
		"ingestedUtc": "2026-08-20T10:00:00Z",
		"actor": {"kind": "npc", "id": "npc-7"},
		"correlationId": "corr-2",
		"idempotencyKey": "key-2",
		"version": 3,
		"payload": {}
	}`
	envelope, failure := validator.Validate(raw)
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if envelope.Type != TypeActorLooked {
		t.Fatalf("type = %q, want %q", envelope.Type, TypeActorLooked)
	}
	if envelope.Version != 3 {
		t.Fatalf("version = %d, want 3", envelope.Version)
	}
}

func TestValidateClassifiesMalformedJSON(t *testing.T) {
	validator := newTestValidator(t)

	_, failure := validator.Validate(`{"eventId": `)
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Category != CategoryParse {
		t.Fatalf("category = %q, want %q", failure.Category, CategoryParse)
	}
}

func TestValidateClassifiesMissingType(t *testing.T) {
	validator := newTestValidator(t)

	document := validDocument()
	delete(document, "type")
	_, failure := validator.Validate(document)
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Category != CategorySchema {
		t.Fatalf("category = %q, want %q", failure.Category, CategorySchema)
	}
	if len(failure.Issues) == 0 {
		t.Fatal("expected at least one issue")
	}
	if failure.EventID != "0b9cf8a2-4f6d-4a94-9c2e-9a1f7a3b5c6d" {
		t.Fatalf("expected best-effort event id, got %q", failure.EventID)
	}
}

func TestValidateRejectsVersionZero(t *testing.T) {
	validator := newTestValidator(t)

	document := validDocument()
	document["version"] = 0
	if _, failure := validator.Validate(document); failure == nil {
		t.Fatal("expected version 0 to be rejected")
	}

	document["version"] = 1
	if _, failure := validator.Validate(document); failure != nil {
		t.Fatalf("expected version 1 to be accepted, got %+v", failure)
	}
}

func TestValidateRejectsUnknownEventType(t *testing.T) {
	validator := newTestValidator(t)

	document := validDocument()
	document["type"] = "actor.teleported"
	_, failure := validator.Validate(document)
	if failure == nil {
		t.Fatal("expected unknown type to be rejected")
	}
	if failure.Category != CategorySchema {
		t.Fatalf("category = %q, want %q", failure.Category, CategorySchema)
	}
}

func TestValidateRejectsUnknownActorKind(t *testing.T) {
	validator := newTestValidator(t)

	document := validDocument()
	document["actor"] = map[string]any{"kind": "ghost", "id": "g-1"}
	if _, failure := validator.Validate(document); failure == nil {
		t.Fatal("expected unknown actor kind to be rejected")
	}
}

func TestValidateRejectsNonUUIDEventID(t *testing.T) {
	validator := newTestValidator(t)

	document := validDocument()
	document["eventId"] = "not-a-uuid"
	_, failure := validator.Validate(document)
	if failure == nil {
		t.Fatal("expected malformed event id to be rejected")
	}
	found := false
	for _, issue := range failure.Issues {
		if strings.Contains(issue.Path, "eventId") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an issue for /eventId, got %+v", failure.Issues)
	}
}

func TestValidateRejectsOccurredAfterIngested(t *testing.T) {
	validator := newTestValidator(t)

	document := validDocument()
	document["occurredUtc"] = "2026-08-20T10:00:05Z"
	document["ingestedUtc"] = "2026-08-20T10:00:00Z"
	_, failure := validator.Validate(document)
	if failure == nil {
		t.Fatal("expected ordering violation to be rejected")
	}
	if failure.Category != CategorySchema {
		t.Fatalf("category = %q, want %q", failure.Category, CategorySchema)
	}
}

func TestValidateRejectsUnsupportedInputType(t *testing.T) {
	validator := newTestValidator(t)

	_, failure := validator.Validate(42)
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Category != CategoryParse {
		t.Fatalf("category = %q, want %q", failure.Category, CategoryParse)
	}
}

func TestTypeDomainValidate(t *testing.T) {
	if got := TypeActorMoved.Domain(); got != "actor" {
		t.Fatalf("domain = %q, want %q", got, "actor")
	}
	if got := TypeExitCreated.Domain(); got != "world" {
		t.Fatalf("domain = %q, want %q", got, "world")
	}
}

func TestKnownTypesAreKnown(t *testing.T) {
	for _, typ := range KnownTypes() {
		if !typ.IsKnown() {
			t.Fatalf("type %q should be known", typ)
		}
	}
	if Type("actor.teleported").IsKnown() {
		t.Fatal("unexpected type should not be known")
	}
}
