package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Category classifies why an envelope failed validation.
type Category string

const (
	// CategoryParse marks input that was not valid JSON at all.
	CategoryParse Category = "json-parse"
	// CategorySchema marks JSON that does not satisfy the envelope schema.
	CategorySchema Category = "schema-validation"
)

// Issue is a single schema violation with its location in the document.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Failure is the structured result of a rejected envelope. Document holds
// the decoded input (when parseable) so the dead-letter sink can build a
// redacted record; it is never dispatched.
type Failure struct {
	Category Category
	Message  string
	Issues   []Issue
	Document map[string]any

	// Best-effort identity extracted from the document, for dead-letter
	// attribution. Empty when the input could not be parsed that far.
	EventID   string
	EventType string
	ActorKind string
}

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["eventId", "type", "occurredUtc", "ingestedUtc", "actor", "correlationId", "idempotencyKey", "version", "payload"],
  "properties": {
    "eventId": {
      "type": "string",
      "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$"
    },
    "type": {
      "type": "string",
      "enum": ["actor.moved", "actor.looked", "npc.ticked", "world.exit_created", "world.ambience_generated", "world.environment_changed", "quest.proposed"]
    },
    "occurredUtc": {"type": "string", "format": "date-time"},
    "ingestedUtc": {"type": "string", "format": "date-time"},
    "actor": {
      "type": "object",
      "required": ["kind", "id"],
      "properties": {
        "kind": {"type": "string", "enum": ["player", "npc", "system"]},
        "id": {"type": "string", "minLength": 1}
      }
    },
    "correlationId": {"type": "string", "minLength": 1},
    "causationId": {"type": "string"},
    "idempotencyKey": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "payload": {"type": "object"}
  }
}`

// Validator parses raw transport input into typed envelopes.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the envelope schema. It fails only on a programming
// error in the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("envelope.json", strings.NewReader(envelopeSchema)); err != nil {
		return nil, fmt.Errorf("add envelope schema: %w", err)
	}
	schema, err := compiler.Compile("envelope.json")
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate turns raw input into a typed Envelope or a classified Failure.
// Raw may be a JSON string, raw bytes, or an already-decoded document.
func (v *Validator) Validate(raw any) (Envelope, *Failure) {
	document, failure := decodeDocument(raw)
	if failure != nil {
		return Envelope{}, failure
	}

	if err := v.schema.Validate(document); err != nil {
		failure := &Failure{
			Category: CategorySchema,
			Message:  "envelope does not satisfy schema",
			Issues:   flattenIssues(err),
			Document: document,
		}
		failure.EventID, failure.EventType, failure.ActorKind = extractIdentity(document)
		return Envelope{}, failure
	}

	envelope, issues := decodeEnvelope(document)
	if len(issues) > 0 {
		failure := &Failure{
			Category: CategorySchema,
			Message:  "envelope fields are inconsistent",
			Issues:   issues,
			Document: document,
		}
		failure.EventID, failure.EventType, failure.ActorKind = extractIdentity(document)
		return Envelope{}, failure
	}
	return envelope, nil
}

func decodeDocument(raw any) (map[string]any, *Failure) {
	var data []byte
	switch value := raw.(type) {
	case nil:
		return nil, &Failure{Category: CategoryParse, Message: "input is empty"}
	case map[string]any:
		// Normalize pre-parsed documents through JSON so numeric types
		// match what json.Unmarshal produces.
		normalized, err := json.Marshal(value)
		if err != nil {
			return nil, &Failure{
				Category: CategoryParse,
				Message:  fmt.Sprintf("encode document: %v", err),
			}
		}
		data = normalized
	case string:
		data = []byte(value)
	case []byte:
		data = value
	case json.RawMessage:
		data = value
	default:
		return nil, &Failure{
			Category: CategoryParse,
			Message:  fmt.Sprintf("unsupported input type %T", raw),
		}
	}

	var document map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, &Failure{
			Category: CategoryParse,
			Message:  fmt.Sprintf("decode json: %v", err),
		}
	}
	return document, nil
}

// decodeEnvelope maps a schema-valid document into the typed envelope.
// Checks that the schema cannot express (timestamp ordering) surface as
// issues here.
func decodeEnvelope(document map[string]any) (Envelope, []Issue) {
	var issues []Issue

	occurred, err := time.Parse(time.RFC3339, stringField(document, "occurredUtc"))
	if err != nil {
		issues = append(issues, Issue{Path: "/occurredUtc", Message: err.Error(), Code: "timestamp"})
	}
	ingested, err := time.Parse(time.RFC3339, stringField(document, "ingestedUtc"))
	if err != nil {
		issues = append(issues, Issue{Path: "/ingestedUtc", Message: err.Error(), Code: "timestamp"})
	}
	if len(issues) == 0 && occurred.After(ingested) {
		issues = append(issues, Issue{
			Path:    "/occurredUtc",
			Message: "occurredUtc must not be after ingestedUtc",
			Code:    "order",
		})
	}

	version, ok := document["version"].(float64)
	if !ok || version != float64(int(version)) {
		issues = append(issues, Issue{Path: "/version", Message: "version must be an integer", Code: "type"})
	}

	actorDoc, _ := document["actor"].(map[string]any)
	payload, _ := document["payload"].(map[string]any)

	envelope := Envelope{
		EventID:     stringField(document, "eventId"),
		Type:        Type(stringField(document, "type")),
		OccurredUTC: occurred.UTC(),
		IngestedUTC: ingested.UTC(),
		Actor: Actor{
			Kind: ActorKind(stringField(actorDoc, "kind")),
			ID:   stringField(actorDoc, "id"),
		},
		CorrelationID:  stringField(document, "correlationId"),
		CausationID:    stringField(document, "causationId"),
		IdempotencyKey: stringField(document, "idempotencyKey"),
		Version:        int(version),
		Payload:        payload,
	}
	return envelope, issues
}

func stringField(document map[string]any, key string) string {
	if document == nil {
		return ""
	}
	value, _ := document[key].(string)
	return value
}

func extractIdentity(document map[string]any) (eventID, eventType, actorKind string) {
	eventID = stringField(document, "eventId")
	eventType = stringField(document, "type")
	if actorDoc, ok := document["actor"].(map[string]any); ok {
		actorKind = stringField(actorDoc, "kind")
	}
	return eventID, eventType, actorKind
}

// flattenIssues converts a jsonschema validation error into flat issues.
func flattenIssues(err error) []Issue {
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Issue{{Path: "/", Message: err.Error(), Code: "schema"}}
	}
	var issues []Issue
	collectIssues(validationErr, &issues)
	if len(issues) == 0 {
		issues = append(issues, Issue{Path: "/", Message: validationErr.Message, Code: "schema"})
	}
	return issues
}

func collectIssues(validationErr *jsonschema.ValidationError, issues *[]Issue) {
	if validationErr == nil {
		return
	}
	if len(validationErr.Causes) == 0 {
		path := validationErr.InstanceLocation
		if path == "" {
			path = "/"
		}
		*issues = append(*issues, Issue{
			Path:    path,
			Message: validationErr.Message,
			Code:    keywordCode(validationErr.KeywordLocation),
		})
		return
	}
	for _, cause := range validationErr.Causes {
		collectIssues(cause, issues)
	}
}

func keywordCode(keywordLocation string) string {
	if keywordLocation == "" {
		return "schema"
	}
	segments := strings.Split(keywordLocation, "/")
	return segments[len(segments)-1]
}
