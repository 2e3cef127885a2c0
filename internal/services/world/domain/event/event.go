// Package event defines the world event envelope and its validation.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a world event.
type Type string

// Actor-originated events.
const (
	// TypeActorMoved records an actor moving between locations.
	TypeActorMoved Type = "actor.moved"
	// TypeActorLooked records an actor inspecting its surroundings.
	TypeActorLooked Type = "actor.looked"
	// TypeNPCTicked records a background NPC simulation step.
	TypeNPCTicked Type = "npc.ticked"
)

// World-shaping events.
const (
	// TypeExitCreated records a new exit between locations.
	TypeExitCreated Type = "world.exit_created"
	// TypeAmbienceGenerated records ambient description generation.
	TypeAmbienceGenerated Type = "world.ambience_generated"
	// TypeEnvironmentChanged records an environment state change.
	TypeEnvironmentChanged Type = "world.environment_changed"
	// TypeQuestProposed records a quest proposal surfaced to a player.
	TypeQuestProposed Type = "quest.proposed"
)

// KnownTypes lists every event type the dispatcher can be asked to route.
func KnownTypes() []Type {
	return []Type{
		TypeActorMoved,
		TypeActorLooked,
		TypeNPCTicked,
		TypeExitCreated,
		TypeAmbienceGenerated,
		TypeEnvironmentChanged,
		TypeQuestProposed,
	}
}

// IsKnown reports whether the type belongs to the fixed event set.
func (t Type) IsKnown() bool {
	for _, known := range KnownTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Domain returns the domain prefix of the event type (e.g., "actor", "world").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// ActorKind identifies who or what produced an event.
type ActorKind string

const (
	// ActorKindPlayer indicates a player-controlled actor.
	ActorKindPlayer ActorKind = "player"
	// ActorKindNPC indicates a simulated non-player actor.
	ActorKindNPC ActorKind = "npc"
	// ActorKindSystem indicates a background world process.
	ActorKindSystem ActorKind = "system"
)

// IsKnown reports whether the actor kind is recognized.
func (k ActorKind) IsKnown() bool {
	switch k {
	case ActorKindPlayer, ActorKindNPC, ActorKindSystem:
		return true
	}
	return false
}

// Actor identifies the entity that produced an event.
type Actor struct {
	Kind ActorKind
	ID   string
}

// Envelope is the validated, typed representation of an inbound world event.
// Envelopes are created by producers, consumed exactly once by the ingestion
// pipeline, and never mutated.
type Envelope struct {
	// EventID is the producer-assigned UUIDv4 identity of the event.
	EventID string
	// Type identifies the kind of event.
	Type Type
	// OccurredUTC is when the event happened at the producer.
	OccurredUTC time.Time
	// IngestedUTC is when the event entered the transport.
	// Always at or after OccurredUTC.
	IngestedUTC time.Time
	// Actor identifies who produced the event.
	Actor Actor
	// CorrelationID ties the event to a cross-system trace.
	CorrelationID string
	// CausationID optionally names the event that caused this one.
	CausationID string
	// IdempotencyKey is the caller-supplied token identifying this
	// logical event across redeliveries.
	IdempotencyKey string
	// Version is the envelope schema version, starting at 1.
	Version int
	// Payload carries type-specific data.
	Payload map[string]any
}

// Valid reports whether the envelope carries the minimum identity fields.
// Full validation happens in the Validator; this is a cheap guard for
// code handed an Envelope directly.
func (e Envelope) Valid() bool {
	return strings.TrimSpace(e.EventID) != "" &&
		e.Type.IsKnown() &&
		strings.TrimSpace(e.IdempotencyKey) != "" &&
		e.Version >= 1
}
