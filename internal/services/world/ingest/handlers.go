package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/hollowmere/hollowmere/internal/services/world/domain/clock"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// Default simulated cost of actor actions, in milliseconds, used when the
// payload does not carry an explicit duration.
const (
	defaultMoveDurationMs = 6_000
	defaultLookDurationMs = 1_000
	defaultNPCTickMs      = 2_000
)

// HandlerSet bundles the built-in handlers for every known event type.
type HandlerSet struct {
	players   *clock.PlayerService
	locations *clock.LocationManager
	telemetry *telemetry.Emitter
}

// NewHandlerSet creates the built-in handlers.
func NewHandlerSet(players *clock.PlayerService, locations *clock.LocationManager, emitter *telemetry.Emitter) *HandlerSet {
	return &HandlerSet{players: players, locations: locations, telemetry: emitter}
}

// RegisterAll binds a handler for every known event type on the dispatcher.
func (h *HandlerSet) RegisterAll(dispatcher *Dispatcher) {
	dispatcher.Register(event.TypeActorMoved, HandlerFunc(h.handleActorMoved))
	dispatcher.Register(event.TypeActorLooked, HandlerFunc(h.handleActorLooked))
	dispatcher.Register(event.TypeNPCTicked, HandlerFunc(h.handleNPCTicked))
	dispatcher.Register(event.TypeExitCreated, HandlerFunc(h.handleExitCreated))
	dispatcher.Register(event.TypeAmbienceGenerated, HandlerFunc(h.handleLocationScoped))
	dispatcher.Register(event.TypeEnvironmentChanged, HandlerFunc(h.handleLocationScoped))
	dispatcher.Register(event.TypeQuestProposed, HandlerFunc(h.handleQuestProposed))
}

// handleActorMoved advances the actor's clock by the move cost, tracks the
// destination location, and reconciles the actor against the world clock on
// arrival.
func (h *HandlerSet) handleActorMoved(ctx context.Context, envelope event.Envelope) error {
	duration := payloadInt64(envelope.Payload, "durationMs", defaultMoveDurationMs)
	if _, err := h.players.AdvancePlayerTime(ctx, envelope.Actor.ID, duration, "move"); err != nil {
		return err
	}

	destination := payloadString(envelope.Payload, "toLocationId")
	if destination == "" {
		return nil
	}
	if err := h.locations.Track(ctx, destination); err != nil {
		return err
	}
	if _, err := h.players.Reconcile(ctx, envelope.Actor.ID, destination); err != nil {
		return err
	}
	return nil
}

func (h *HandlerSet) handleActorLooked(ctx context.Context, envelope event.Envelope) error {
	duration := payloadInt64(envelope.Payload, "durationMs", defaultLookDurationMs)
	_, err := h.players.AdvancePlayerTime(ctx, envelope.Actor.ID, duration, "look")
	return err
}

func (h *HandlerSet) handleNPCTicked(ctx context.Context, envelope event.Envelope) error {
	duration := payloadInt64(envelope.Payload, "durationMs", defaultNPCTickMs)
	_, err := h.players.AdvancePlayerTime(ctx, envelope.Actor.ID, duration, "npc.tick")
	return err
}

// handleExitCreated tracks both ends of a new exit so world advances project
// onto them.
func (h *HandlerSet) handleExitCreated(ctx context.Context, envelope event.Envelope) error {
	from := payloadString(envelope.Payload, "fromLocationId")
	to := payloadString(envelope.Payload, "toLocationId")
	if from == "" || to == "" {
		return fmt.Errorf("exit event requires fromLocationId and toLocationId")
	}
	if err := h.locations.Track(ctx, from); err != nil {
		return err
	}
	return h.locations.Track(ctx, to)
}

// handleLocationScoped acknowledges a world event bound to one location,
// tracking the location if it is new.
func (h *HandlerSet) handleLocationScoped(ctx context.Context, envelope event.Envelope) error {
	locationID := payloadString(envelope.Payload, "locationId")
	if locationID == "" {
		return fmt.Errorf("%s event requires locationId", envelope.Type)
	}
	if err := h.locations.Track(ctx, locationID); err != nil {
		return err
	}
	return h.acknowledge(ctx, envelope, map[string]string{"location_id": locationID})
}

// handleQuestProposed acknowledges a quest proposal. Quest resolution lives
// outside the world core; the event only needs durable acknowledgment here.
func (h *HandlerSet) handleQuestProposed(ctx context.Context, envelope event.Envelope) error {
	return h.acknowledge(ctx, envelope, map[string]string{"actor_id": envelope.Actor.ID})
}

func (h *HandlerSet) acknowledge(ctx context.Context, envelope event.Envelope, extra map[string]string) error {
	properties := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(envelope.Type),
		"correlation_id": envelope.CorrelationID,
	}
	for key, value := range extra {
		properties[key] = value
	}
	return h.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name:       "Ingest.Acknowledged",
		Properties: properties,
	})
}

func payloadInt64(payload map[string]any, key string, fallback int64) int64 {
	value, ok := payload[key]
	if !ok {
		return fallback
	}
	// JSON numbers decode as float64.
	number, ok := value.(float64)
	if !ok || number <= 0 {
		return fallback
	}
	return int64(number)
}

func payloadString(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}
