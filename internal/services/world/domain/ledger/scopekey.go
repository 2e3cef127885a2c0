package ledger

import (
	"fmt"
	"strings"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
)

// ScopeKind distinguishes world-scoped from actor-scoped ledger entries.
type ScopeKind string

const (
	// ScopeWorld is the single world clock scope.
	ScopeWorld ScopeKind = "world"
	// ScopeActor is a per-actor clock scope.
	ScopeActor ScopeKind = "actor"
)

const (
	worldScopeKey    = "wc"
	actorScopePrefix = "player:"
)

// Scope is the decoded form of a ledger scope key.
type Scope struct {
	Kind    ScopeKind
	ActorID string
}

// WorldScopeKey returns the scope key for world clock entries.
func WorldScopeKey() string {
	return worldScopeKey
}

// ActorScopeKey returns the scope key for an actor's clock entries.
func ActorScopeKey(actorID string) (string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", apperrors.New(apperrors.CodeScopeActorIDEmpty, "actor id is required for actor scope key")
	}
	return actorScopePrefix + actorID, nil
}

// ParseScopeKey decodes a scope key produced by WorldScopeKey or
// ActorScopeKey, failing with a descriptive error on anything else.
func ParseScopeKey(key string) (Scope, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == worldScopeKey {
		return Scope{Kind: ScopeWorld}, nil
	}
	if actorID, ok := strings.CutPrefix(trimmed, actorScopePrefix); ok {
		if actorID == "" {
			return Scope{}, apperrors.New(apperrors.CodeScopeKeyMalformed,
				fmt.Sprintf("scope key %q has an empty actor id", key))
		}
		return Scope{Kind: ScopeActor, ActorID: actorID}, nil
	}
	return Scope{}, apperrors.New(apperrors.CodeScopeKeyMalformed,
		fmt.Sprintf("scope key %q is neither %q nor %q<id>", key, worldScopeKey, actorScopePrefix))
}
