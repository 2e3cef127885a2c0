package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/hollowmere/hollowmere/internal/platform/errors"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// Duplicate-detection layer names reported by Guard.Check.
const (
	LayerLocal   = "local"
	LayerDurable = "durable"
)

// Guard enforces at-most-once processing per idempotency key across
// redeliveries. It checks a fast local cache first and falls back to the
// durable registry, which survives restarts and cache wipes.
//
// A key is marked in-flight between Check and Commit/Release so two
// concurrent deliveries of the same key cannot both pass.
type Guard struct {
	cache    *SeenCache
	registry storage.IdempotencyRegistry
	clock    func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGuard creates an idempotency guard over the given durable registry.
func NewGuard(cache *SeenCache, registry storage.IdempotencyRegistry) *Guard {
	return &Guard{
		cache:    cache,
		registry: registry,
		clock:    time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Check reports whether the key was already processed (or is being processed
// right now) and which layer detected it. A false result reserves the key;
// the caller must follow with Commit on success or Release on failure.
func (g *Guard) Check(ctx context.Context, key string) (duplicate bool, layer string, err error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, "", apperrors.New(apperrors.CodeIdempotencyKeyEmpty, "idempotency key is required")
	}

	g.mu.Lock()
	if _, processing := g.inFlight[key]; processing {
		g.mu.Unlock()
		return true, LayerLocal, nil
	}
	if g.cache.Seen(key) {
		g.mu.Unlock()
		return true, LayerLocal, nil
	}
	// Reserve before the registry read so a concurrent delivery of the same
	// key blocks on the in-flight mark, not on a racing read.
	g.inFlight[key] = struct{}{}
	g.mu.Unlock()

	seen, err := g.registry.HasIdempotencyKey(ctx, key)
	if err != nil {
		g.Release(key)
		return false, "", fmt.Errorf("query idempotency registry: %w", err)
	}
	if seen {
		g.Release(key)
		// Backfill the cache so the next redelivery short-circuits locally.
		g.cache.Add(key)
		return true, LayerDurable, nil
	}
	return false, "", nil
}

// Commit durably records a key after its event was processed and releases
// the in-flight reservation.
func (g *Guard) Commit(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	defer g.Release(key)
	if err := g.registry.PutIdempotencyKey(ctx, key, g.clock().UTC()); err != nil {
		return fmt.Errorf("commit idempotency key: %w", err)
	}
	g.cache.Add(key)
	return nil
}

// Release drops the in-flight reservation without recording the key, so the
// event can be retried on a later delivery.
func (g *Guard) Release(key string) {
	key = strings.TrimSpace(key)
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}
