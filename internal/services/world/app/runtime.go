// Package app wires the world core's services, storage, and ingestion
// pipeline into a runnable process.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hollowmere/hollowmere/internal/services/world/domain/clock"
	"github.com/hollowmere/hollowmere/internal/services/world/domain/event"
	"github.com/hollowmere/hollowmere/internal/services/world/ingest"
	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
	worldmemory "github.com/hollowmere/hollowmere/internal/services/world/storage/memory"
	worldsqlite "github.com/hollowmere/hollowmere/internal/services/world/storage/sqlite"
)

// RuntimeConfig controls world runtime startup and dependencies.
type RuntimeConfig struct {
	Port        int
	DBPath      string
	MemoryStore bool
	CacheTTL    time.Duration
	CacheSize   int
}

const (
	defaultWorldPort = 8091
	defaultWorldDB   = "data/world.db"
)

// Stores groups the persistence interfaces the world runtime needs. Both
// the memory and sqlite stores satisfy it.
type Stores interface {
	storage.ActorStore
	storage.WorldClockStore
	storage.LocationClockStore
	storage.LedgerStore
	storage.DeadLetterStore
	storage.IdempotencyRegistry
	storage.TelemetryStore
}

// Core bundles the wired world services for callers that embed the world
// runtime instead of running it as a process.
type Core struct {
	World     *clock.WorldService
	Players   *clock.PlayerService
	Locations *clock.LocationManager
	Notifier  *clock.AsyncNotifier
	Pipeline  *ingest.Pipeline
	Telemetry *telemetry.Emitter
}

// BuildCore wires the world services over the given stores.
func BuildCore(stores Stores, cfg RuntimeConfig) (*Core, error) {
	if stores == nil {
		return nil, fmt.Errorf("stores are required")
	}

	emitter := telemetry.NewEmitter(stores)
	locations := clock.NewLocationManager(stores, emitter)
	notifier := clock.NewAsyncNotifier(locations, emitter)
	world := clock.NewWorldService(stores, stores, emitter, notifier)
	players := clock.NewPlayerService(stores, world, stores, emitter)

	validator, err := event.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("build envelope validator: %w", err)
	}
	guard := ingest.NewGuard(ingest.NewSeenCache(cfg.CacheTTL, cfg.CacheSize), stores)
	dispatcher := ingest.NewDispatcher()
	ingest.NewHandlerSet(players, locations, emitter).RegisterAll(dispatcher)
	pipeline := ingest.NewPipeline(validator, guard, dispatcher, stores, emitter)

	return &Core{
		World:     world,
		Players:   players,
		Locations: locations,
		Notifier:  notifier,
		Pipeline:  pipeline,
		Telemetry: emitter,
	}, nil
}

// Run starts the world runtime: storage, wired services, the notifier loop,
// and a health gRPC server. It blocks until the context is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorldPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorldDB
	}

	var stores Stores
	if cfg.MemoryStore {
		stores = worldmemory.NewStore()
	} else {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create world storage dir: %w", err)
			}
		}
		sqliteStore, err := worldsqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open world sqlite store: %w", err)
		}
		defer func() {
			if closeErr := sqliteStore.Close(); closeErr != nil {
				log.Printf("close world sqlite store: %v", closeErr)
			}
		}()
		stores = sqliteStore
	}

	core, err := BuildCore(stores, cfg)
	if err != nil {
		return err
	}

	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		if err := core.Notifier.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("world notifier stopped: %v", err)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on world port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("world.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
		<-notifierDone
	}()

	log.Printf("world server listening at %v", listener.Addr())
	<-ctx.Done()
	return ctx.Err()
}
