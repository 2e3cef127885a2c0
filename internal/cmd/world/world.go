// Package world parses world command flags and launches the world runtime.
package world

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/hollowmere/hollowmere/internal/platform/cmd"
	worldserver "github.com/hollowmere/hollowmere/internal/services/world/app"
)

// Config holds world command configuration.
type Config struct {
	Port        int           `env:"HOLLOWMERE_WORLD_PORT" envDefault:"8091"`
	DBPath      string        `env:"HOLLOWMERE_WORLD_DB_PATH" envDefault:"data/world.db"`
	MemoryStore bool          `env:"HOLLOWMERE_WORLD_MEMORY_STORE" envDefault:"false"`
	CacheTTL    time.Duration `env:"HOLLOWMERE_WORLD_IDEMPOTENCY_CACHE_TTL" envDefault:"10m"`
	CacheSize   int           `env:"HOLLOWMERE_WORLD_IDEMPOTENCY_CACHE_SIZE" envDefault:"10000"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The world health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The world SQLite database path")
	fs.BoolVar(&cfg.MemoryStore, "memory-store", cfg.MemoryStore, "Use the in-memory store instead of SQLite")
	fs.DurationVar(&cfg.CacheTTL, "idempotency-cache-ttl", cfg.CacheTTL, "Local idempotency cache entry TTL")
	fs.IntVar(&cfg.CacheSize, "idempotency-cache-size", cfg.CacheSize, "Local idempotency cache capacity")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the world runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorld, func(context.Context) error {
		return worldserver.Run(ctx, worldserver.RuntimeConfig{
			Port:        cfg.Port,
			DBPath:      cfg.DBPath,
			MemoryStore: cfg.MemoryStore,
			CacheTTL:    cfg.CacheTTL,
			CacheSize:   cfg.CacheSize,
		})
	})
}
