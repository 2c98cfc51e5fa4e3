// Package app opens the backends shared by the API and the maintenance CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-cart/internal/catalog"
	"github.com/noah-isme/storefront-cart/internal/config"
	"github.com/noah-isme/storefront-cart/internal/health"
	"github.com/noah-isme/storefront-cart/internal/lock"
	"github.com/noah-isme/storefront-cart/internal/obs"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

// Dependencies holds the connections opened for one process.
type Dependencies struct {
	Store  storage.Store
	Redis  *redis.Client
	DB     *pgxpool.Pool
	SQLite *storage.SQLiteStore
	// Locker is set when Redis is available so instances sharing a key
	// serialise their writes.
	Locker storage.Locker
	Probes map[string]health.Probe

	closers []func() error
}

// Options tunes Open.
type Options struct {
	// Instrument enables redisotel tracing and metrics on the Redis client.
	Instrument bool
	Logger     zerolog.Logger
}

// Open connects the configured storage driver. Redis is opened whenever
// REDIS_URL is set because rate limiting, idempotency and the catalog cache
// use it regardless of the cart driver.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Probes: map[string]health.Probe{}}
	fail := func(err error) (*Dependencies, error) {
		_ = deps.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL, opts)
		if err != nil {
			return fail(err)
		}
		deps.Redis = client
		deps.Locker = lock.Locker{R: client, RetryBackoff: 25 * time.Millisecond}
		deps.Probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		deps.closers = append(deps.closers, client.Close)
	}

	switch cfg.StorageDriver {
	case config.DriverMemory:
		deps.Store = storage.NewMemoryStore()
	case config.DriverRedis:
		if deps.Redis == nil {
			return fail(errors.New("redis driver selected without REDIS_URL"))
		}
		deps.Store = storage.NewRedisStore(deps.Redis, cfg.StorageTTL)
	case config.DriverSQLite:
		store, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return fail(err)
		}
		deps.SQLite = store
		deps.Store = store
		deps.Probes["sqlite"] = store.Ping
		deps.closers = append(deps.closers, store.Close)
	case config.DriverPostgres:
		pool, err := openPostgres(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			return fail(err)
		}
		deps.DB = pool
		deps.closers = append(deps.closers, func() error { pool.Close(); return nil })
		store := storage.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		deps.Store = store
		deps.Probes["postgres"] = store.Ping
	default:
		return fail(fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver))
	}
	return deps, nil
}

func openRedis(ctx context.Context, url string, opts Options) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if opts.Instrument {
		if err := redisotel.InstrumentTracing(client); err != nil {
			opts.Logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			opts.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func openPostgres(ctx context.Context, url string, opts Options) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "storefront-cart"
	if opts.Instrument {
		poolConfig.ConnConfig.Tracer = obs.CartStoreTracer{}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Close releases every connection in reverse opening order.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// LoadSeed returns the seed at path, or the embedded catalog when path is empty.
func LoadSeed(path string) (*catalog.Seed, error) {
	if path == "" {
		return catalog.DefaultSeed()
	}
	return catalog.LoadSeed(path)
}
