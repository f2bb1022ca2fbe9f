// Package app assembles the emission pipeline from configuration. The HTTP
// server and the operator CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"comanda/internal/config"
	"comanda/internal/domain/fiscal/emission"
	"comanda/internal/infrastructure/gateway"
	"comanda/internal/infrastructure/http/v1/handlers"
	"comanda/internal/infrastructure/lock"
	"comanda/internal/infrastructure/numerator"
	"comanda/internal/infrastructure/storage/postgres"
	"comanda/pkg/logger"
)

// lockPrefix namespaces emission locks in a shared Redis.
const lockPrefix = "comanda:"

// App holds the wired components and owns their connections.
type App struct {
	Pool      *postgres.Pool
	Store     *postgres.Store
	Allocator *numerator.Service
	Emission  *emission.Service
	Redis     *redis.Client

	codec *postgres.DocumentCodec
}

// New connects to Postgres (and Redis when configured) and wires the pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.AutoMigrate {
		st, err := postgres.MigrateUp(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "database migrated", "version", st.Version)
	}

	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		return nil, err
	}
	a := &App{Pool: pool}

	a.codec, err = postgres.NewDocumentCodec(cfg.CompressThreshold)
	if err != nil {
		a.Close()
		return nil, err
	}

	txm := postgres.NewTxManager(pool)
	a.Store = postgres.NewStore(txm, a.codec)
	// Allocation runs on the pool, outside any business transaction.
	a.Allocator = numerator.New(pool)

	var locker emission.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		locker = lock.NewRedisLocker(a.Redis, lockPrefix)
	} else {
		logger.Warn(ctx, "REDIS_URL not set; emission lock is local to this process")
		locker = lock.NewMemoryLocker()
	}

	authenticator := gateway.NewAuthenticator(cfg.Gateway)
	var tokens emission.TokenProvider = authenticator
	if cfg.TokenCache {
		tokens = gateway.NewTokenCache(authenticator, cfg.Gateway.TokenSkew, cfg.Gateway.Timeout)
	}

	a.Emission = emission.NewService(emission.Config{
		Store:         a.Store,
		Allocator:     a.Allocator,
		Tokens:        tokens,
		Gateway:       gateway.NewClient(cfg.Gateway),
		TxManager:     txm,
		Locker:        locker,
		SubmitTimeout: cfg.SubmitTimeout,
		LockTTL:       cfg.LockTTL,
	})

	return a, nil
}

// HealthChecks returns the readiness probes of the connected dependencies.
func (a *App) HealthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"postgres": func(ctx context.Context) error { return a.Pool.Ping(ctx) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases every connection.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.codec != nil {
		a.codec.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
