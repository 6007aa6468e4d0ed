// Package storage selects and initializes the retention store backend.
//
// Four backends satisfy the same port.Store contract: sqlite (default,
// single-file durability), postgres (shared server), redis (keyspace with
// sorted-set indexes) and memory (tests, throwaway runs). The factory
// fails fast: a backend that cannot be reached at startup is a startup
// error, not something to limp along without.
package storage

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"satrack/internal/application/port"
	"satrack/internal/infrastructure/config"
	"satrack/internal/infrastructure/storage/memory"
	"satrack/internal/infrastructure/storage/postgres"
	"satrack/internal/infrastructure/storage/redis"
	"satrack/internal/infrastructure/storage/sqlite"
)

// Open builds the store named by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (port.Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("sqlite store initialized")
		return s, nil

	case "postgres":
		s, err := postgres.New(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		log.Info().Msg("postgres store initialized")
		return s, nil

	case "redis":
		rdb := redisclient.NewClient(&redisclient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("redis store initialized")
		return redis.New(rdb, cfg.Redis.Prefix), nil

	case "memory":
		log.Info().Msg("in-memory store initialized")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
