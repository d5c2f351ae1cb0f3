// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

// Package store opens the PostgreSQL pool and manages the schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes the connection pool and the startup ping.
type PoolConfig struct {
	MaxConns     int32
	MinConns     int32
	PingAttempts uint64
	PingBackoff  time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:     10,
		MinConns:     0,
		PingAttempts: 5,
		PingBackoff:  500 * time.Millisecond,
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// OpenPool creates a pgx pool for dsn and waits until the database answers a
// ping, retrying with exponential backoff. The pool is closed on failure.
func OpenPool(ctx context.Context, dsn string, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, cfg, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "database pool ready",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns)
	return pool, nil
}

// waitForDatabase pings p until it answers or the attempts run out.
func waitForDatabase(ctx context.Context, p pinger, cfg PoolConfig, logger *slog.Logger) error {
	backoff := cfg.PingBackoff
	if backoff <= 0 {
		backoff = DefaultPoolConfig().PingBackoff
	}
	retries := uint64(0)
	if cfg.PingAttempts > 1 {
		retries = cfg.PingAttempts - 1
	}

	attempt := 0
	err := retry.Do(ctx, retry.WithMaxRetries(retries, retry.NewExponential(backoff)), func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
