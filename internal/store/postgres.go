// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

// Package store provides PostgreSQL connection management and schema
// migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectConfig tunes pool creation.
type ConnectConfig struct {
	// PingTimeout bounds the total time spent waiting for the
	// database to answer the first ping.
	PingTimeout time.Duration
	// MaxConns caps the pool size. Zero keeps the driver default.
	MaxConns int32
}

// DefaultConnectConfig returns the production connection settings.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{PingTimeout: 30 * time.Second}
}

// Connect opens a pgx pool for dsn and waits for the database to
// answer a ping, retrying with exponential backoff until the ping
// timeout elapses.
func Connect(ctx context.Context, dsn string, config ConnectConfig) (*pgxpool.Pool, error) {
	if config.PingTimeout <= 0 {
		config.PingTimeout = DefaultConnectConfig().PingTimeout
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("database_config_invalid").Wrapf(err, "parsing database config")
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("database_connect_failed").Wrapf(err, "creating connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.PingTimeout)
	defer cancel()

	backoff := retry.WithMaxDuration(config.PingTimeout,
		retry.NewExponential(250*time.Millisecond))
	err = retry.Do(pingCtx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Debug("database not ready, retrying", "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("database_unreachable").Wrapf(err, "pinging database")
	}

	return pool, nil
}
