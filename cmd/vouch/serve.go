// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nozz/vouch/internal/auth"
	"github.com/nozz/vouch/internal/auth/postgres"
	"github.com/nozz/vouch/internal/config"
	"github.com/nozz/vouch/internal/dispatch"
	"github.com/nozz/vouch/internal/logging"
	"github.com/nozz/vouch/internal/observability"
	"github.com/nozz/vouch/internal/qr"
	"github.com/nozz/vouch/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication engine",
		Long: `Start the authentication engine: connect to PostgreSQL, apply any
pending migrations, and serve metrics and health probes until
interrupted.`,
		RunE: runServe,
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("metrics.addr", "", "metrics listen address")
	cmd.Flags().String("auth.mode", "", "authentication mode")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("vouch", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()
	logger.Info("starting vouch", "version", version, "mode", cfg.Auth.Mode)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Schema first, then the pool the engine runs on.
	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close() //nolint:errcheck // migration error takes precedence
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectConfig{
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	var (
		reg     prometheus.Registerer = prometheus.NewRegistry()
		obs     *observability.Server
		obsErrs <-chan error
	)
	if cfg.Metrics.Enabled {
		obs = observability.NewServer(cfg.Metrics.Addr, func() bool {
			return pool.Ping(ctx) == nil
		})
		reg = obs.Registry()
		obsErrs, err = obs.Start()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := obs.Stop(shutdownCtx); stopErr != nil {
				logger.Error("stopping observability server", "error", stopErr)
			}
		}()
	}

	engine := buildEngine(cfg, pool, reg, logger)
	defer engine.Close()

	sweepDone := engine.startSweeper(ctx, cfg)

	logger.Info("vouch ready")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-obsErrs:
		if err != nil {
			return oops.Code("observability_failed").Wrap(err)
		}
	}
	<-sweepDone
	return nil
}

// engine bundles the running auth components for teardown.
type engine struct {
	Service *auth.Service
	Manager *auth.Manager

	loop    *dispatch.Loop
	workers *dispatch.Pool
	limiter *auth.RateLimiter
}

func buildEngine(cfg *config.Config, pool *pgxpool.Pool, reg prometheus.Registerer, logger *slog.Logger) *engine {
	loop := dispatch.NewLoop(1024)
	workers := dispatch.NewPool(cfg.Auth.Workers, 1024)

	metrics := auth.NewMetrics(reg)
	limiter := auth.NewRateLimiterWithRegistry(auth.RateLimiterConfig{
		MaxAttempts:     cfg.Auth.MaxAttempts,
		LockoutDuration: time.Duration(cfg.Auth.LockoutSeconds) * time.Second,
	}, reg)

	countdown := auth.NewCountdown(loop)
	manager := auth.NewManager(auth.ManagerConfig{
		LoginTimeout: time.Duration(cfg.Auth.LoginTimeoutSeconds) * time.Second,
	}, countdown, nil, nil, metrics, logger)

	hasher := auth.NewAsyncHasher(auth.NewArgon2idHasher(auth.Argon2Params{
		MemoryKiB:   cfg.Crypto.Argon2.MemoryKiB,
		Iterations:  cfg.Crypto.Argon2.Iterations,
		Parallelism: cfg.Crypto.Argon2.Parallelism,
	}), workers, loop)

	service := auth.NewService(auth.ServiceConfig{
		Mode:                auth.ParseMode(cfg.Auth.Mode),
		Issuer:              cfg.Auth.Issuer,
		MinPasswordLen:      cfg.Auth.MinPasswordLen,
		MaxPasswordLen:      cfg.Auth.MaxPasswordLen,
		SessionsEnabled:     cfg.Session.Enabled,
		SessionLifetime:     time.Duration(cfg.Session.LifetimeHours) * time.Hour,
		BindSessionToOrigin: cfg.Session.BindToIP,
		QRSize:              cfg.TOTP.QRSize,
	}, auth.ServiceDeps{
		Manager:  manager,
		Accounts: postgres.NewAccountRepository(pool),
		Sessions: postgres.NewSessionRepository(pool),
		Hasher:   hasher,
		TOTP:     auth.NewTOTPEngine(cfg.TOTP.PeriodSeconds, cfg.TOTP.Skew),
		Limiter:  limiter,
		QR:       qr.NewEncoder(),
		Metrics:  metrics,
		Loop:     loop,
		Workers:  workers,
		Logger:   logger,
	})

	return &engine{
		Service: service,
		Manager: manager,
		loop:    loop,
		workers: workers,
		limiter: limiter,
	}
}

// startSweeper periodically removes expired persisted sessions. The
// returned channel closes once the sweeper goroutine exits.
func (e *engine) startSweeper(ctx context.Context, cfg *config.Config) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.Session.Enabled || cfg.Session.SweepIntervalMinutes <= 0 {
		close(done)
		return done
	}
	interval := time.Duration(cfg.Session.SweepIntervalMinutes) * time.Minute
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.loop.Dispatch(func() {
					e.Service.SweepExpiredSessions(ctx, nil)
				})
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// Close tears the engine down in dependency order.
func (e *engine) Close() {
	e.Manager.Shutdown()
	e.loop.Close()
	e.workers.Close()
	e.limiter.Close()
}
