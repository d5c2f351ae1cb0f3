// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/modelstore/modelstore/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auth service",
		Long: `Load configuration, connect to PostgreSQL, build the auth service and
expose metrics and health probes until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a, cmd)
		},
	}
}

func runServe(ctx context.Context, a *app, cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := a.newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		reg       prometheus.Registerer
		backend   *Backend
	)
	if cfg.Metrics.Addr != "" {
		// Created first so auth metrics land in its registry.
		obsServer = a.deps.ObservabilityServerFactory(cfg.Metrics.Addr, version, func(ctx context.Context) error {
			if backend == nil || backend.Ready == nil {
				return oops.Errorf("backend not initialized")
			}
			return backend.Ready(ctx)
		}, logger)
		reg = obsServer.Registry()
	}

	backend, err = a.deps.OpenBackend(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer backend.close()

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_OBSERVABILITY_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	cmd.Println("modelstore auth service started")
	logger.Info("auth service ready",
		"metrics_addr", cfg.Metrics.Addr,
		"issuer", cfg.JWT.Issuer,
		"access_token_lifetime_minutes", cfg.JWT.AccessTokenLifetimeMinutes,
		"refresh_token_lifetime_days", cfg.JWT.RefreshTokenLifetimeDays,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogErrorContext(shutdownCtx, logger, slog.LevelWarn, "error stopping observability server", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It returns
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(logger.With("server", serverName), "server error, triggering shutdown", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
