// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/modelstore/modelstore/internal/auth"
	"github.com/modelstore/modelstore/internal/auth/postgres"
	"github.com/modelstore/modelstore/internal/config"
	"github.com/modelstore/modelstore/internal/observability"
	"github.com/modelstore/modelstore/internal/store"
	"github.com/modelstore/modelstore/internal/xdg"
)

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Getenv looks up environment variables.
	// Default: os.Getenv
	Getenv func(string) string

	// DefaultConfigPath returns the config file used when --config is unset.
	// Default: xdg.ConfigFile
	DefaultConfigPath func() (string, error)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer

	// OpenBackend builds the auth service over its storage.
	// Default: openPostgresBackend
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Backend, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr, version string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

// Backend is a ready auth service and the resources behind it.
type Backend struct {
	Service *auth.Service
	Tokens  *auth.JWTSigner
	Ready   observability.ReadinessChecker
	Close   func()
}

func (b *Backend) close() {
	if b != nil && b.Close != nil {
		b.Close()
	}
}

// Migrator is the subset of *store.Migrator used by the migrate commands.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// ObservabilityServer is the subset of *observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.DefaultConfigPath == nil {
		out.DefaultConfigPath = xdg.ConfigFile
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	if out.OpenBackend == nil {
		out.OpenBackend = openPostgresBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr, version string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, version, ready, logger)
		}
	}
	return &out
}

// openPostgresBackend connects to PostgreSQL and wires the auth service to
// the pgx repositories.
func openPostgresBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Backend, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	signerCfg, err := cfg.Signer()
	if err != nil {
		return nil, err
	}
	signer, err := auth.NewJWTSigner(signerCfg)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.NewRefreshTokenFactory(cfg.JWT.RefreshTokenLifetimeDays)
	if err != nil {
		return nil, err
	}

	pool, err := store.OpenPool(ctx, cfg.Database.URL, cfg.Pool(), logger)
	if err != nil {
		return nil, err
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	svc, err := auth.NewAuthService(auth.ServiceDeps{
		Users:    postgres.NewUserRepository(pool),
		Sessions: postgres.NewSessionRepository(pool),
		Hasher:   auth.NewArgon2idHasher(),
		Signer:   signer,
		Refresh:  refresh,
		Tx:       postgres.NewTransactor(pool),
		Logger:   logger,
		Metrics:  auth.NewMetrics(reg),
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("BACKEND_INIT_FAILED").Wrap(err)
	}

	return &Backend{
		Service: svc,
		Tokens:  signer,
		Ready:   observability.PingReadiness(pool),
		Close:   pool.Close,
	}, nil
}
