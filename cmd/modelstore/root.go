// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/modelstore/modelstore/internal/auth"
	"github.com/modelstore/modelstore/internal/config"
	"github.com/modelstore/modelstore/internal/logging"
)

const serviceName = "modelstore"

// app carries state shared by all subcommands.
type app struct {
	deps       *Deps
	configPath string
}

// NewRootCmd creates the root command for the modelstore CLI. A nil deps
// uses the production defaults.
func NewRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "modelstore",
		Short: "ModelStore authentication and session service",
		Long: `ModelStore issues short-lived access tokens and rotating refresh
tokens backed by PostgreSQL. The CLI runs the service, manages the schema
and lets operators inspect and revoke user sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/modelstore/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newUserCmd(a))
	cmd.AddCommand(newSessionCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// resolveConfigPath returns the config file to read and whether it must
// exist. An explicit --config must exist; the default path may be absent.
func (a *app) resolveConfigPath(cmd *cobra.Command) (string, bool) {
	if cmd.Flags().Changed("config") {
		return a.configPath, true
	}
	path, err := a.deps.DefaultConfigPath()
	if err != nil {
		return "", false
	}
	return path, false
}

// loadConfig loads and validates configuration for cmd.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, required := a.resolveConfigPath(cmd)
	return config.Load(config.Options{
		Path:     path,
		Required: required,
		Flags:    cmd.Flags(),
		Getenv:   a.deps.Getenv,
	})
}

// newLogger builds the process logger from validated config.
func (a *app) newLogger(cfg *config.Config) *slog.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level) //nolint:errcheck // validated by config.Load
	return logging.Setup(serviceName, version, cfg.Log.Format, level, a.deps.LogOutput)
}

// openBackend loads config and opens the auth backend. The caller must
// call Backend.Close.
func (a *app) openBackend(ctx context.Context, cmd *cobra.Command) (*Backend, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return a.deps.OpenBackend(ctx, cfg, a.newLogger(cfg), nil)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return 2
	case auth.KindUnauthorized:
		return 3
	case auth.KindNotFound:
		return 4
	case auth.KindConflict:
		return 5
	default:
		return 1
	}
}
