// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/modelstore/modelstore/internal/config"
	"github.com/modelstore/modelstore/internal/xdg"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file, environment and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.loadConfig(cmd); err != nil {
				return err
			}
			path, _ := a.resolveConfigPath(cmd)
			cmd.Printf("Configuration is valid (%s)\n", displayPath(path))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the config JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	})

	var output string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if output == outputTable {
				output = outputYAML
			}
			return writeStructured(cmd.OutOrStdout(), output, cfg.Redacted())
		},
	}
	addOutputFlag(show, &output)
	cmd.AddCommand(show)

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := a.resolveConfigPath(cmd)
			if path == "" {
				return oops.Code("CONFIG_PATH_UNKNOWN").Errorf("no config path; pass --config")
			}
			return writeDefaultConfig(cmd, path, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func writeDefaultConfig(cmd *cobra.Command, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := config.Marshal(config.Default())
	if err != nil {
		return err
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}

	cmd.Printf("Wrote %s\n", path)
	cmd.Printf("Set jwt.key or %s before running the service.\n", config.EnvJWTKey)
	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "defaults only"
	}
	if _, err := os.Stat(path); err != nil {
		return path + ", not present"
	}
	return path
}
