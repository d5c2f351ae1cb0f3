// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/modelstore/modelstore/internal/auth"
)

// clientFlags is the audit metadata recorded on sessions the CLI creates.
type clientFlags struct {
	ip        string
	userAgent string
}

func (c *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.ip, "ip", "127.0.0.1", "client IP recorded on the session")
	cmd.Flags().StringVar(&c.userAgent, "user-agent", "modelstore-cli/"+version, "client user agent recorded on the session")
}

func (c *clientFlags) info() auth.ClientInfo {
	return auth.ClientInfo{IP: c.ip, UserAgent: c.userAgent}
}

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserRegisterCmd(a))
	cmd.AddCommand(newUserPasswdCmd(a))
	cmd.AddCommand(newUserShowCmd(a))
	return cmd
}

func newUserRegisterCmd(a *app) *cobra.Command {
	var (
		email, password, output string
		client                  clientFlags
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user and open their first session",
		Long: `Create a user account. The password is read from --password or, when
that flag is absent, from the first line of standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := secretArg(cmd, password, "password")
			if err != nil {
				return err
			}
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			res, err := backend.Service.Register(cmd.Context(), email, pw, client.info())
			if err != nil {
				return err
			}
			return writeAuthResult(cmd.OutOrStdout(), output, res)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	client.bind(cmd)
	addOutputFlag(cmd, &output)
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUserPasswdCmd(a *app) *cobra.Command {
	var id, current, next string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change a user's password",
		Long: `Change a user's password after verifying the current one. Existing
sessions stay valid; use 'session revoke-all' to end them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseID("id", id)
			if err != nil {
				return err
			}
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			if err := backend.Service.ChangePassword(cmd.Context(), userID, current, next); err != nil {
				return err
			}
			cmd.Println("Password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	for _, name := range []string{"id", "current", "new"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newUserShowCmd(a *app) *cobra.Command {
	var id, output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseID("id", id)
			if err != nil {
				return err
			}
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			profile, err := backend.Service.GetProfile(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output == outputTable {
				output = outputYAML
			}
			return writeStructured(cmd.OutOrStdout(), output, profile)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	addOutputFlag(cmd, &output)
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// parseID parses a ULID flag value.
func parseID(flag, value string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(strings.TrimSpace(value))
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_ARGUMENT").
			With("flag", flag).
			Wrapf(auth.ErrInvalidInput, "--%s is not a valid id: %v", flag, err)
	}
	return id, nil
}

// secretArg returns value, or the first line of stdin when value is empty.
func secretArg(cmd *cobra.Command, value, name string) (string, error) {
	if value != "" {
		return value, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", oops.Code("INVALID_ARGUMENT").With("flag", name).Wrapf(auth.ErrInvalidInput, "no %s given on flag or stdin", name)
		}
		return "", oops.Code("INVALID_ARGUMENT").With("flag", name).Wrapf(auth.ErrInvalidInput, "%s is empty", name)
	}
	return line, nil
}
