// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/modelstore/modelstore/internal/auth"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Log in, rotate tokens and manage sessions",
	}
	cmd.AddCommand(newSessionLoginCmd(a))
	cmd.AddCommand(newSessionRefreshCmd(a))
	cmd.AddCommand(newSessionLogoutCmd(a))
	cmd.AddCommand(newSessionListCmd(a))
	cmd.AddCommand(newSessionRevokeCmd(a))
	cmd.AddCommand(newSessionRevokeAllCmd(a))
	return cmd
}

// subjectFlags identify the user a command acts on, either directly or
// through an access token.
type subjectFlags struct {
	userID      string
	accessToken string
}

func (s *subjectFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.userID, "user-id", "", "user id")
	cmd.Flags().StringVar(&s.accessToken, "access-token", "", "access token whose subject is the user")
	cmd.MarkFlagsOneRequired("user-id", "access-token")
	cmd.MarkFlagsMutuallyExclusive("user-id", "access-token")
}

func (s *subjectFlags) resolve(backend *Backend) (ulid.ULID, error) {
	if s.accessToken == "" {
		return parseID("user-id", s.userID)
	}
	claims, err := backend.Tokens.Validate(s.accessToken)
	if err != nil {
		return ulid.ULID{}, err
	}
	id, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_TOKEN_SUBJECT_INVALID").Wrap(auth.ErrUnauthorized)
	}
	return id, nil
}

func newSessionLoginCmd(a *app) *cobra.Command {
	var (
		email, password, output string
		client                  clientFlags
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a token pair",
		Long: `Verify credentials and open a session. The password is read from
--password or, when that flag is absent, from the first line of standard input.`,
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

			res, err := backend.Service.Login(cmd.Context(), email, pw, client.info())
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

func newSessionRefreshCmd(a *app) *cobra.Command {
	var (
		token, output string
		client        clientFlags
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rotate a refresh token and print the new token pair",
		Long: `Exchange a refresh token for a new access and refresh token. The old
refresh token is revoked; presenting it again revokes every session of the user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := secretArg(cmd, token, "refresh-token")
			if err != nil {
				return err
			}
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			res, err := backend.Service.Refresh(cmd.Context(), raw, client.info())
			if err != nil {
				return err
			}
			return writeAuthResult(cmd.OutOrStdout(), output, res)
		},
	}
	cmd.Flags().StringVar(&token, "refresh-token", "", "refresh token (read from stdin when empty)")
	client.bind(cmd)
	addOutputFlag(cmd, &output)
	return cmd
}

func newSessionLogoutCmd(a *app) *cobra.Command {
	var (
		token  string
		client clientFlags
	)
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session of a refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := secretArg(cmd, token, "refresh-token")
			if err != nil {
				return err
			}
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			if err := backend.Service.Logout(cmd.Context(), raw, client.ip); err != nil {
				return err
			}
			cmd.Println("Logged out")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "refresh-token", "", "refresh token (read from stdin when empty)")
	client.bind(cmd)
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	var (
		subject       subjectFlags
		output, token string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's active sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			userID, err := subject.resolve(backend)
			if err != nil {
				return err
			}
			sessions, err := backend.Service.GetSessions(cmd.Context(), userID)
			if err != nil {
				return err
			}
			auth.MarkCurrent(sessions, token)

			if output == outputTable {
				return writeSessionTable(cmd.OutOrStdout(), sessions)
			}
			if sessions == nil {
				sessions = []auth.SessionView{}
			}
			return writeStructured(cmd.OutOrStdout(), output, sessions)
		},
	}
	subject.bind(cmd)
	cmd.Flags().StringVar(&token, "refresh-token", "", "refresh token of the current session, marked in the listing")
	addOutputFlag(cmd, &output)
	return cmd
}

func newSessionRevokeCmd(a *app) *cobra.Command {
	var (
		subject   subjectFlags
		sessionID string
		client    clientFlags
	)
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke one session of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sid, err := parseID("session-id", sessionID)
			if err != nil {
				return err
			}
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			userID, err := subject.resolve(backend)
			if err != nil {
				return err
			}
			if err := backend.Service.LogoutSession(cmd.Context(), userID, sid, client.ip); err != nil {
				return err
			}
			cmd.Println("Session revoked")
			return nil
		},
	}
	subject.bind(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id")
	client.bind(cmd)
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func newSessionRevokeAllCmd(a *app) *cobra.Command {
	var (
		subject subjectFlags
		client  clientFlags
	)
	cmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every active session of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := a.openBackend(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer backend.close()

			userID, err := subject.resolve(backend)
			if err != nil {
				return err
			}
			if err := backend.Service.LogoutAll(cmd.Context(), userID, client.ip); err != nil {
				return err
			}
			cmd.Println("All sessions revoked")
			return nil
		},
	}
	subject.bind(cmd)
	client.bind(cmd)
	return cmd
}
