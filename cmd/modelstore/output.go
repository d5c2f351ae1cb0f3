// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modelstore/modelstore/internal/auth"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", outputTable, "output format (table, yaml, json)")
}

// writeStructured encodes v as yaml or json.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		return enc.Close()
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		return nil
	default:
		return oops.Code("INVALID_ARGUMENT").
			With("output", format).
			Wrapf(auth.ErrInvalidInput, "unknown output format %q", format)
	}
}

func writeSessionTable(w io.Writer, sessions []auth.SessionView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tEXPIRES\tIP\tUSER AGENT\tCURRENT")
	for _, s := range sessions {
		current := ""
		if s.IsCurrent {
			current = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.ExpiresAt.UTC().Format(time.RFC3339),
			s.CreatedByIP,
			s.CreatedByUA,
			current,
		)
	}
	return tw.Flush()
}

// authOutput is the printed form of an auth.AuthResult.
type authOutput struct {
	UserID           string    `json:"user_id" yaml:"user_id"`
	Email            string    `json:"email" yaml:"email"`
	AccessToken      string    `json:"access_token" yaml:"access_token"`
	RefreshToken     string    `json:"refresh_token" yaml:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at" yaml:"refresh_expires_at"`
}

func writeAuthResult(w io.Writer, format string, res *auth.AuthResult) error {
	out := authOutput{
		UserID:           res.UserID.String(),
		Email:            res.Email,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt.UTC(),
	}
	if format != outputTable {
		return writeStructured(w, format, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "user id:\t%s\n", out.UserID)
	fmt.Fprintf(tw, "email:\t%s\n", out.Email)
	fmt.Fprintf(tw, "access token:\t%s\n", out.AccessToken)
	fmt.Fprintf(tw, "refresh token:\t%s\n", out.RefreshToken)
	fmt.Fprintf(tw, "refresh expires:\t%s\n", out.RefreshExpiresAt.Format(time.RFC3339))
	return tw.Flush()
}
