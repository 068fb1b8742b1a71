/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_voice/internal/auth"
)

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the inspection API",
	Long: `Issue signs a JWT with GRIMNIR_VOICE_JWT_SIGNING_KEY.

Examples:
  # Read-only token for a dashboard
  grimnirvoice token --subject dashboard

  # Operator token that may inject directives, valid for one hour
  grimnirvoice token --subject bench --role operator --ttl 1h
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{string(auth.RoleViewer)}, "Roles to grant (viewer, operator)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.JWTSigningKey == "" {
		return errors.New("GRIMNIR_VOICE_JWT_SIGNING_KEY is not set")
	}

	roles := make([]auth.Role, 0, len(tokenRoles))
	for _, r := range tokenRoles {
		role, err := auth.ParseRole(r)
		if err != nil {
			return err
		}
		roles = append(roles, role)
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), tokenSubject, roles, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
