// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenFlags struct {
	minValidity time.Duration
	force       bool
	print       bool
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Refresh the cached access token when it is about to expire",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := restoreSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		minValidity := tokenFlags.minValidity
		if tokenFlags.force {
			minValidity = -1
		}
		refreshed, err := s.client.UpdateToken(ctx, minValidity)
		if err != nil {
			_ = s.save(ctx)
			return err
		}
		if err := s.save(ctx); err != nil {
			return fmt.Errorf("unable to cache tokens: %w", err)
		}

		out := cmd.OutOrStdout()
		if tokenFlags.print {
			fmt.Fprintln(out, string(s.client.Tokens().AccessToken))
			return nil
		}
		if claims := s.client.Tokens().AccessTokenClaims; claims != nil && claims.Expiry != nil {
			fmt.Fprintf(out, "access token valid until %s\n", claims.Expiry.Time().Local().Format(time.RFC3339))
		}
		if refreshed {
			fmt.Fprintln(out, "refreshed")
		}
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.DurationVar(&tokenFlags.minValidity, "min-validity", 5*time.Second, "refresh when the token expires within this duration")
	f.BoolVar(&tokenFlags.force, "force", false, "always refresh")
	f.BoolVar(&tokenFlags.print, "print", false, "print the access token")
	rootCmd.AddCommand(tokenCmd)
}
