// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/hashicorp/capsession/oidc"
	"github.com/spf13/cobra"
)

var logoutFlags struct {
	local bool
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached tokens",
	Long: `Ends the provider session through the system browser and removes the cached
tokens. With --local only the cache is removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := restoreSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if logoutFlags.local {
			err = s.client.ClearToken(ctx)
		} else {
			err = s.client.Logout(ctx, oidc.LogoutOptions{})
		}
		if err != nil {
			return err
		}
		if err := s.save(ctx); err != nil {
			return fmt.Errorf("unable to clear token cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutFlags.local, "local", false, "only remove the cached tokens")
	rootCmd.AddCommand(logoutCmd)
}
