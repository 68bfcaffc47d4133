// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var userinfoFlags struct {
	profile bool
}

var userinfoCmd = &cobra.Command{
	Use:   "userinfo",
	Short: "Print the signed in user's claims",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := restoreSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		var out interface{}
		if userinfoFlags.profile {
			out, err = s.client.LoadUserProfile(ctx)
		} else {
			out, err = s.client.LoadUserInfo(ctx)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	userinfoCmd.Flags().BoolVar(&userinfoFlags.profile, "profile", false, "load the account profile instead of the userinfo claims")
	rootCmd.AddCommand(userinfoCmd)
}
