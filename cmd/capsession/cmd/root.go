// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	dbPath     string
	port       int
	flow       string
	logLevel   string
	timeout    time.Duration
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "capsession",
	Short: "capsession keeps a Keycloak session for the command line",
	Long: `capsession signs in to a Keycloak realm through the system browser, caches
the tokens it receives and refreshes them on demand.

The realm is described by a keycloak.json style file:

  auth-server-url: https://sso.example.com
  realm: demo
  resource: cli`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "keycloak.json", "realm configuration file")
	pf.StringVar(&flags.dbPath, "db", defaultDBPath(), "token cache database")
	pf.IntVar(&flags.port, "port", 8250, "loopback port the provider redirects to")
	pf.StringVar(&flags.flow, "flow", "standard", "authentication flow: standard, implicit or hybrid")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level: trace, debug, info, warn or error")
	pf.DurationVar(&flags.timeout, "timeout", 2*time.Minute, "how long to wait for the browser")
}

func defaultDBPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "capsession.db"
	}
	return dir + string(os.PathSeparator) + "capsession.db"
}
