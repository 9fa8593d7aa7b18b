// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the vouch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vouch",
		Short: "Vouch - authentication and session engine",
		Long: `Vouch gates access to a shared world with password and one-time-code
authentication, persisted sessions, and progressive login rate limiting.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
