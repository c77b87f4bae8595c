package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the identra CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identra",
		Short: "Identra - credential issuance and validation service",
		Long: `Identra manages user accounts and credentials: registration, login,
token issuance and refresh, and password reset and change flows.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
