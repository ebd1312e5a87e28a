package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the tenancy admin CLI. Subcommands (auth, migrate, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "palmyra-tenancy",
	Short:         "Palmyra tenancy admin CLI",
	Long:          "Administrative utilities for the tenancy core (migrations, tenant lifecycle, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
