// Package cli implements the grantd command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// Execute runs the CLI.
func Execute() int {
	return run(os.Args[1:], os.Stderr)
}

func run(args []string, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "grantd",
		Short:         "Role authorization service",
		Long:          "grantd serves the role catalog, time-bounded role assignments and authority checks over HTTP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newLapseCmd())
	rootCmd.AddCommand(newPrincipalCmd())

	return rootCmd
}
