package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/piggybank/cmd/piggy/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "piggy",
		Short:         "Operator tools for the piggybank service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.IndexCmd())
	rootCmd.AddCommand(cmd.ViewCmd())
	rootCmd.AddCommand(cmd.TokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
