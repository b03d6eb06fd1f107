package main

import (
	"fmt"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	// Printing the version needs no config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linkscout %s (record schema %s)\n", version, contact.SourceVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
