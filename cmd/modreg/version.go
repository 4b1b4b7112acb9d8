package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Set via ldflags at build time
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "modreg %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
