package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "raidwatch",
	Short: "Combat-log trigger and timeline alerts",
	Long: `raidwatch matches game combat-log lines against YAML trigger files and
scripted encounter timelines and prints the resulting alerts.

Use "tail" to follow the live network log, "replay" to run a saved log,
"check" to validate configuration files, and "history" to inspect stored
alerts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Print warnings and debug information to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
