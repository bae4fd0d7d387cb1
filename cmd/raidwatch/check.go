package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/timeline"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/trigger"
)

var (
	// check flags
	checkTriggers []string
	checkTimeline []string
	checkStrings  []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate trigger, timeline, and strings files",
	Long: `Load and validate configuration files without running anything,
reporting the first error found in each file.

Trigger files are fully compiled, so match regexes, field vocabularies,
delays, and severities are checked, not just the YAML shape. Trigger
files that reference registered condition or action callbacks can only
be compiled by the embedding application and will fail here.

Examples:
  raidwatch check --triggers t.yaml
  raidwatch check --triggers t.yaml --timeline ucob.txt --strings strings.yaml`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkTriggers, "triggers", nil,
		"YAML trigger files to validate")
	checkCmd.Flags().StringSliceVar(&checkTimeline, "timeline", nil,
		"Timeline scripts to validate")
	checkCmd.Flags().StringSliceVar(&checkStrings, "strings", nil,
		"YAML strings files to validate")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if len(checkTriggers)+len(checkTimeline)+len(checkStrings) == 0 {
		return fmt.Errorf("nothing to check: pass --triggers, --timeline, or --strings")
	}

	out := cmd.OutOrStdout()

	for _, path := range checkTriggers {
		f, err := trigger.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		set, err := trigger.Compile(f, trigger.NewFuncs())
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "OK %s (%d triggers)\n", path, set.Len())
	}

	for _, path := range checkTimeline {
		tl, err := timeline.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "OK %s (%d entries)\n", path, tl.Len())
	}

	for _, path := range checkStrings {
		f, err := output.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "OK %s (%d keys)\n", path, len(f.Strings))
	}

	return nil
}
