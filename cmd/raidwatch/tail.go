package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raidwatch/raidwatch-go/internal/store"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch"
)

var (
	// tail flags
	tailEngine    engineFlags
	tailLogDir    string
	tailFormat    string
	tailFromStart bool
	tailWait      bool
	tailPoll      time.Duration
	tailHistory   string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the live combat log and print alerts",
	Long: `Follow the newest network log file and print alerts as trigger rules
match and timeline entries come due. New session files are picked up
automatically.

Alerts are printed as JSON Lines when piped and in human-readable form on
a terminal; --format overrides the default.

Examples:
  # Follow the auto-detected log directory with a trigger file
  raidwatch tail --triggers triggers.yaml

  # Full setup: triggers, timeline, localized strings, alert history
  raidwatch tail --triggers t.yaml --timeline ucob.txt \
      --strings strings.yaml --locale de --history alerts.db

  # Explicit directory, start before the game launches
  raidwatch tail --log-dir "D:\logs" --wait --triggers t.yaml

  # Pipe to jq
  raidwatch tail --triggers t.yaml | jq 'select(.severity == "alarm")'`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	tailEngine.register(tailCmd)
	tailCmd.Flags().StringVarP(&tailLogDir, "log-dir", "d", "",
		"Network log directory (auto-detected if not specified)")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "",
		"Output format: jsonl, pretty (default: pretty on a terminal)")
	tailCmd.Flags().BoolVar(&tailFromStart, "from-start", false,
		"Read the current log file from the beginning")
	tailCmd.Flags().BoolVar(&tailWait, "wait", false,
		"Wait for log files to appear instead of failing immediately")
	tailCmd.Flags().DurationVar(&tailPoll, "poll-interval", 2*time.Second,
		"How often to check for new or rotated log files")
	tailCmd.Flags().StringVar(&tailHistory, "history", "",
		"SQLite database to persist fired alerts and diagnostics")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	format := tailFormat
	if format == "" {
		format = DefaultFormat()
	}
	if !ValidFormats[format] {
		return fmt.Errorf("unknown format: %s", format)
	}

	engine, err := tailEngine.build()
	if err != nil {
		return err
	}
	defer engine.Close()

	var hist *store.Store
	if tailHistory != "" {
		hist, err = store.Open(tailHistory)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(engine, hist, format, cmd.OutOrStdout())
	}()

	watchErr := raidwatch.Watch(ctx, engine, raidwatch.WithLogDir(tailLogDir),
		raidwatch.WithFromStart(tailFromStart),
		raidwatch.WithWaitForLogs(tailWait),
		raidwatch.WithPollInterval(tailPoll),
	)

	// Closing the engine closes both channels, letting the consumer
	// drain and exit.
	engine.Close()
	<-done

	if errors.Is(watchErr, context.Canceled) {
		return nil
	}
	return watchErr
}

// consume drains the engine's alert and diagnostic channels until both
// close, printing alerts and optionally persisting everything.
func consume(engine *raidwatch.Engine, hist *store.Store, format string, out io.Writer) {
	alerts := engine.Alerts()
	diags := engine.Diagnostics()

	for alerts != nil || diags != nil {
		select {
		case a, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			if err := OutputAlert(format, a, out); err != nil && verbose {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
			if hist != nil {
				if _, err := hist.SaveAlert(context.Background(), a); err != nil && verbose {
					fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				}
			}
		case d, ok := <-diags:
			if !ok {
				diags = nil
				continue
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "diagnostic: %s %s\n", d.Kind, d.Message)
			}
			if hist != nil {
				if _, err := hist.SaveDiagnostic(context.Background(), d); err != nil && verbose {
					fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				}
			}
		}
	}
}
