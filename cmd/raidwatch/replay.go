package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raidwatch/raidwatch-go/internal/parser"
	"github.com/raidwatch/raidwatch-go/internal/store"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch"
)

var (
	// replay flags
	replayEngine  engineFlags
	replayFormat  string
	replaySpeed   float64
	replayInstant bool
	replaySettle  time.Duration
	replayHistory string
)

var replayCmd = &cobra.Command{
	Use:   "replay <logfile>",
	Short: "Replay a saved combat log through the engine",
	Long: `Feed a saved network log file through the engine and print the alerts it
would have produced.

Lines are paced by their timestamps so delays, suppression windows, and
timeline firing behave as they did live. Use --speed to compress the
waiting or --instant to drop pacing entirely.

Examples:
  # Replay in real time
  raidwatch replay Network_20240301.log --triggers t.yaml

  # Replay at 10x with a timeline
  raidwatch replay pull7.log --triggers t.yaml --timeline ucob.txt --speed 10

  # As fast as possible, keeping the alert history
  raidwatch replay pull7.log --triggers t.yaml --instant --history alerts.db`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayEngine.register(replayCmd)
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "",
		"Output format: jsonl, pretty (default: pretty on a terminal)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1,
		"Pacing multiplier (2 = twice as fast)")
	replayCmd.Flags().BoolVar(&replayInstant, "instant", false,
		"Feed lines without pacing")
	replayCmd.Flags().DurationVar(&replaySettle, "settle", time.Second,
		"How long to wait after the last line for delayed alerts to fire")
	replayCmd.Flags().StringVar(&replayHistory, "history", "",
		"SQLite database to persist fired alerts and diagnostics")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if replaySpeed <= 0 {
		return fmt.Errorf("speed must be positive, got %v", replaySpeed)
	}
	format := replayFormat
	if format == "" {
		format = DefaultFormat()
	}
	if !ValidFormats[format] {
		return fmt.Errorf("unknown format: %s", format)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	engine, err := replayEngine.build()
	if err != nil {
		return err
	}
	defer engine.Close()

	var hist *store.Store
	if replayHistory != "" {
		hist, err = store.Open(replayHistory)
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

	scanErr := feedLines(ctx, engine, f)

	// Give delayed triggers and due timeline entries a chance to fire
	// before the engine shuts down.
	if scanErr == nil && !replayInstant {
		sleepCtx(ctx, replaySettle)
	}

	engine.Close()
	<-done

	if scanErr == context.Canceled {
		return nil
	}
	return scanErr
}

// feedLines pushes the file through the engine, pacing by event
// timestamps unless --instant is set.
func feedLines(ctx context.Context, engine *raidwatch.Engine, f *os.File) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var prev time.Time
	for scanner.Scan() {
		if ctx.Err() != nil {
			return context.Canceled
		}
		line := scanner.Text()

		if !replayInstant {
			if ev, err := parser.Parse(line); err == nil && ev != nil {
				if !prev.IsZero() {
					if delta := ev.Timestamp.Sub(prev); delta > 0 {
						if !sleepCtx(ctx, time.Duration(float64(delta)/replaySpeed)) {
							return context.Canceled
						}
					}
				}
				prev = ev.Timestamp
			}
		}

		if err := engine.OnLine(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// sleepCtx sleeps for d or until ctx is done. Reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
