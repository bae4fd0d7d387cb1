package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch"
)

// engineFlags are the configuration flags shared by tail and replay.
type engineFlags struct {
	triggers string
	timeline string
	strings  string
	locale   string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.triggers, "triggers", "",
		"YAML trigger file to load")
	cmd.Flags().StringVar(&f.timeline, "timeline", "",
		"Timeline script to load and start")
	cmd.Flags().StringVar(&f.strings, "strings", "",
		"YAML strings file with localized alert templates")
	cmd.Flags().StringVarP(&f.locale, "locale", "l", "en",
		"Preferred alert locale (falls back to en)")
}

// build creates an engine from the shared flags and loads the given
// files. The timeline, if any, is started immediately.
func (f *engineFlags) build() (*raidwatch.Engine, error) {
	opts := []raidwatch.Option{
		raidwatch.WithLocale(f.locale),
	}
	if f.strings != "" {
		opts = append(opts, raidwatch.WithStrings(f.strings))
	}
	if verbose {
		opts = append(opts, raidwatch.WithLogger(slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	engine, err := raidwatch.New(opts...)
	if err != nil {
		return nil, err
	}

	if f.triggers != "" {
		if err := engine.LoadTriggerFile(f.triggers); err != nil {
			engine.Close()
			return nil, err
		}
	}
	if f.timeline != "" {
		if err := engine.LoadTimelineFile(f.timeline); err != nil {
			engine.Close()
			return nil, err
		}
		if err := engine.StartTimeline(); err != nil {
			engine.Close()
			return nil, err
		}
	}

	return engine, nil
}
