package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/raidwatch/raidwatch-go/internal/store"
)

var (
	// history flags
	historyDB          string
	historyFormat      string
	historySource      string
	historySeverity    string
	historyKind        string
	historySince       time.Duration
	historyLimit       int
	historyDiagnostics bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List alerts stored by --history",
	Long: `List alerts (or diagnostics with --diagnostics) persisted by the tail and
replay commands, newest first.

Examples:
  raidwatch history --db alerts.db
  raidwatch history --db alerts.db --severity alarm --since 2h
  raidwatch history --db alerts.db --diagnostics --format jsonl`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "",
		"SQLite history database written by tail/replay --history")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table",
		"Output format: table, jsonl")
	historyCmd.Flags().StringVar(&historySource, "source", "",
		"Only alerts from this source: trigger, timeline")
	historyCmd.Flags().StringVar(&historySeverity, "severity", "",
		"Only alerts with this severity: info, alert, alarm")
	historyCmd.Flags().StringVar(&historyKind, "kind", "",
		"Only diagnostics of this kind (implies --diagnostics filtering)")
	historyCmd.Flags().DurationVar(&historySince, "since", 0,
		"Only entries newer than this age (e.g. 2h, 30m)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0,
		"Maximum entries to list (default 200)")
	historyCmd.Flags().BoolVar(&historyDiagnostics, "diagnostics", false,
		"List stored diagnostics instead of alerts")
	_ = historyCmd.MarkFlagRequired("db")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyFormat != "table" && historyFormat != "jsonl" {
		return fmt.Errorf("unknown format: %s", historyFormat)
	}

	s, err := store.Open(historyDB)
	if err != nil {
		return err
	}
	defer s.Close()

	q := store.Query{
		Source:   historySource,
		Severity: historySeverity,
		Kind:     historyKind,
		Limit:    historyLimit,
	}
	if historySince > 0 {
		q.Since = time.Now().Add(-historySince)
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if historyDiagnostics || historyKind != "" {
		records, err := s.Diagnostics(ctx, q)
		if err != nil {
			return err
		}
		if historyFormat == "jsonl" {
			for _, r := range records {
				data, err := json.Marshal(r)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			}
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.SetStyle(table.StyleRounded)
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
			{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
			{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 80},
		})
		tw.AppendHeader(table.Row{"Observed", "Kind", "Message"})
		for _, r := range records {
			tw.AppendRow(table.Row{
				r.ObservedAt.Local().Format("2006-01-02 15:04:05"),
				r.Kind,
				r.Message,
			})
		}
		tw.Render()
		return nil
	}

	records, err := s.Alerts(ctx, q)
	if err != nil {
		return err
	}
	if historyFormat == "jsonl" {
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		}
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 60},
	})
	tw.AppendHeader(table.Row{"Fired", "Severity", "Source", "ID", "Text"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			r.FiredAt.Local().Format("2006-01-02 15:04:05"),
			r.Severity,
			r.Source,
			r.AlertID,
			r.Text,
		})
	}
	tw.Render()
	return nil
}
