package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// ValidFormats lists all valid alert output formats.
var ValidFormats = map[string]bool{
	"jsonl":  true,
	"pretty": true,
}

// DefaultFormat picks pretty output on a terminal and JSON Lines when
// piped.
func DefaultFormat() string {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "pretty"
	}
	return "jsonl"
}

// OutputAlert writes an alert in the specified format to the writer.
func OutputAlert(format string, a raidwatch.Alert, out io.Writer) error {
	switch format {
	case "jsonl":
		return OutputJSON(a, out)
	case "pretty":
		return OutputPretty(a, out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// OutputJSON writes an alert as one JSON object per line.
func OutputJSON(a raidwatch.Alert, out io.Writer) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// OutputPretty writes an alert in human-readable form.
func OutputPretty(a raidwatch.Alert, out io.Writer) error {
	ts := a.At.Format("15:04:05")
	var err error
	if a.Sound != "" {
		_, err = fmt.Fprintf(out, "[%s] %s %s (sound: %s)\n", ts, severityMarker(a.Severity), a.Text, a.Sound)
	} else {
		_, err = fmt.Fprintf(out, "[%s] %s %s\n", ts, severityMarker(a.Severity), a.Text)
	}
	return err
}

// severityMarker maps a severity to its one-glance prefix.
func severityMarker(s output.Severity) string {
	switch s {
	case output.SeverityAlarm:
		return "!!"
	case output.SeverityAlert:
		return " !"
	default:
		return " ·"
	}
}
