// Package parser provides combat log line parsing functionality.
//
// Lines use a versioned pipe-delimited grammar: a two-digit event code, a
// timestamp, then a fixed sequence of positional fields determined by the
// code. Field positions are part of the wire format; the parser indexes by
// position rather than pattern-matching the whole line.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/event"
)

// timestampLayout is the Go time layout for combat log timestamps.
// Example: "2024-01-15T23:59:59.1234567+09:00"
const timestampLayout = "2006-01-02T15:04:05.9999999Z07:00"

// kindByCode maps the two-digit line code to its event kind.
var kindByCode = map[string]event.Kind{
	"00": event.GameLog,
	"03": event.CombatantAdded,
	"04": event.CombatantRemoved,
	"20": event.AbilityCast,
	"21": event.AbilityUsed,
	"26": event.StatusApplied,
	"29": event.TargetMarked,
	"30": event.StatusRemoved,
}

// Parse parses one combat log line into an Event.
//
// Returns:
//   - (*Event, nil): Successfully parsed
//   - (nil, nil): Not a recognized event line
//   - (nil, error): Recognized code but malformed line
func Parse(line string) (*event.Event, error) {
	// Trim trailing CR for Windows CRLF compatibility
	line = strings.TrimRight(line, "\r")

	// Cheap shape check before splitting: "CC|timestamp|..."
	if len(line) < 3 || line[2] != '|' {
		return nil, nil
	}

	kind, ok := kindByCode[line[:2]]
	if !ok {
		// Unknown code is not an error; the log carries many line types
		// the engine has no interest in.
		return nil, nil
	}

	parts := strings.Split(line, "|")
	names := event.FieldNames(kind)

	// parts[0] is the code, parts[1] the timestamp.
	if len(parts) < 2+len(names) {
		return nil, fmt.Errorf("%s line has %d fields, want %d", kind, len(parts)-2, len(names))
	}

	ts, err := time.Parse(timestampLayout, parts[1])
	if err != nil {
		return nil, fmt.Errorf("%s line has invalid timestamp %q: %w", kind, parts[1], err)
	}

	fields := make(map[string]string, len(names))
	for i, name := range names {
		fields[name] = parts[2+i]
	}

	return &event.Event{
		Kind:      kind,
		Timestamp: ts,
		Fields:    fields,
		RawLine:   line,
	}, nil
}
