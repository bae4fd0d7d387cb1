// Package timeline provides the scripted encounter timeline: a parsed list
// of expected future events with a synchronized virtual clock that fires
// entries through the action scheduler.
package timeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/raidwatch/raidwatch-go/internal/rulefile"
)

// MaxScriptSize is the maximum allowed size for a timeline script (1MB).
const MaxScriptSize = 1 * 1024 * 1024

// DefaultWindow is the sync acceptance window (seconds) applied before and
// after an entry when the script omits an explicit window.
const DefaultWindow = 2.5

// EntryError reports a malformed script entry. A single malformed entry
// invalidates the whole load.
type EntryError struct {
	Line    int // 1-based line number in the script
	Message string
	Cause   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("timeline line %d: %s", e.Line, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *EntryError) Unwrap() error {
	return e.Cause
}

// Entry is one scripted timeline event. Entries are immutable after parse.
type Entry struct {
	// Name is the display name, resolved through the output tables when a
	// matching key exists.
	Name string

	// At is the offset from timeline start, in seconds.
	At float64

	// Sync matches raw log lines that resynchronize the clock to this
	// entry. Nil for purely time-driven entries.
	Sync *regexp.Regexp

	// WindowBefore and WindowAfter are the sync acceptance tolerances in
	// seconds around At.
	WindowBefore float64
	WindowAfter  float64

	// Jump is the name of the entry to jump to after this entry fires.
	// Empty means no jump.
	Jump string

	// jumpIdx is the resolved index of the jump target.
	jumpIdx int

	// line is the 1-based script line, kept for error reporting.
	line int
}

// Timeline is a parsed, validated script.
type Timeline struct {
	entries []*Entry
}

// Entries returns the script entries in timestamp order.
func (t *Timeline) Entries() []*Entry { return t.entries }

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.entries) }

// entryLine matches: TIME "NAME" [options]
var entryLine = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s+"([^"]*)"\s*(.*)$`)

// option fragments, anchored so the parser can consume the remainder of an
// entry line left to right. Anything left unconsumed fails the load.
var (
	syncOpt   = regexp.MustCompile(`^sync\s+/((?:[^/\\]|\\.)*)/`)
	windowOpt = regexp.MustCompile(`^window\s+(\d+(?:\.\d+)?)(?:,(\d+(?:\.\d+)?))?`)
	jumpOpt   = regexp.MustCompile(`^jump\s+"([^"]*)"`)
)

// Load reads and parses a timeline script from the given path.
func Load(path string) (*Timeline, error) {
	data, err := rulefile.ReadLimited(path, MaxScriptSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline script: %w", err)
	}
	return Parse(string(data))
}

// Parse parses a timeline script.
//
// Parsing is all-or-nothing: a malformed entry, a non-monotonic timestamp,
// or an undefined jump target fails the whole load.
func Parse(script string) (*Timeline, error) {
	var entries []*Entry
	lastAt := -1.0

	for lineNo, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		m := entryLine.FindStringSubmatch(line)
		if m == nil {
			return nil, &EntryError{Line: lineNo + 1, Message: fmt.Sprintf("malformed entry %q", line)}
		}

		at, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, &EntryError{Line: lineNo + 1, Message: fmt.Sprintf("invalid timestamp %q", m[1]), Cause: err}
		}
		if at < lastAt {
			return nil, &EntryError{
				Line:    lineNo + 1,
				Message: fmt.Sprintf("timestamp %.1f is earlier than previous entry (%.1f)", at, lastAt),
			}
		}
		lastAt = at

		e := &Entry{
			Name:    m[2],
			At:      at,
			jumpIdx: -1,
			line:    lineNo + 1,
		}

		rest := strings.TrimSpace(m[3])
		hasWindow := false
		for rest != "" {
			if sm := syncOpt.FindStringSubmatch(rest); sm != nil {
				if e.Sync != nil {
					return nil, &EntryError{Line: lineNo + 1, Message: "duplicate sync option"}
				}
				re, err := regexp.Compile(sm[1])
				if err != nil {
					return nil, &EntryError{
						Line:    lineNo + 1,
						Message: fmt.Sprintf("invalid sync pattern /%s/", sm[1]),
						Cause:   err,
					}
				}
				e.Sync = re
				if !hasWindow {
					e.WindowBefore = DefaultWindow
					e.WindowAfter = DefaultWindow
				}
				rest = strings.TrimSpace(rest[len(sm[0]):])
				continue
			}
			if wm := windowOpt.FindStringSubmatch(rest); wm != nil {
				if hasWindow {
					return nil, &EntryError{Line: lineNo + 1, Message: "duplicate window option"}
				}
				before, _ := strconv.ParseFloat(wm[1], 64)
				after := before
				if wm[2] != "" {
					after, _ = strconv.ParseFloat(wm[2], 64)
				}
				e.WindowBefore = before
				e.WindowAfter = after
				hasWindow = true
				rest = strings.TrimSpace(rest[len(wm[0]):])
				continue
			}
			if jm := jumpOpt.FindStringSubmatch(rest); jm != nil {
				if e.Jump != "" {
					return nil, &EntryError{Line: lineNo + 1, Message: "duplicate jump option"}
				}
				e.Jump = jm[1]
				rest = strings.TrimSpace(rest[len(jm[0]):])
				continue
			}
			return nil, &EntryError{Line: lineNo + 1, Message: fmt.Sprintf("unrecognized options %q", rest)}
		}
		if hasWindow && e.Sync == nil {
			return nil, &EntryError{Line: lineNo + 1, Message: "window requires a sync pattern"}
		}

		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, &EntryError{Line: 1, Message: "script contains no entries"}
	}

	// Resolve jump targets to the first entry with the target name.
	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, seen := byName[e.Name]; !seen {
			byName[e.Name] = i
		}
	}
	for _, e := range entries {
		if e.Jump == "" {
			continue
		}
		idx, ok := byName[e.Jump]
		if !ok {
			return nil, &EntryError{
				Line:    e.line,
				Message: fmt.Sprintf("jump target %q is not defined", e.Jump),
			}
		}
		e.jumpIdx = idx
	}

	return &Timeline{entries: entries}, nil
}
