// Package diag provides the structured diagnostics stream for the engine.
//
// Diagnostics are non-fatal by definition: an unparseable line, a suppressed
// match, a drift correction. They are reported to a Sink, never returned as
// errors, so a single bad line or action can never stop ingestion.
package diag

import (
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	// ParseSkip is a log line that matched no known grammar.
	ParseSkip Kind = "parse_skip"

	// MalformedLine is a line that matched the grammar prefix but was invalid.
	MalformedLine Kind = "malformed_line"

	// SuppressedMatch is a trigger match dropped by its suppression window.
	SuppressedMatch Kind = "suppressed_match"

	// ActionFault is a scheduled action that panicked; only that instance
	// is abandoned.
	ActionFault Kind = "action_fault"

	// DriftWarning is a timeline sync mismatch beyond the drift budget.
	DriftWarning Kind = "drift_warning"

	// MissingTranslation is an output template key absent from all locales.
	MissingTranslation Kind = "missing_translation"
)

// Event is one diagnostic record.
type Event struct {
	Kind    Kind              `json:"kind"`
	Time    time.Time         `json:"time"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Sink consumes diagnostic events. Implementations must be safe for
// concurrent use; scheduled callbacks report from timer goroutines.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Report implements Sink.
func (f SinkFunc) Report(ev Event) { f(ev) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// ChannelSink forwards events to a buffered channel without blocking.
// Events are dropped when the buffer is full, matching the engine's policy
// that diagnostics must never stall ingestion.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Report implements Sink.
func (s *ChannelSink) Report(ev Event) {
	select {
	case s.ch <- ev:
	default:
		// Buffer full; drop rather than block the dispatch path.
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Close closes the underlying channel. Report must not be called after Close.
func (s *ChannelSink) Close() { close(s.ch) }

// Counts tracks per-kind totals around an inner sink.
type Counts struct {
	mu    sync.Mutex
	by    map[Kind]uint64
	inner Sink
}

// NewCounts wraps inner with a counting layer. A nil inner discards events
// after counting.
func NewCounts(inner Sink) *Counts {
	if inner == nil {
		inner = Discard
	}
	return &Counts{by: make(map[Kind]uint64), inner: inner}
}

// Report implements Sink.
func (c *Counts) Report(ev Event) {
	c.mu.Lock()
	c.by[ev.Kind]++
	c.mu.Unlock()
	c.inner.Report(ev)
}

// Get returns the total for a kind.
func (c *Counts) Get(kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.by[kind]
}

// Snapshot returns a copy of all per-kind totals.
func (c *Counts) Snapshot() map[Kind]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]uint64, len(c.by))
	for k, v := range c.by {
		out[k] = v
	}
	return out
}

// LogSink reports diagnostics to a slog.Logger at debug level.
func LogSink(log *slog.Logger) Sink {
	return SinkFunc(func(ev Event) {
		attrs := make([]any, 0, 2+2*len(ev.Fields))
		attrs = append(attrs, "kind", string(ev.Kind))
		for k, v := range ev.Fields {
			attrs = append(attrs, k, v)
		}
		log.Debug(ev.Message, attrs...)
	})
}

// Tee fans one event out to multiple sinks.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s.Report(ev)
			}
		}
	})
}
