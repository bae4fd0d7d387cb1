package timeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raidwatch/raidwatch-go/internal/diag"
	"github.com/raidwatch/raidwatch-go/internal/scheduler"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/event"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// DefaultDriftBudget is the maximum sync correction applied before the
// engine gives up on the observation and keeps its own clock.
const DefaultDriftBudget = 30 * time.Second

// keyPrefix namespaces the engine's scheduler keys so Stop can cancel them
// without touching trigger instances.
const keyPrefix = "timeline/"

// ErrNoTimeline is returned by Start when no timeline is loaded.
var ErrNoTimeline = errors.New("no timeline loaded")

// ErrRunning is returned by Start and Load while the engine is running.
var ErrRunning = errors.New("timeline already running")

// Engine runs one loaded timeline against a synchronized virtual clock.
//
// Load and the control methods are driven from the application's control
// path and OnEvent from the ordered ingestion path; entry callbacks arrive
// on scheduler goroutines. Internal state is guarded by one mutex.
type Engine struct {
	sched    *scheduler.Scheduler
	resolver *output.Resolver
	emit     func(output.Alert)
	sink     diag.Sink

	preWarn     time.Duration
	driftBudget time.Duration

	mu       sync.Mutex
	tl       *Timeline
	running  bool
	gen      uint64    // increments per Start/jump/resync; stale callbacks no-op
	virtual  float64   // virtual offset (seconds) at lastSync
	lastSync time.Time // monotonic reference for the virtual clock
	nextIdx  int       // first entry that has not fired or been skipped
}

// Config carries optional engine settings.
type Config struct {
	// PreWarn announces each entry this far before its timestamp.
	PreWarn time.Duration

	// DriftBudget bounds sync corrections; zero uses DefaultDriftBudget.
	DriftBudget time.Duration
}

// NewEngine creates a stopped Engine with no timeline loaded.
// emit receives fired entries; a nil emit discards them.
func NewEngine(sched *scheduler.Scheduler, resolver *output.Resolver, emit func(output.Alert), sink diag.Sink, cfg Config) *Engine {
	if emit == nil {
		emit = func(output.Alert) {}
	}
	if sink == nil {
		sink = diag.Discard
	}
	if cfg.DriftBudget <= 0 {
		cfg.DriftBudget = DefaultDriftBudget
	}
	return &Engine{
		sched:       sched,
		resolver:    resolver,
		emit:        emit,
		sink:        sink,
		preWarn:     cfg.PreWarn,
		driftBudget: cfg.DriftBudget,
	}
}

// Load installs a parsed timeline. The engine must be stopped; a running
// engine keeps its current timeline and returns an error.
func (e *Engine) Load(tl *Timeline) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunning
	}
	e.tl = tl
	return nil
}

// Loaded reports whether a timeline is installed.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tl != nil
}

// Running reports whether the engine is between Start and Stop.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start resets the virtual clock to zero and schedules the first entries.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tl == nil {
		return ErrNoTimeline
	}
	if e.running {
		return ErrRunning
	}
	e.running = true
	e.gen++
	e.virtual = 0
	e.lastSync = time.Now()
	e.nextIdx = 0
	e.scheduleLocked()
	return nil
}

// Stop cancels all pending timeline entries and returns to the stopped
// state. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.gen++
	e.sched.CancelPrefix(keyPrefix)
}

// virtualNowLocked returns the current virtual offset in seconds.
func (e *Engine) virtualNowLocked() float64 {
	return e.virtual + time.Since(e.lastSync).Seconds()
}

// scheduleLocked schedules every entry from nextIdx onward against the
// current clock. Caller holds e.mu.
func (e *Engine) scheduleLocked() {
	now := e.virtualNowLocked()
	gen := e.gen
	for i := e.nextIdx; i < len(e.tl.entries); i++ {
		entry := e.tl.entries[i]
		delay := time.Duration((entry.At-now)*float64(time.Second)) - e.preWarn
		idx := i
		e.sched.Schedule(fmt.Sprintf("%s%d/%d", keyPrefix, gen, idx), delay, func() {
			e.fire(gen, idx)
		})
	}
}

// fire runs on a scheduler goroutine when an entry comes due.
func (e *Engine) fire(gen uint64, idx int) {
	e.mu.Lock()
	// Entries dropped by a resync, jump, or Stop carry a stale generation.
	// Same-generation siblings sharing a timestamp may reach here in either
	// order; each still fires exactly once.
	if !e.running || gen != e.gen {
		e.mu.Unlock()
		return
	}
	entry := e.tl.entries[idx]
	if idx >= e.nextIdx {
		e.nextIdx = idx + 1
	}

	if entry.jumpIdx >= 0 {
		// Intentional skip: drop everything between here and the target
		// and continue from the target's timestamp.
		e.gen++
		e.virtual = e.tl.entries[entry.jumpIdx].At
		e.lastSync = time.Now()
		e.nextIdx = entry.jumpIdx
		e.sched.CancelPrefix(keyPrefix)
		e.scheduleLocked()
	}
	e.mu.Unlock()

	if entry.Name != "" {
		e.emitEntry(entry)
	}
}

// emitEntry resolves and emits one fired entry. Entry names double as
// template keys when the strings tables define them.
func (e *Engine) emitEntry(entry *Entry) {
	text := entry.Name
	if e.resolver != nil && e.resolver.Has(entry.Name) {
		text = e.resolver.Resolve(entry.Name, nil)
	}
	e.emit(output.Alert{
		Severity: output.SeverityInfo,
		Text:     text,
		Source:   "timeline",
		ID:       entry.Name,
		At:       time.Now(),
	})
}

// OnEvent offers a log event to the engine for resynchronization.
//
// Upcoming entries with a sync pattern matching the raw line snap the
// virtual clock to their scripted timestamp, provided the correction stays
// within the drift budget; larger mismatches are reported as diagnostics
// and the engine keeps its best-effort clock. Resync never rewinds past an
// already-fired entry.
func (e *Engine) OnEvent(ev *event.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.tl == nil {
		return
	}

	// When several upcoming entries share a sync pattern, the acceptance
	// window decides which occurrence this line belongs to: prefer the
	// entry whose window contains the current virtual time.
	now := e.virtualNowLocked()
	match := -1
	for i := e.nextIdx; i < len(e.tl.entries); i++ {
		entry := e.tl.entries[i]
		if entry.Sync == nil || !entry.Sync.MatchString(ev.RawLine) {
			continue
		}
		diff := now - entry.At
		if diff >= -entry.WindowBefore && diff <= entry.WindowAfter {
			match = i
			break
		}
		if match < 0 {
			match = i
		}
	}
	if match < 0 {
		return
	}

	entry := e.tl.entries[match]
	diff := now - entry.At
	if diff < -e.driftBudget.Seconds() || diff > e.driftBudget.Seconds() {
		e.sink.Report(diag.Event{
			Kind:    diag.DriftWarning,
			Time:    ev.Timestamp,
			Message: "sync mismatch beyond drift budget, keeping uncorrected clock",
			Fields: map[string]string{
				"entry": entry.Name,
				"drift": fmt.Sprintf("%.1fs", diff),
			},
		})
		return
	}

	// Snap the clock to the entry's scripted timestamp and reschedule
	// everything still pending against the corrected clock.
	e.gen++
	e.virtual = entry.At
	e.lastSync = time.Now()
	e.nextIdx = match
	e.sched.CancelPrefix(keyPrefix)
	e.scheduleLocked()
}
