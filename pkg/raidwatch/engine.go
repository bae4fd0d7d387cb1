package raidwatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/raidwatch/raidwatch-go/internal/diag"
	"github.com/raidwatch/raidwatch-go/internal/parser"
	"github.com/raidwatch/raidwatch-go/internal/scheduler"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/timeline"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/trigger"
)

// DefaultAlertBuffer is the default alert channel capacity.
const DefaultAlertBuffer = 64

// DefaultDiagnosticBuffer is the default diagnostic channel capacity.
const DefaultDiagnosticBuffer = 256

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine is closed")

// Alert is a resolved, ready-to-present notification.
type Alert = output.Alert

// discardLogger returns a logger that discards all output.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Engine ties the line parser, trigger dispatcher, timeline engine, and
// output resolver together behind one ingestion entry point.
//
// Lines flow through a single path: OnLine is not safe for concurrent
// callers. Alerts and Diagnostics may be consumed from any goroutine;
// both channels drop entries rather than block when their buffers fill.
type Engine struct {
	log      *slog.Logger
	sched    *scheduler.Scheduler
	resolver *output.Resolver
	funcs    *trigger.Funcs

	dispatcher *trigger.Dispatcher
	timeline   *timeline.Engine

	alerts chan Alert
	diags  *diag.ChannelSink
	counts *diag.Counts

	mu     sync.Mutex
	closed bool
}

// New creates an Engine from functional options.
// Returns an error for invalid options or a failed strings-file load.
func New(opts ...Option) (*Engine, error) {
	cfg := applyOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	log := cfg.logger
	if log == nil {
		log = discardLogger
	}

	funcs := cfg.funcs
	if funcs == nil {
		funcs = trigger.NewFuncs()
	}

	e := &Engine{
		log:    log,
		funcs:  funcs,
		alerts: make(chan Alert, cfg.alertBuffer),
		diags:  diag.NewChannelSink(cfg.diagBuffer),
	}

	// Unrecognized lines are expected in bulk, so they only increment the
	// counters; every other diagnostic kind also reaches the channel.
	e.counts = diag.NewCounts(diag.SinkFunc(func(ev diag.Event) {
		if ev.Kind == diag.ParseSkip {
			return
		}
		e.diags.Report(ev)
	}))

	e.resolver = output.New(cfg.tables, cfg.locale, e.counts)
	e.sched = scheduler.New(e.counts)
	e.dispatcher = trigger.NewDispatcher(e.sched, e.resolver, e.emit, e.counts)
	e.timeline = timeline.NewEngine(e.sched, e.resolver, e.emit, e.counts, timeline.Config{
		PreWarn:     cfg.preWarn,
		DriftBudget: cfg.driftBudget,
	})

	log.Debug("engine created", "locale", cfg.locale, "alert_buffer", cfg.alertBuffer)
	return e, nil
}

// Alerts returns the alert channel. Closed by Close.
func (e *Engine) Alerts() <-chan Alert { return e.alerts }

// Diagnostics returns the diagnostic channel. Closed by Close.
func (e *Engine) Diagnostics() <-chan diag.Event { return e.diags.Events() }

// DiagnosticCounts returns cumulative per-kind diagnostic counters,
// including kinds that never reach the channel.
func (e *Engine) DiagnosticCounts() map[diag.Kind]uint64 {
	return e.counts.Snapshot()
}

// Funcs returns the condition/action registry trigger files resolve
// against. Register callbacks before loading the files that name them.
func (e *Engine) Funcs() *trigger.Funcs { return e.funcs }

// State returns the shared state passed to conditions and actions.
// Replaced whenever a rule set is loaded.
func (e *Engine) State() *trigger.State { return e.dispatcher.State() }

// OnLine feeds one raw log line through the engine: parse, trigger
// dispatch, then timeline resynchronization. Unrecognized lines are
// counted, malformed lines become diagnostics; neither is an error.
//
// Returns ErrClosed after Close.
func (e *Engine) OnLine(line string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	ev, err := parser.Parse(line)
	if err != nil {
		e.counts.Report(diag.Event{
			Kind:    diag.MalformedLine,
			Message: err.Error(),
			Fields:  map[string]string{"line": line},
		})
		return nil
	}
	if ev == nil {
		e.counts.Report(diag.Event{Kind: diag.ParseSkip})
		return nil
	}

	e.dispatcher.OnEvent(ev)
	e.timeline.OnEvent(ev)
	return nil
}

// LoadRuleSet installs a compiled rule set, replacing the active one.
// Pending instances of the outgoing set are cancelled and shared state is
// reset.
func (e *Engine) LoadRuleSet(set *trigger.RuleSet) {
	e.dispatcher.LoadRuleSet(set)
	e.log.Debug("rule set loaded", "rules", set.Len())
}

// LoadTriggerFile loads, compiles, and installs a YAML trigger file.
// A failed load leaves the previously active set untouched.
func (e *Engine) LoadTriggerFile(path string) error {
	f, err := trigger.Load(path)
	if err != nil {
		return err
	}
	set, err := trigger.Compile(f, e.funcs)
	if err != nil {
		return err
	}
	e.LoadRuleSet(set)
	return nil
}

// LoadTriggerBytes is LoadTriggerFile for in-memory YAML.
func (e *Engine) LoadTriggerBytes(data []byte) error {
	f, err := trigger.LoadBytes(data)
	if err != nil {
		return err
	}
	set, err := trigger.Compile(f, e.funcs)
	if err != nil {
		return err
	}
	e.LoadRuleSet(set)
	return nil
}

// UnloadRuleSet removes the active rule set and cancels its pending
// instances.
func (e *Engine) UnloadRuleSet() {
	e.dispatcher.UnloadRuleSet()
	e.log.Debug("rule set unloaded")
}

// LoadTimeline parses and installs a timeline script. The timeline must
// be stopped.
func (e *Engine) LoadTimeline(script string) error {
	tl, err := timeline.Parse(script)
	if err != nil {
		return err
	}
	return e.timeline.Load(tl)
}

// LoadTimelineFile is LoadTimeline for a script on disk.
func (e *Engine) LoadTimelineFile(path string) error {
	tl, err := timeline.Load(path)
	if err != nil {
		return err
	}
	return e.timeline.Load(tl)
}

// StartTimeline starts the loaded timeline from virtual time zero.
func (e *Engine) StartTimeline() error {
	if err := e.timeline.Start(); err != nil {
		return err
	}
	e.log.Debug("timeline started")
	return nil
}

// StopTimeline stops the running timeline and cancels its pending
// entries. Idempotent.
func (e *Engine) StopTimeline() {
	e.timeline.Stop()
	e.log.Debug("timeline stopped")
}

// TimelineRunning reports whether the timeline is between start and stop.
func (e *Engine) TimelineRunning() bool { return e.timeline.Running() }

// Close stops the timeline, cancels every pending action, waits for
// in-flight callbacks, and closes the alert and diagnostic channels.
// Safe to call multiple times.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.timeline.Stop()
	e.dispatcher.UnloadRuleSet()
	e.sched.Stop()

	close(e.alerts)
	e.diags.Close()
	e.log.Debug("engine closed")
	return nil
}

// emit delivers one alert without blocking the scheduler goroutine that
// produced it.
func (e *Engine) emit(a Alert) {
	select {
	case e.alerts <- a:
	default:
		e.log.Debug("alert buffer full, dropping alert", "id", a.ID)
	}
}
