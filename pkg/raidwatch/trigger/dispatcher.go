package trigger

import (
	"fmt"
	"time"

	"github.com/raidwatch/raidwatch-go/internal/diag"
	"github.com/raidwatch/raidwatch-go/internal/scheduler"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/event"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// Dispatcher evaluates incoming events against the active rule set and
// schedules delayed, cancellable actions.
//
// Dispatcher methods are driven from the single ordered ingestion path and
// are not safe for concurrent callers; suppression and last-match-wins
// semantics depend on arrival order. Scheduled actions run concurrently on
// scheduler goroutines and touch shared memory only through State's lock.
type Dispatcher struct {
	sched    *scheduler.Scheduler
	resolver *output.Resolver
	emit     func(output.Alert)
	sink     diag.Sink

	set   *RuleSet
	state *State
	supp  map[string]time.Time // dedupe key -> lastFiredAt
	gen   uint64               // rule-set generation, namespaces scheduler keys
}

// NewDispatcher creates a Dispatcher with no active rule set.
// emit receives resolved alerts; a nil emit discards them.
func NewDispatcher(sched *scheduler.Scheduler, resolver *output.Resolver, emit func(output.Alert), sink diag.Sink) *Dispatcher {
	if emit == nil {
		emit = func(output.Alert) {}
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Dispatcher{
		sched:    sched,
		resolver: resolver,
		emit:     emit,
		sink:     sink,
	}
}

// LoadRuleSet activates a new rule set: pending instances of the outgoing
// set are cancelled and shared state and suppression memory start fresh.
func (d *Dispatcher) LoadRuleSet(set *RuleSet) {
	d.sched.CancelPrefix("trigger/")
	d.gen++
	d.set = set
	d.state = NewState()
	d.supp = make(map[string]time.Time)
}

// UnloadRuleSet deactivates the current rule set and cancels its pending
// instances. Actions already running complete against the old state.
func (d *Dispatcher) UnloadRuleSet() {
	d.sched.CancelPrefix("trigger/")
	d.set = nil
	d.state = nil
	d.supp = nil
}

// ActiveSet returns the active rule set, or nil.
func (d *Dispatcher) ActiveSet() *RuleSet { return d.set }

// State returns the shared state of the active rule set, or nil.
func (d *Dispatcher) State() *State { return d.state }

// OnEvent evaluates every rule registered for the event's kind, in
// registration order. Side effects happen only through scheduling and
// shared state.
func (d *Dispatcher) OnEvent(ev *event.Event) {
	if d.set == nil {
		return
	}

	for _, r := range d.set.forKind(ev.Kind) {
		fields, ok := r.Match.MatchEvent(ev)
		if !ok {
			continue
		}
		if r.Condition != nil && !r.Condition(d.state, fields) {
			continue
		}

		key := r.dedupeKey(fields)

		// Suppression with lazy expiry: an entry only counts while the
		// window is still open.
		if r.Suppress > 0 {
			if last, ok := d.supp[key]; ok && ev.Timestamp.Sub(last) <= r.Suppress {
				d.sink.Report(diag.Event{
					Kind:    diag.SuppressedMatch,
					Time:    ev.Timestamp,
					Message: "match dropped by suppression window",
					Fields:  map[string]string{"rule": r.ID, "key": key},
				})
				continue
			}
			d.supp[key] = ev.Timestamp
		}

		delay := r.delay(fields)

		schedKey := ""
		if !r.AllowOverlap {
			// Generation tag keeps keys from an unloaded set from
			// colliding with the new one.
			schedKey = fmt.Sprintf("trigger/%d/%s", d.gen, key)
		}

		// Capture the values the callback needs; the dispatcher's own
		// fields may be swapped by a later LoadRuleSet.
		rule, st := r, d.state
		d.sched.Schedule(schedKey, delay, func() {
			d.fire(rule, st, fields)
		})
	}
}

// fire runs on a scheduler goroutine: it executes the action, resolves the
// output, and emits the alert.
func (d *Dispatcher) fire(r *Rule, st *State, fields Fields) {
	var out *Output
	if r.Action != nil {
		out = r.Action(st, fields)
		if out == nil {
			return
		}
	} else {
		out = &Output{Key: r.Text}
	}

	severity := r.Severity
	if out.Severity != "" {
		severity = out.Severity
	}
	sound := r.Sound
	if out.Sound != "" {
		sound = out.Sound
	}

	values := output.Merge(output.FieldValues(fields), out.Values)
	text := d.resolver.Resolve(out.Key, values)

	d.emit(output.Alert{
		Severity: severity,
		Text:     text,
		Sound:    sound,
		Source:   "trigger",
		ID:       r.ID,
		At:       time.Now(),
	})
}
