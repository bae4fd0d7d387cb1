package trigger

import (
	"sync"
	"time"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// Fields are the captured fields of one match: the event's positional fields
// merged with any named regex captures.
type Fields map[string]string

// Output is the result of a trigger action: a template key plus bound
// values, resolved into display text at fire time.
type Output struct {
	// Key is the output template key.
	Key string

	// Values are bound template values. Matched fields are always bound;
	// these take precedence on collisions.
	Values output.Values

	// Severity overrides the rule's severity when non-empty.
	Severity output.Severity

	// Sound overrides the rule's sound cue when non-empty.
	Sound string
}

// Condition is a pure predicate over shared state and matched fields.
// Conditions must not retain references to state across invocations.
type Condition func(st *State, fields Fields) bool

// Action produces the trigger's output and may mutate shared state.
// Returning nil emits nothing.
type Action func(st *State, fields Fields) *Output

// DelayFunc computes the firing delay from matched fields.
type DelayFunc func(fields Fields) time.Duration

// Funcs is the registry binding condition and action names referenced by
// trigger files to Go functions. Registrations happen before loading;
// lookups during Compile fail fast on unknown names.
type Funcs struct {
	mu         sync.RWMutex
	conditions map[string]Condition
	actions    map[string]Action
}

// NewFuncs creates an empty registry.
func NewFuncs() *Funcs {
	return &Funcs{
		conditions: make(map[string]Condition),
		actions:    make(map[string]Action),
	}
}

// RegisterCondition binds a predicate name. Later registrations replace
// earlier ones.
func (f *Funcs) RegisterCondition(name string, fn Condition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conditions[name] = fn
}

// RegisterAction binds an action name.
func (f *Funcs) RegisterAction(name string, fn Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[name] = fn
}

// Condition looks up a registered predicate.
func (f *Funcs) Condition(name string) (Condition, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.conditions[name]
	return fn, ok
}

// Action looks up a registered action.
func (f *Funcs) Action(name string) (Action, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.actions[name]
	return fn, ok
}
