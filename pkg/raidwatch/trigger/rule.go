package trigger

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/event"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// Rule is one compiled trigger. Rules are immutable after compilation; the
// set of active rules changes only when a new rule set is loaded.
type Rule struct {
	// ID is unique within a RuleSet.
	ID string

	// Kind is the event kind this rule may match.
	Kind event.Kind

	// Match is the compiled matcher over the event's fields.
	Match *Matcher

	// Condition vetoes firing when it returns false. Nil means always fire.
	Condition Condition

	// Delay is the fixed firing delay.
	Delay time.Duration

	// DelayFrom names a captured field holding the delay in seconds.
	// Takes precedence over Delay.
	DelayFrom string

	// DelayFn computes the delay from matched fields. Takes precedence over
	// both Delay and DelayFrom. Only settable programmatically.
	DelayFn DelayFunc

	// Suppress is the suppression window; zero disables suppression.
	Suppress time.Duration

	// DedupeBy lists captured fields appended to ID to form the dedupe key.
	DedupeBy []string

	// AllowOverlap permits multiple pending instances of this rule.
	AllowOverlap bool

	// Severity is the default alert severity.
	Severity output.Severity

	// Sound is the default audio cue identifier.
	Sound string

	// Text is the output template key used by the default action.
	Text string

	// Action produces the output. Nil uses the default action: emit Text
	// with the matched fields bound.
	Action Action
}

// dedupeKey derives the identity under which only one pending instance is
// enforced.
func (r *Rule) dedupeKey(fields Fields) string {
	key := r.ID
	for _, f := range r.DedupeBy {
		key += "|" + fields[f]
	}
	return key
}

// delay computes the firing delay for one match, clamped to non-negative.
func (r *Rule) delay(fields Fields) time.Duration {
	d := r.Delay
	switch {
	case r.DelayFn != nil:
		d = r.DelayFn(fields)
	case r.DelayFrom != "":
		if secs, err := strconv.ParseFloat(fields[r.DelayFrom], 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// RuleSet is an immutable, compiled collection of rules indexed by event
// kind. Dispatch order within a kind is the registration order.
type RuleSet struct {
	rules  []*Rule
	byKind map[event.Kind][]*Rule
}

// NewRuleSet builds a RuleSet from programmatically constructed rules.
func NewRuleSet(rules ...*Rule) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	byKind := make(map[event.Kind][]*Rule)
	for i, r := range rules {
		if r.ID == "" {
			return nil, &TriggerError{Index: i, Field: "id", Message: "id is required"}
		}
		if _, dup := seen[r.ID]; dup {
			return nil, &TriggerError{Index: i, ID: r.ID, Field: "id", Message: "duplicate id"}
		}
		seen[r.ID] = struct{}{}
		if _, ok := event.ParseKind(string(r.Kind)); !ok {
			return nil, &TriggerError{Index: i, ID: r.ID, Field: "event", Message: fmt.Sprintf("unknown event kind %q", r.Kind)}
		}
		if r.Match == nil {
			return nil, &TriggerError{Index: i, ID: r.ID, Field: "match", Message: "matcher is required"}
		}
		if r.Text == "" && r.Action == nil {
			return nil, &TriggerError{Index: i, ID: r.ID, Field: "text", Message: "either text or action is required"}
		}
		if r.Severity == "" {
			r.Severity = output.SeverityInfo
		}
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}
	return &RuleSet{rules: rules, byKind: byKind}, nil
}

// Rules returns the rules in registration order.
func (rs *RuleSet) Rules() []*Rule { return rs.rules }

// Len returns the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// forKind returns the rules that may match the kind, in registration order.
func (rs *RuleSet) forKind(kind event.Kind) []*Rule {
	return rs.byKind[kind]
}

// Compile turns a validated trigger file into a RuleSet.
//
// Compilation fails fast: an unknown event kind, a field name undefined for
// the kind, a malformed regex, an invalid suppress duration, or an
// unregistered condition/action name each abort the whole load.
func Compile(f *File, funcs *Funcs) (*RuleSet, error) {
	if f == nil {
		return nil, fmt.Errorf("trigger file is nil")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if funcs == nil {
		funcs = NewFuncs()
	}

	rules := make([]*Rule, 0, len(f.Triggers))
	for i, d := range f.Triggers {
		kind, ok := event.ParseKind(d.Event)
		if !ok {
			return nil, &TriggerError{
				Index: i, ID: d.ID, Field: "event",
				Message: fmt.Sprintf("unknown event kind %q", d.Event),
			}
		}

		m, err := CompileMatcher(kind, d.Match)
		if err != nil {
			return nil, &TriggerError{
				Index: i, ID: d.ID, Field: "match",
				Message: err.Error(), Cause: err,
			}
		}

		r := &Rule{
			ID:           d.ID,
			Kind:         kind,
			Match:        m,
			Delay:        time.Duration(d.Delay * float64(time.Second)),
			DelayFrom:    d.DelayFrom,
			DedupeBy:     d.DedupeBy,
			AllowOverlap: d.AllowOverlap,
			Sound:        d.Sound,
			Text:         d.Text,
		}

		if d.DelayFrom != "" && !event.HasField(kind, d.DelayFrom) {
			return nil, &TriggerError{
				Index: i, ID: d.ID, Field: "delay_from",
				Message: fmt.Sprintf("field %q is not defined for event kind %q", d.DelayFrom, kind),
			}
		}

		if d.Suppress != "" {
			w, err := time.ParseDuration(d.Suppress)
			if err != nil || w < 0 {
				return nil, &TriggerError{
					Index: i, ID: d.ID, Field: "suppress",
					Message: fmt.Sprintf("invalid duration %q", d.Suppress), Cause: err,
				}
			}
			r.Suppress = w
		}

		sev, ok := output.ParseSeverity(d.Severity)
		if !ok {
			return nil, &TriggerError{
				Index: i, ID: d.ID, Field: "severity",
				Message: fmt.Sprintf("unknown severity %q", d.Severity),
			}
		}
		r.Severity = sev

		if d.Condition != "" {
			fn, ok := funcs.Condition(d.Condition)
			if !ok {
				return nil, &TriggerError{
					Index: i, ID: d.ID, Field: "condition",
					Message: fmt.Sprintf("condition %q is not registered", d.Condition),
				}
			}
			r.Condition = fn
		}
		if d.Action != "" {
			fn, ok := funcs.Action(d.Action)
			if !ok {
				return nil, &TriggerError{
					Index: i, ID: d.ID, Field: "action",
					Message: fmt.Sprintf("action %q is not registered", d.Action),
				}
			}
			r.Action = fn
		}

		rules = append(rules, r)
	}

	return NewRuleSet(rules...)
}

// Matcher is a compiled, pure matcher over one event kind's fields.
type Matcher struct {
	kind   event.Kind
	fields []fieldMatcher
}

// fieldMatcher matches a single positional field.
type fieldMatcher struct {
	name    string
	literal string
	oneOf   map[string]struct{}
	re      *regexp.Regexp
}

// CompileMatcher compiles field match expressions against a kind's field
// vocabulary. Referencing a field the kind does not define is a compile
// error, not a silent non-match.
func CompileMatcher(kind event.Kind, match map[string]MatchExpr) (*Matcher, error) {
	// Deterministic field order keeps match behavior and capture precedence
	// stable across loads.
	names := make([]string, 0, len(match))
	for name := range match {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]fieldMatcher, 0, len(names))
	for _, name := range names {
		if !event.HasField(kind, name) {
			return nil, fmt.Errorf("field %q is not defined for event kind %q", name, kind)
		}
		expr := match[name]
		fm := fieldMatcher{name: name}
		switch {
		case expr.Regex != "":
			re, err := regexp.Compile(expr.Regex)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid regular expression: %w", name, err)
			}
			fm.re = re
		case len(expr.OneOf) > 0:
			fm.oneOf = make(map[string]struct{}, len(expr.OneOf))
			for _, v := range expr.OneOf {
				fm.oneOf[v] = struct{}{}
			}
		default:
			fm.literal = expr.Literal
		}
		fields = append(fields, fm)
	}

	return &Matcher{kind: kind, fields: fields}, nil
}

// MustMatcher is a helper for programmatic rule construction in tests and
// embedders; it panics on compile errors.
func MustMatcher(kind event.Kind, match map[string]MatchExpr) *Matcher {
	m, err := CompileMatcher(kind, match)
	if err != nil {
		panic(err)
	}
	return m
}

// MatchEvent evaluates the matcher against an event.
//
// On success it returns the captured fields: all of the event's positional
// fields merged with any named regex captures (captures win on collisions).
// MatchEvent is pure and safe for concurrent use.
func (m *Matcher) MatchEvent(ev *event.Event) (Fields, bool) {
	if ev.Kind != m.kind {
		return nil, false
	}

	var captures map[string]string
	for _, fm := range m.fields {
		val, ok := ev.Fields[fm.name]
		if !ok {
			return nil, false
		}
		switch {
		case fm.re != nil:
			sub := fm.re.FindStringSubmatch(val)
			if sub == nil {
				return nil, false
			}
			for gi, gname := range fm.re.SubexpNames() {
				if gname != "" && gi < len(sub) {
					if captures == nil {
						captures = make(map[string]string)
					}
					captures[gname] = sub[gi]
				}
			}
		case fm.oneOf != nil:
			if _, ok := fm.oneOf[val]; !ok {
				return nil, false
			}
		default:
			if val != fm.literal {
				return nil, false
			}
		}
	}

	fields := make(Fields, len(ev.Fields)+len(captures))
	for k, v := range ev.Fields {
		fields[k] = v
	}
	for k, v := range captures {
		fields[k] = v
	}
	return fields, true
}
