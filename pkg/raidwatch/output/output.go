// Package output resolves alert templates into localized display strings.
//
// Templates live in YAML strings files keyed by template key and locale.
// Resolution never fails: a locale without a translation falls back to the
// default locale, and a key missing everywhere yields a clearly marked
// placeholder plus one diagnostic.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/raidwatch/raidwatch-go/internal/diag"
)

// DefaultLocale is the fallback locale when a requested locale lacks a
// translation.
const DefaultLocale = "en"

// Value is one bound template value. Exactly one field is set.
// Lazy values are evaluated at resolve time, not at match time, so dynamic
// text reflects state current at firing.
type Value struct {
	s    string
	fn   func() string
	lazy bool
}

// String creates an eager value.
func String(s string) Value { return Value{s: s} }

// Lazy creates a value computed when the template is resolved.
func Lazy(fn func() string) Value { return Value{fn: fn, lazy: true} }

// Values binds names to template values.
type Values map[string]Value

// resolve evaluates the value.
func (v Value) resolve() string {
	if v.lazy {
		return v.fn()
	}
	return v.s
}

// Resolver renders template keys into display text for one locale.
// Resolver is safe for concurrent use; the tables are immutable after New.
type Resolver struct {
	tables   Tables
	locale   string
	fallback string
	sink     diag.Sink
}

// Tables maps template key -> locale -> template text.
// Templates reference bound values as ${name}.
type Tables map[string]map[string]string

// New creates a Resolver for the given locale. A nil sink discards
// diagnostics; an empty locale uses DefaultLocale.
func New(tables Tables, locale string, sink diag.Sink) *Resolver {
	if locale == "" {
		locale = DefaultLocale
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Resolver{
		tables:   tables,
		locale:   locale,
		fallback: DefaultLocale,
		sink:     sink,
	}
}

// Resolve renders the template for key with the bound values.
//
// Lookup order: requested locale, then the default locale. A key with no
// translation anywhere returns "«key»" and reports exactly one
// MissingTranslation diagnostic. Unbound ${name} references are left
// verbatim so broken templates are visible rather than silently empty.
func (r *Resolver) Resolve(key string, values Values) string {
	locales, ok := r.tables[key]
	if !ok {
		r.sink.Report(diag.Event{
			Kind:    diag.MissingTranslation,
			Time:    time.Now(),
			Message: "no translation for template key",
			Fields:  map[string]string{"key": key, "locale": r.locale},
		})
		return "«" + key + "»"
	}

	tmpl, ok := locales[r.locale]
	if !ok {
		tmpl, ok = locales[r.fallback]
	}
	if !ok {
		r.sink.Report(diag.Event{
			Kind:    diag.MissingTranslation,
			Time:    time.Now(),
			Message: "template key has no translation in requested or default locale",
			Fields:  map[string]string{"key": key, "locale": r.locale},
		})
		return "«" + key + "»"
	}

	return expand(tmpl, values)
}

// expand substitutes ${name} references with their resolved values.
func expand(tmpl string, values Values) string {
	if !strings.Contains(tmpl, "${") {
		return tmpl
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for {
		start := strings.Index(tmpl, "${")
		if start < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end := strings.Index(tmpl[start:], "}")
		if end < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end += start
		b.WriteString(tmpl[:start])
		name := tmpl[start+2 : end]
		if v, ok := values[name]; ok {
			b.WriteString(v.resolve())
		} else {
			// Leave unknown references visible.
			b.WriteString(tmpl[start : end+1])
		}
		tmpl = tmpl[end+1:]
	}
}

// FieldValues converts captured string fields into eager template values.
func FieldValues(fields map[string]string) Values {
	vals := make(Values, len(fields))
	for k, v := range fields {
		vals[k] = String(v)
	}
	return vals
}

// Merge combines value maps; later maps win on key collisions.
func Merge(maps ...Values) Values {
	out := Values{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Has reports whether any locale defines the template key. Callers with
// optional templates (timeline entry names) use this to avoid the missing
// key placeholder.
func (r *Resolver) Has(key string) bool {
	_, ok := r.tables[key]
	return ok
}

// Locales returns the locales available for a key, for debugging and the
// check command.
func (r *Resolver) Locales(key string) []string {
	locales := r.tables[key]
	out := make([]string, 0, len(locales))
	for l := range locales {
		out = append(out, l)
	}
	return out
}

// String implements fmt.Stringer for debugging.
func (r *Resolver) String() string {
	return fmt.Sprintf("output.Resolver{locale: %s, keys: %d}", r.locale, len(r.tables))
}
