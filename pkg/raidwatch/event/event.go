// Package event defines the core LogEvent type for combat log parsing.
//
// This package is separated from the main raidwatch package to avoid import
// cycles between pkg/raidwatch and internal/parser.
package event

import (
	"sort"
	"strings"
	"time"
)

// Kind represents the type of combat log event.
type Kind string

const (
	// GameLog is a chat or system message line.
	GameLog Kind = "game_log"

	// AbilityCast indicates an actor started casting an ability.
	AbilityCast Kind = "ability_cast"

	// AbilityUsed indicates an ability resolved on a target.
	AbilityUsed Kind = "ability_used"

	// StatusApplied indicates a status effect was gained.
	StatusApplied Kind = "status_applied"

	// StatusRemoved indicates a status effect was lost.
	StatusRemoved Kind = "status_removed"

	// TargetMarked indicates a marker was placed over an actor.
	TargetMarked Kind = "target_marked"

	// CombatantAdded indicates an actor was added to the field.
	CombatantAdded Kind = "combatant_added"

	// CombatantRemoved indicates an actor was removed from the field.
	CombatantRemoved Kind = "combatant_removed"
)

// allKinds is the canonical list of all event kinds.
// Add new event kinds here when extending the parser.
var allKinds = []Kind{
	GameLog,
	AbilityCast,
	AbilityUsed,
	StatusApplied,
	StatusRemoved,
	TargetMarked,
	CombatantAdded,
	CombatantRemoved,
}

// fieldsByKind is the positional field vocabulary per kind, in line order after
// the timestamp column. The line parser indexes fields by these positions and
// the trigger registry validates match templates against them.
var fieldsByKind = map[Kind][]string{
	GameLog:          {"channel", "speaker", "message"},
	AbilityCast:      {"source_id", "source", "ability_id", "ability", "target_id", "target", "cast_time"},
	AbilityUsed:      {"source_id", "source", "ability_id", "ability", "target_id", "target"},
	StatusApplied:    {"status_id", "status", "duration", "source_id", "source", "target_id", "target"},
	StatusRemoved:    {"status_id", "status", "source_id", "source", "target_id", "target"},
	TargetMarked:     {"target_id", "target", "marker_id"},
	CombatantAdded:   {"actor_id", "actor", "job", "level"},
	CombatantRemoved: {"actor_id", "actor"},
}

// KindNames returns a sorted list of all valid event kind names.
// This is the single source of truth for event kind enumeration.
func KindNames() []string {
	names := make([]string, len(allKinds))
	for i, k := range allKinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return names
}

// kindByName maps lowercase string names to Kind for efficient lookup.
// Built once from allKinds at package initialization.
var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(allKinds))
	for _, k := range allKinds {
		m[string(k)] = k
	}
	return m
}()

// ParseKind converts a string to Kind if valid.
// It is case-insensitive and trims leading/trailing whitespace.
// Returns the kind and true if found, zero value and false otherwise.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	k, ok := kindByName[name]
	return k, ok
}

// FieldNames returns the positional field vocabulary for a kind, in line order.
// Returns nil for an unknown kind. Callers must not mutate the returned slice.
func FieldNames(kind Kind) []string {
	return fieldsByKind[kind]
}

// HasField reports whether the given field name is defined for the kind.
func HasField(kind Kind, field string) bool {
	for _, f := range fieldsByKind[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// Event represents one parsed combat log line.
// Events are immutable once created: the parser builds them and the dispatcher
// and timeline only read them.
type Event struct {
	// Kind is the event kind.
	Kind Kind `json:"kind"`

	// Timestamp is when the event occurred (local time from the log line).
	Timestamp time.Time `json:"timestamp"`

	// Fields maps positional field names to their literal substrings.
	Fields map[string]string `json:"fields,omitempty"`

	// RawLine is the original log line; timeline sync patterns match
	// against it.
	RawLine string `json:"raw_line,omitempty"`
}

// Field returns the named field value, or "" if absent.
func (e *Event) Field(name string) string {
	return e.Fields[name]
}
