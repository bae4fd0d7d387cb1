// Package trigger provides the data-defined trigger rules and the dispatcher
// that matches combat log events against them.
//
// Trigger files are YAML documents declaring pattern rules over typed log
// events. Files are validated and compiled at load time; a load either
// produces a complete RuleSet or fails as a whole, leaving any previously
// active set untouched.
package trigger

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/raidwatch/raidwatch-go/internal/rulefile"
)

const (
	// MaxTriggerFileSize is the maximum allowed size for a trigger file (1MB).
	MaxTriggerFileSize = 1 * 1024 * 1024

	// MaxRegexLength is the maximum allowed length for a field regex
	// (ReDoS mitigation).
	MaxRegexLength = 512

	// MaxTriggerCount is the maximum number of triggers allowed in one file.
	MaxTriggerCount = 1000

	// SupportedVersion is the currently supported trigger file format version.
	SupportedVersion = 1
)

// File represents the structure of a YAML trigger file.
//
// Example YAML file:
//
//	version: 1
//	triggers:
//	  - id: cleave
//	    event: ability_used
//	    match:
//	      ability_id: ["4A3B", "4A3C"]
//	      source: Ravana
//	    suppress: 5s
//	    severity: alarm
//	    text: cleave.warn
type File struct {
	// Version is the trigger file format version. Currently only version 1
	// is supported.
	Version int `yaml:"version"`

	// Triggers is the list of trigger definitions.
	Triggers []Def `yaml:"triggers"`
}

// Def represents a single trigger definition as declared in YAML.
// Behavior (condition, action) is referenced by registered function name;
// the definition itself is plain data.
type Def struct {
	// ID is a unique identifier for this trigger (e.g., "cleave").
	ID string `yaml:"id"`

	// Event is the event kind name this trigger matches (e.g., "ability_used").
	Event string `yaml:"event"`

	// Match maps field names to match expressions. All listed fields must
	// match for the trigger to fire. Field names must exist in the event
	// kind's vocabulary.
	Match map[string]MatchExpr `yaml:"match"`

	// Condition is the name of a registered predicate run over shared state
	// and matched fields. Empty means always true.
	Condition string `yaml:"condition,omitempty"`

	// Delay is a fixed delay in seconds before the action fires.
	Delay float64 `yaml:"delay,omitempty"`

	// DelayFrom names a captured field holding the delay in seconds
	// (e.g., cast_time). Takes precedence over Delay when set.
	DelayFrom string `yaml:"delay_from,omitempty"`

	// Suppress is the minimum interval between firings of the same dedupe
	// key (Go duration string, e.g., "5s"). Empty disables suppression.
	Suppress string `yaml:"suppress,omitempty"`

	// DedupeBy lists captured fields appended to the rule id to form the
	// dedupe key. Empty means the rule id alone.
	DedupeBy []string `yaml:"dedupe_by,omitempty"`

	// AllowOverlap permits multiple pending instances of this trigger.
	AllowOverlap bool `yaml:"allow_overlap,omitempty"`

	// Severity is the alert severity: info, alert, or alarm. Default info.
	Severity string `yaml:"severity,omitempty"`

	// Sound is an optional audio cue identifier passed through to the
	// rendering layer.
	Sound string `yaml:"sound,omitempty"`

	// Text is the output template key resolved when the trigger fires.
	Text string `yaml:"text,omitempty"`

	// Action is the name of a registered action producing the output.
	// When empty, the trigger emits Text with the matched fields bound.
	Action string `yaml:"action,omitempty"`
}

// MatchExpr is one field match expression. YAML shapes:
//
//	field: literal            # exact literal
//	field: [a, b, c]          # alternation over literals
//	field: {regex: '...'}     # regular expression with named captures
type MatchExpr struct {
	// Literal is an exact literal match.
	Literal string

	// OneOf is an alternation over a finite set of literal values.
	OneOf []string

	// Regex is a regular expression; named capture groups are exposed to
	// conditions, actions, and delay functions.
	Regex string
}

// UnmarshalYAML implements yaml.Unmarshaler for the three expression shapes.
func (m *MatchExpr) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&m.Literal)
	case yaml.SequenceNode:
		return node.Decode(&m.OneOf)
	case yaml.MappingNode:
		var aux struct {
			Regex string `yaml:"regex"`
		}
		if err := node.Decode(&aux); err != nil {
			return err
		}
		if aux.Regex == "" {
			return errors.New("match mapping requires a regex key")
		}
		m.Regex = aux.Regex
		return nil
	default:
		return fmt.Errorf("unsupported match expression (line %d)", node.Line)
	}
}

// Load reads and parses a trigger file from the given path.
// Returns an error if the file cannot be read, is too large, or fails
// validation. Regex compilation happens later in Compile.
func Load(path string) (*File, error) {
	data, err := rulefile.ReadLimited(path, MaxTriggerFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a trigger file from a byte slice.
func LoadBytes(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, errors.New("trigger file is empty")
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate performs schema-level validation on the trigger file.
// It checks version, required fields, id uniqueness, and regex length
// limits. It does NOT compile regular expressions or resolve function
// references; that happens in Compile.
func (f *File) Validate() error {
	if f.Version != SupportedVersion {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (only version %d is supported)", f.Version, SupportedVersion),
		}
	}
	if len(f.Triggers) == 0 {
		return &ValidationError{
			Field:   "triggers",
			Message: "at least one trigger is required",
		}
	}
	if len(f.Triggers) > MaxTriggerCount {
		return &ValidationError{
			Field:   "triggers",
			Message: fmt.Sprintf("too many triggers (%d), maximum allowed is %d", len(f.Triggers), MaxTriggerCount),
		}
	}

	seenIDs := make(map[string]int, len(f.Triggers))
	for i, d := range f.Triggers {
		if d.ID == "" {
			return &TriggerError{Index: i, Field: "id", Message: "id is required"}
		}
		if prev, exists := seenIDs[d.ID]; exists {
			return &TriggerError{
				Index:   i,
				ID:      d.ID,
				Field:   "id",
				Message: fmt.Sprintf("duplicate id (previously defined at trigger[%d])", prev),
			}
		}
		seenIDs[d.ID] = i

		if d.Event == "" {
			return &TriggerError{Index: i, ID: d.ID, Field: "event", Message: "event is required"}
		}
		if len(d.Match) == 0 {
			return &TriggerError{Index: i, ID: d.ID, Field: "match", Message: "at least one match field is required"}
		}
		if d.Text == "" && d.Action == "" {
			return &TriggerError{Index: i, ID: d.ID, Field: "text", Message: "either text or action is required"}
		}
		for field, expr := range d.Match {
			if expr.Literal == "" && len(expr.OneOf) == 0 && expr.Regex == "" {
				return &TriggerError{
					Index: i, ID: d.ID, Field: "match." + field,
					Message: "empty match expression",
				}
			}
			if len(expr.Regex) > MaxRegexLength {
				return &TriggerError{
					Index: i, ID: d.ID, Field: "match." + field,
					Message: fmt.Sprintf("regex too long: %d bytes (max %d)", len(expr.Regex), MaxRegexLength),
				}
			}
		}
	}
	return nil
}
