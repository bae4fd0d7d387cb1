package trigger

import "fmt"

// ValidationError represents a schema-level validation error.
// These errors occur when a trigger file violates structural requirements
// (e.g., missing required fields, invalid version number).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// TriggerError represents an error specific to an individual trigger.
// These errors occur when a single trigger definition has issues
// (e.g., unknown event kind, undefined field name, invalid regex).
type TriggerError struct {
	Index   int    // 0-based index of the trigger in the file
	ID      string // Trigger ID (may be empty if the id field is missing)
	Field   string
	Message string
	Cause   error // Underlying error (e.g., regex compile error)
}

func (e *TriggerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("trigger %q: %s: %s", e.ID, e.Field, e.Message)
	}
	return fmt.Sprintf("trigger[%d]: %s: %s", e.Index, e.Field, e.Message)
}

// Unwrap returns the underlying cause of the error.
// This enables errors.Is() and errors.As() to work with TriggerError.
func (e *TriggerError) Unwrap() error {
	return e.Cause
}
