package output

import "time"

// Severity classifies how urgently an alert should be presented.
type Severity string

const (
	// SeverityInfo is informational text.
	SeverityInfo Severity = "info"

	// SeverityAlert is a standard warning.
	SeverityAlert Severity = "alert"

	// SeverityAlarm is the most urgent class.
	SeverityAlarm Severity = "alarm"
)

// ParseSeverity converts a string to Severity. Empty maps to SeverityInfo.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case "":
		return SeverityInfo, true
	case SeverityInfo, SeverityAlert, SeverityAlarm:
		return Severity(s), true
	default:
		return "", false
	}
}

// Alert is one fired trigger or timeline entry, ready for the rendering
// layer. The engine makes no assumption about how it is displayed.
type Alert struct {
	// Severity is the presentation urgency.
	Severity Severity `json:"severity"`

	// Text is the resolved, localized display text.
	Text string `json:"text"`

	// Sound is an optional audio cue identifier.
	Sound string `json:"sound,omitempty"`

	// Source identifies the producer: "trigger" or "timeline".
	Source string `json:"source"`

	// ID is the trigger rule id or timeline entry name.
	ID string `json:"id"`

	// At is when the alert fired.
	At time.Time `json:"at"`
}
