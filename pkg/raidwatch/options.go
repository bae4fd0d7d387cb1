package raidwatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/trigger"
)

// Option configures an Engine using the functional options pattern.
type Option func(*config)

// config holds internal configuration for the engine.
type config struct {
	locale      string
	tables      output.Tables
	funcs       *trigger.Funcs
	logger      *slog.Logger
	alertBuffer int
	diagBuffer  int
	preWarn     time.Duration
	driftBudget time.Duration
	stringsErr  error // deferred strings-file load error, surfaced by New
}

// defaultConfig returns a config with sensible defaults.
func defaultConfig() *config {
	return &config{
		locale:      "en",
		alertBuffer: DefaultAlertBuffer,
		diagBuffer:  DefaultDiagnosticBuffer,
	}
}

// applyOptions applies functional options to a config.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// validate checks for invalid option combinations.
func (c *config) validate() error {
	if c.stringsErr != nil {
		return c.stringsErr
	}
	if c.locale == "" {
		return fmt.Errorf("locale must be non-empty")
	}
	if c.alertBuffer <= 0 {
		return fmt.Errorf("alert buffer must be positive, got %d", c.alertBuffer)
	}
	if c.diagBuffer <= 0 {
		return fmt.Errorf("diagnostic buffer must be positive, got %d", c.diagBuffer)
	}
	if c.preWarn < 0 {
		return fmt.Errorf("pre-warn lead time must be non-negative, got %v", c.preWarn)
	}
	if c.driftBudget < 0 {
		return fmt.Errorf("drift budget must be non-negative, got %v", c.driftBudget)
	}
	return nil
}

// WithLocale sets the preferred output locale.
// Default: "en". Missing translations fall back to "en".
func WithLocale(locale string) Option {
	return func(c *config) {
		c.locale = locale
	}
}

// WithStrings loads output templates from a YAML strings file.
// Load errors are reported by New. Later strings options replace earlier
// ones.
func WithStrings(path string) Option {
	return func(c *config) {
		f, err := output.Load(path)
		if err != nil {
			c.stringsErr = err
			return
		}
		c.tables = f.Strings
		c.stringsErr = nil
	}
}

// WithStringsBytes loads output templates from in-memory YAML.
func WithStringsBytes(data []byte) Option {
	return func(c *config) {
		f, err := output.LoadBytes(data)
		if err != nil {
			c.stringsErr = err
			return
		}
		c.tables = f.Strings
		c.stringsErr = nil
	}
}

// WithTables sets output templates directly, bypassing YAML loading.
func WithTables(tables output.Tables) Option {
	return func(c *config) {
		c.tables = tables
		c.stringsErr = nil
	}
}

// WithFuncs sets the condition/action registry referenced by trigger files.
// If funcs is nil, this option has no effect.
func WithFuncs(funcs *trigger.Funcs) Option {
	return func(c *config) {
		if funcs != nil {
			c.funcs = funcs
		}
	}
}

// WithLogger sets a custom logger for debug output.
// If logger is nil, logging is disabled (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithAlertBuffer sets the alert channel capacity. When the consumer falls
// behind and the buffer fills, new alerts are dropped rather than blocking
// the ingestion path. Default: DefaultAlertBuffer.
func WithAlertBuffer(n int) Option {
	return func(c *config) {
		c.alertBuffer = n
	}
}

// WithDiagnosticBuffer sets the diagnostic channel capacity.
// Default: DefaultDiagnosticBuffer.
func WithDiagnosticBuffer(n int) Option {
	return func(c *config) {
		c.diagBuffer = n
	}
}

// WithPreWarn announces each timeline entry this far before its scripted
// timestamp. Default: no lead time.
func WithPreWarn(lead time.Duration) Option {
	return func(c *config) {
		c.preWarn = lead
	}
}

// WithDriftBudget bounds how far a timeline sync observation may correct
// the virtual clock. Default: timeline.DefaultDriftBudget.
func WithDriftBudget(budget time.Duration) Option {
	return func(c *config) {
		c.driftBudget = budget
	}
}
