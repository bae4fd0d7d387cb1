package raidwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raidwatch/raidwatch-go/internal/logfinder"
	"github.com/raidwatch/raidwatch-go/internal/tailer"
)

// Re-exported logfinder sentinels so callers can test with errors.Is
// without importing an internal package.
var (
	ErrLogDirNotFound = logfinder.ErrLogDirNotFound
	ErrNoLogFiles     = logfinder.ErrNoLogFiles
)

// WatchOption configures Watch behavior.
type WatchOption func(*watchConfig)

// watchConfig holds internal configuration for the watcher.
type watchConfig struct {
	logDir       string
	pollInterval time.Duration
	fromStart    bool
	waitForLogs  bool
	logger       *slog.Logger
}

// defaultWatchConfig returns a watchConfig with sensible defaults.
func defaultWatchConfig() *watchConfig {
	return &watchConfig{
		pollInterval: 2 * time.Second,
	}
}

// WithLogDir sets the network log directory. If not set, the directory is
// auto-detected; RAIDWATCH_LOGDIR also applies.
func WithLogDir(dir string) WatchOption {
	return func(c *watchConfig) {
		c.logDir = dir
	}
}

// WithPollInterval sets how often to check for new/rotated log files.
// Default: 2 seconds.
func WithPollInterval(interval time.Duration) WatchOption {
	return func(c *watchConfig) {
		c.pollInterval = interval
	}
}

// WithFromStart reads the current log file from the beginning instead of
// following from the end.
func WithFromStart(fromStart bool) WatchOption {
	return func(c *watchConfig) {
		c.fromStart = fromStart
	}
}

// WithWaitForLogs polls until a log file appears when the directory exists
// but is still empty, instead of failing immediately. Useful when the
// watcher starts before the game does.
func WithWaitForLogs(wait bool) WatchOption {
	return func(c *watchConfig) {
		c.waitForLogs = wait
	}
}

// WithWatchLogger sets a custom logger for watcher debug output.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		c.logger = logger
	}
}

// Watch follows the newest network log file and feeds every line into the
// engine until ctx is cancelled. New session files are picked up as the
// game rotates its logs.
//
// Watch owns the engine's ingestion path while it runs; do not call
// OnLine concurrently.
func Watch(ctx context.Context, engine *Engine, opts ...WatchOption) error {
	cfg := defaultWatchConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", cfg.pollInterval)
	}

	log := cfg.logger
	if log == nil {
		log = discardLogger
	}

	logDir, err := logfinder.FindLogDir(cfg.logDir)
	if err != nil {
		if !cfg.waitForLogs {
			return fmt.Errorf("finding log directory: %w", err)
		}
		logDir, err = waitForLogDir(ctx, cfg)
		if err != nil {
			return err
		}
	}
	log.Debug("watching log directory", "dir", logDir)

	logFile, err := findLogFileWithWait(ctx, logDir, cfg)
	if err != nil {
		return err
	}
	log.Debug("following log file", "path", logFile, "from_start", cfg.fromStart)

	tcfg := tailer.DefaultConfig()
	tcfg.FromStart = cfg.fromStart
	t, err := tailer.New(ctx, logFile, tcfg)
	if err != nil {
		return fmt.Errorf("tailing %s: %w", logFile, err)
	}
	defer func() { _ = t.Stop() }()

	rotationTicker := time.NewTicker(cfg.pollInterval)
	defer rotationTicker.Stop()

	currentFile := logFile
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines():
			if !ok {
				return nil
			}
			if err := engine.OnLine(line); err != nil {
				return err
			}
		case err, ok := <-t.Errors():
			if !ok {
				return nil
			}
			log.Debug("tail error", "error", err)
		case <-rotationTicker.C:
			newFile, err := logfinder.FindLatestLogFile(logDir)
			if err != nil {
				log.Debug("rotation check failed", "error", err)
				continue
			}
			if newFile == currentFile {
				continue
			}
			// New session file: drop the old tail and read the new file
			// from the start so no prelude lines are lost.
			log.Debug("log rotation detected", "from", currentFile, "to", newFile)
			_ = t.Stop()
			tcfg := tailer.DefaultConfig()
			tcfg.FromStart = true
			newTailer, err := tailer.New(ctx, newFile, tcfg)
			if err != nil {
				log.Debug("failed to tail rotated file", "path", newFile, "error", err)
				continue
			}
			t = newTailer
			currentFile = newFile
		}
	}
}

// waitForLogDir polls until a valid log directory appears.
func waitForLogDir(ctx context.Context, cfg *watchConfig) (string, error) {
	ticker := time.NewTicker(cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			dir, err := logfinder.FindLogDir(cfg.logDir)
			if err == nil {
				return dir, nil
			}
		}
	}
}

// findLogFileWithWait finds the newest log file, optionally waiting for
// one to appear.
func findLogFileWithWait(ctx context.Context, logDir string, cfg *watchConfig) (string, error) {
	logFile, err := logfinder.FindLatestLogFile(logDir)
	if err == nil {
		return logFile, nil
	}
	if !errors.Is(err, logfinder.ErrNoLogFiles) || !cfg.waitForLogs {
		return "", fmt.Errorf("finding log file: %w", err)
	}

	ticker := time.NewTicker(cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			logFile, err := logfinder.FindLatestLogFile(logDir)
			if err == nil {
				return logFile, nil
			}
			if !errors.Is(err, logfinder.ErrNoLogFiles) {
				return "", fmt.Errorf("finding log file: %w", err)
			}
		}
	}
}
