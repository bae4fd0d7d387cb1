// Package tailer follows a growing log file and delivers its lines over
// channels. It wraps nxadm/tail with context-driven shutdown.
package tailer

import (
	"context"
	"io"

	"github.com/nxadm/tail"
)

// Config controls how a file is followed.
type Config struct {
	// FromStart reads the file from the beginning instead of seeking to
	// the end before following.
	FromStart bool

	// Poll uses filesystem polling instead of inotify. The capture tool
	// appends from another process and polling is reliable across
	// platforms, so it defaults to on in DefaultConfig.
	Poll bool
}

// DefaultConfig returns the configuration used for live log following.
func DefaultConfig() Config {
	return Config{Poll: true}
}

// Tailer follows one file. Lines and Errors close when the tailer stops.
type Tailer struct {
	t      *tail.Tail
	lines  chan string
	errs   chan error
	cancel context.CancelFunc
}

// New starts following path. The returned Tailer stops when ctx is
// cancelled or Stop is called.
func New(ctx context.Context, path string, cfg Config) (*Tailer, error) {
	tc := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      cfg.Poll,
		Logger:    tail.DiscardingLogger,
	}
	if !cfg.FromStart {
		tc.Location = &tail.SeekInfo{Whence: io.SeekEnd}
	}

	tl, err := tail.TailFile(path, tc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &Tailer{
		t:      tl,
		lines:  make(chan string),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	go t.run(ctx)
	return t, nil
}

// Lines returns the line channel. Closed when the tailer stops.
func (t *Tailer) Lines() <-chan string { return t.lines }

// Errors returns the error channel. Closed when the tailer stops.
func (t *Tailer) Errors() <-chan error { return t.errs }

// Stop stops following and releases resources. Safe to call once the
// channels are drained or abandoned.
func (t *Tailer) Stop() error {
	t.cancel()
	err := t.t.Stop()
	t.t.Cleanup()
	return err
}

func (t *Tailer) run(ctx context.Context) {
	defer close(t.lines)
	defer close(t.errs)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.t.Lines:
			if !ok {
				if err := t.t.Err(); err != nil {
					select {
					case t.errs <- err:
					default:
					}
				}
				return
			}
			if line.Err != nil {
				select {
				case t.errs <- line.Err:
				default:
				}
				continue
			}
			select {
			case t.lines <- line.Text:
			case <-ctx.Done():
				return
			}
		}
	}
}
