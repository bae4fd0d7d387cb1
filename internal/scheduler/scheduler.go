// Package scheduler provides keyed, cancellable delayed callbacks for the
// trigger dispatcher and the timeline engine.
//
// Timers are monotonic-clock based (time.AfterFunc), so wall-clock
// adjustments do not affect pending work. Cancellation is cooperative:
// it prevents callbacks that have not started, and a callback that has
// started always runs to completion. Callbacks sharing a key never run
// concurrently; scheduling a new callback for an occupied key cancels the
// stale pending one (last match wins).
package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raidwatch/raidwatch-go/internal/diag"
)

// Token identifies one scheduled callback. The zero Token is invalid and
// safe to Cancel.
type Token struct {
	id uint64
}

// Valid reports whether the token refers to a task that was actually scheduled.
func (t Token) Valid() bool { return t.id != 0 }

// task is one pending or running callback. Tasks are owned by the scheduler
// table from creation until completion or cancellation.
type task struct {
	id        uint64
	key       string
	fn        func()
	timer     *time.Timer
	cancelled bool
	started   bool
}

// keyState serializes callbacks sharing a key. Refcounted by the tasks
// (pending or running) holding the key, and removed when the last one
// finishes, so long sessions with churning keys do not accumulate state.
type keyState struct {
	mu  sync.Mutex
	use int
}

// Scheduler runs delayed callbacks with per-key serialization.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[uint64]*task
	byKey   map[string]uint64 // latest pending task per non-empty key
	keys    map[string]*keyState
	nextID  uint64
	stopped bool
	sink    diag.Sink
	running sync.WaitGroup
}

// New creates a Scheduler reporting action faults to sink.
// A nil sink discards diagnostics.
func New(sink diag.Sink) *Scheduler {
	if sink == nil {
		sink = diag.Discard
	}
	return &Scheduler{
		tasks: make(map[uint64]*task),
		byKey: make(map[string]uint64),
		keys:  make(map[string]*keyState),
		sink:  sink,
	}
}

// Schedule runs fn after delay. Negative delays are clamped to zero.
//
// A non-empty key enforces the single-pending-instance invariant: any pending
// (not yet started) task with the same key is cancelled first, and callbacks
// for the same key never execute concurrently. An empty key schedules an
// independent task with no collision handling (overlap allowed).
//
// Returns the zero Token if the scheduler has been stopped.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) Token {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Token{}
	}

	// Last match wins: drop the stale pending instance for this key.
	if key != "" {
		if prevID, ok := s.byKey[key]; ok {
			s.cancelLocked(prevID)
		}
	}

	s.nextID++
	t := &task{id: s.nextID, key: key, fn: fn}
	s.tasks[t.id] = t
	if key != "" {
		s.byKey[key] = t.id
		ks := s.keys[key]
		if ks == nil {
			ks = &keyState{}
			s.keys[key] = ks
		}
		ks.use++
	}

	s.running.Add(1)
	t.timer = time.AfterFunc(delay, func() { s.run(t.id) })
	return Token{id: t.id}
}

// Cancel prevents the task from running if it has not started yet.
// A task that is already running completes normally. Safe to call with the
// zero Token or a token whose task already finished.
func (s *Scheduler) Cancel(token Token) {
	if !token.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(token.id)
}

// CancelKey cancels the pending task for a key, if any.
func (s *Scheduler) CancelKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[key]; ok {
		s.cancelLocked(id)
	}
}

// CancelPrefix cancels every pending task whose key starts with prefix.
// Used to drop an entire rule set or all timeline entries at once.
func (s *Scheduler) CancelPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if !t.started && strings.HasPrefix(t.key, prefix) {
			s.cancelLocked(id)
		}
	}
}

// Pending returns the number of tasks that have not started or been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.started {
			n++
		}
	}
	return n
}

// Stop cancels all pending tasks and rejects new scheduling. Running
// callbacks complete; Stop blocks until they have. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.running.Wait()
		return
	}
	s.stopped = true
	for id, t := range s.tasks {
		if !t.started {
			s.cancelLocked(id)
		}
	}
	s.mu.Unlock()
	s.running.Wait()
}

// cancelLocked marks a task cancelled and removes it from the table.
// Caller holds s.mu. Started tasks are left alone: they run to completion
// and clean up after themselves.
func (s *Scheduler) cancelLocked(id uint64) {
	t, ok := s.tasks[id]
	if !ok || t.started {
		return
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(s.tasks, id)
	if t.key != "" && s.byKey[t.key] == id {
		delete(s.byKey, t.key)
	}
	s.releaseKeyLocked(t.key)
	// timer.Stop may race with an already-fired timer; run() re-checks the
	// cancelled flag, so the balancing Done happens exactly once either way.
	s.running.Done()
}

// run executes the task body from its timer goroutine.
func (s *Scheduler) run(id uint64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.cancelled {
		// Cancelled between timer fire and lock acquisition; cancelLocked
		// already balanced the WaitGroup.
		s.mu.Unlock()
		return
	}
	t.started = true
	var keyLock *sync.Mutex
	if t.key != "" {
		if ks := s.keys[t.key]; ks != nil {
			keyLock = &ks.mu
		}
	}
	s.mu.Unlock()

	defer s.running.Done()
	defer s.finish(t)

	// Serialize callbacks sharing a key. A started predecessor runs to
	// completion before this instance begins.
	if keyLock != nil {
		keyLock.Lock()
		defer keyLock.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			s.sink.Report(diag.Event{
				Kind:    diag.ActionFault,
				Time:    time.Now(),
				Message: fmt.Sprintf("scheduled action panicked: %v", r),
				Fields:  map[string]string{"key": t.key},
			})
		}
	}()
	t.fn()
}

// finish removes a completed task from the table.
func (s *Scheduler) finish(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, t.id)
	if t.key != "" && s.byKey[t.key] == t.id {
		delete(s.byKey, t.key)
	}
	s.releaseKeyLocked(t.key)
}

// releaseKeyLocked drops one reference on a key's serialization state,
// removing it when no task holds the key. Caller holds s.mu.
func (s *Scheduler) releaseKeyLocked(key string) {
	if key == "" {
		return
	}
	ks := s.keys[key]
	if ks == nil {
		return
	}
	ks.use--
	if ks.use <= 0 {
		delete(s.keys, key)
	}
}
