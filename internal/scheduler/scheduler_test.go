package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidwatch/raidwatch-go/internal/diag"
)

func TestSchedule_Fires(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	fired := make(chan struct{})
	tok := s.Schedule("k", 10*time.Millisecond, func() { close(fired) })
	require.True(t, tok.Valid())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestSchedule_NegativeDelayClampedToZero(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("", -5*time.Second, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestCancel_BeforeStart(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fired atomic.Bool
	tok := s.Schedule("k", 50*time.Millisecond, func() { fired.Store(true) })
	s.Cancel(tok)

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load(), "cancelled callback must never execute")
	assert.Equal(t, 0, s.Pending())
}

func TestCancel_AfterStartRunsToCompletion(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	started := make(chan struct{})
	done := make(chan struct{})
	tok := s.Schedule("k", 0, func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(done)
	})

	<-started
	s.Cancel(tok) // too late; must not prevent completion

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("started callback did not run to completion")
	}
}

func TestSchedule_LastMatchWins(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var first, second atomic.Bool
	s.Schedule("same", 50*time.Millisecond, func() { first.Store(true) })
	s.Schedule("same", 100*time.Millisecond, func() { second.Store(true) })

	time.Sleep(250 * time.Millisecond)
	assert.False(t, first.Load(), "superseded instance must not fire")
	assert.True(t, second.Load(), "newest instance must fire")
}

func TestSchedule_EmptyKeyAllowsOverlap(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	s.Schedule("", 10*time.Millisecond, func() { count.Add(1); wg.Done() })
	s.Schedule("", 10*time.Millisecond, func() { count.Add(1); wg.Done() })

	waitTimeout(t, &wg)
	assert.Equal(t, int32(2), count.Load())
}

func TestSchedule_KeySerialization(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var mu sync.Mutex
	var active, maxActive int
	var wg sync.WaitGroup

	body := func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		wg.Done()
	}

	// Distinct scheduler keys sharing one serialization key would collide in
	// byKey; exercise serialization by letting the first start, then
	// scheduling the second while it runs.
	wg.Add(2)
	s.Schedule("serial", 0, body)
	time.Sleep(10 * time.Millisecond) // first has started
	s.Schedule("serial", 0, body)

	waitTimeout(t, &wg)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxActive, "callbacks sharing a key must not overlap")
}

func TestSchedule_KeyStateReleased(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var done sync.WaitGroup
	done.Add(50)
	for i := 0; i < 50; i++ {
		s.Schedule(fmt.Sprintf("trigger/%d/actor", i), 0, done.Done)
	}
	done.Wait()

	// Cancelled tasks release their key state too.
	s.Schedule("stale", time.Hour, func() {})
	s.CancelKey("stale")

	// Completion bookkeeping runs just after the callback body; poll
	// briefly rather than racing it.
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		n := len(s.keys)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d key states still held after all tasks finished", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_PanicIsolated(t *testing.T) {
	sink := diag.NewCounts(nil)
	s := New(sink)
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("boom", 0, func() { panic("kaboom") })
	s.Schedule("ok", 20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("unrelated callback blocked by a panicking sibling")
	}
	assert.Eventually(t, func() bool {
		return sink.Get(diag.ActionFault) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCancelPrefix(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var timeline, rule atomic.Bool
	s.Schedule("timeline/a", 50*time.Millisecond, func() { timeline.Store(true) })
	s.Schedule("rules/x", 50*time.Millisecond, func() { rule.Store(true) })

	s.CancelPrefix("timeline/")

	time.Sleep(150 * time.Millisecond)
	assert.False(t, timeline.Load())
	assert.True(t, rule.Load())
}

func TestStop_CancelsPendingAndRejectsNew(t *testing.T) {
	s := New(nil)

	var fired atomic.Bool
	s.Schedule("k", 100*time.Millisecond, func() { fired.Store(true) })
	s.Stop()

	tok := s.Schedule("late", 0, func() { fired.Store(true) })
	assert.False(t, tok.Valid())

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load())

	// Idempotent.
	s.Stop()
}

func TestStop_WaitsForRunning(t *testing.T) {
	s := New(nil)

	started := make(chan struct{})
	var done atomic.Bool
	s.Schedule("k", 0, func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	})

	<-started
	s.Stop()
	assert.True(t, done.Load(), "Stop must wait for running callbacks")
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}
