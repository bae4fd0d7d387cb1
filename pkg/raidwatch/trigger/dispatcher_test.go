package trigger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidwatch/raidwatch-go/internal/diag"
	"github.com/raidwatch/raidwatch-go/internal/scheduler"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/event"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/trigger"
)

type harness struct {
	sched  *scheduler.Scheduler
	disp   *trigger.Dispatcher
	alerts chan output.Alert
	counts *diag.Counts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		alerts: make(chan output.Alert, 32),
		counts: diag.NewCounts(nil),
	}
	h.sched = scheduler.New(h.counts)
	t.Cleanup(h.sched.Stop)

	resolver := output.New(output.Tables{
		"hit":       {"en": "hit"},
		"on":        {"en": "on ${target}"},
		"countdown": {"en": "${seconds}s"},
	}, "en", h.counts)

	h.disp = trigger.NewDispatcher(h.sched, resolver, func(a output.Alert) {
		h.alerts <- a
	}, h.counts)
	return h
}

func (h *harness) expectAlert(t *testing.T) output.Alert {
	t.Helper()
	select {
	case a := <-h.alerts:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
		return output.Alert{}
	}
}

func (h *harness) expectNoAlert(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case a := <-h.alerts:
		t.Fatalf("unexpected alert: %+v", a)
	case <-time.After(within):
	}
}

func mustRuleSet(t *testing.T, rules ...*trigger.Rule) *trigger.RuleSet {
	t.Helper()
	set, err := trigger.NewRuleSet(rules...)
	require.NoError(t, err)
	return set
}

func abilityAt(ts time.Time, abilityID, target string) *event.Event {
	return &event.Event{
		Kind:      event.AbilityUsed,
		Timestamp: ts,
		Fields: map[string]string{
			"source_id":  "10FF0001",
			"source":     "Boss",
			"ability_id": abilityID,
			"ability":    "Attack",
			"target_id":  "T-" + target,
			"target":     target,
		},
	}
}

// Two matches for the same key inside the suppression window yield exactly
// one alert, emitted after the first event.
func TestDispatcher_SuppressionWindow(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Suppress: 5 * time.Second,
		Text:     "hit",
	}))

	base := time.Now()
	h.disp.OnEvent(abilityAt(base, "1234", "Tank"))
	a := h.expectAlert(t)
	assert.Equal(t, "hit", a.Text)
	assert.Equal(t, "X", a.ID)
	assert.Equal(t, "trigger", a.Source)

	// 2s later: inside the window, dropped silently.
	h.disp.OnEvent(abilityAt(base.Add(2*time.Second), "1234", "Tank"))
	h.expectNoAlert(t, 100*time.Millisecond)
	assert.Equal(t, uint64(1), h.counts.Get(diag.SuppressedMatch))

	// 6s later: window expired, fires again.
	h.disp.OnEvent(abilityAt(base.Add(6*time.Second), "1234", "Tank"))
	a = h.expectAlert(t)
	assert.Equal(t, "hit", a.Text)
}

// A newer match for the same dedupe key supersedes the pending instance:
// only the second fires, at its own delay.
func TestDispatcher_LastMatchWins(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Delay: 80 * time.Millisecond,
		Text:  "on",
	}))

	base := time.Now()
	h.disp.OnEvent(abilityAt(base, "1234", "First"))
	h.disp.OnEvent(abilityAt(base, "1234", "Second"))

	a := h.expectAlert(t)
	assert.Equal(t, "on Second", a.Text)
	h.expectNoAlert(t, 200*time.Millisecond)
}

// Distinct dedupe keys do not collide.
func TestDispatcher_DedupeByField(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Suppress: 5 * time.Second,
		DedupeBy: []string{"target_id"},
		Text:     "on",
	}))

	base := time.Now()
	h.disp.OnEvent(abilityAt(base, "1234", "Tank"))
	h.disp.OnEvent(abilityAt(base.Add(time.Second), "1234", "Healer"))

	got := map[string]bool{}
	got[h.expectAlert(t).Text] = true
	got[h.expectAlert(t).Text] = true
	assert.True(t, got["on Tank"])
	assert.True(t, got["on Healer"])
}

// Condition false means skip with no side effects.
func TestDispatcher_ConditionVeto(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Condition: func(st *trigger.State, fields trigger.Fields) bool {
			return st.GetString("phase") == "two"
		},
		Text: "hit",
	}))

	h.disp.OnEvent(abilityAt(time.Now(), "1234", "Tank"))
	h.expectNoAlert(t, 100*time.Millisecond)

	h.disp.State().Set("phase", "two")
	h.disp.OnEvent(abilityAt(time.Now(), "1234", "Tank"))
	h.expectAlert(t)
}

// Conditions run synchronously on the dispatch path in registration order;
// their shared-state mutation order is deterministic.
func TestDispatcher_RegistrationOrder(t *testing.T) {
	h := newHarness(t)
	m := trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
		"ability_id": {Literal: "1234"},
	})
	record := func(name string) trigger.Condition {
		return func(st *trigger.State, fields trigger.Fields) bool {
			st.Update("order", func(old any) any {
				s, _ := old.(string)
				return s + name
			})
			return false // no firing, just the ordering side effect
		}
	}
	h.disp.LoadRuleSet(mustRuleSet(t,
		&trigger.Rule{ID: "b", Kind: event.AbilityUsed, Match: m, Condition: record("b"), Text: "hit"},
		&trigger.Rule{ID: "a", Kind: event.AbilityUsed, Match: m, Condition: record("a"), Text: "hit"},
	))

	h.disp.OnEvent(abilityAt(time.Now(), "1234", "Tank"))
	assert.Equal(t, "ba", h.disp.State().GetString("order"))
}

// Actions may bind lazy values resolved at fire time.
func TestDispatcher_ActionWithLazyOutput(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Action: func(st *trigger.State, fields trigger.Fields) *trigger.Output {
			st.Add("count", 1)
			return &trigger.Output{
				Key:      "countdown",
				Severity: output.SeverityAlert,
				Values: output.Values{
					"seconds": output.String("10"),
				},
			}
		},
	}))

	h.disp.OnEvent(abilityAt(time.Now(), "1234", "Tank"))
	a := h.expectAlert(t)
	assert.Equal(t, "10s", a.Text)
	assert.Equal(t, output.SeverityAlert, a.Severity)

	n, _ := h.disp.State().Get("count")
	assert.Equal(t, 1, n)
}

// delay_from: the firing delay comes from a captured field.
func TestDispatcher_DelayFromField(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityCast,
		Match: trigger.MustMatcher(event.AbilityCast, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "4A40"},
		}),
		DelayFrom: "cast_time",
		Text:      "hit",
	}))

	ev := &event.Event{
		Kind:      event.AbilityCast,
		Timestamp: time.Now(),
		Fields: map[string]string{
			"source_id": "1", "source": "Boss",
			"ability_id": "4A40", "ability": "Buster",
			"target_id": "2", "target": "Tank",
			"cast_time": "0.1",
		},
	}
	start := time.Now()
	h.disp.OnEvent(ev)
	h.expectAlert(t)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// Unloading the rule set cancels pending instances.
func TestDispatcher_UnloadCancelsPending(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Delay: 100 * time.Millisecond,
		Text:  "hit",
	}))

	h.disp.OnEvent(abilityAt(time.Now(), "1234", "Tank"))
	h.disp.UnloadRuleSet()
	h.expectNoAlert(t, 250*time.Millisecond)
}

// Loading a new set starts from fresh shared state and suppression memory.
func TestDispatcher_LoadResetsState(t *testing.T) {
	h := newHarness(t)
	m := trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
		"ability_id": {Literal: "1234"},
	})
	set := mustRuleSet(t, &trigger.Rule{
		ID: "X", Kind: event.AbilityUsed, Match: m,
		Suppress: time.Hour, Text: "hit",
	})

	base := time.Now()
	h.disp.LoadRuleSet(set)
	h.disp.State().Set("phase", "two")
	h.disp.OnEvent(abilityAt(base, "1234", "Tank"))
	h.expectAlert(t)

	// Reload: suppression forgotten, state fresh.
	h.disp.LoadRuleSet(set)
	assert.Equal(t, "", h.disp.State().GetString("phase"))
	h.disp.OnEvent(abilityAt(base.Add(time.Second), "1234", "Tank"))
	h.expectAlert(t)
}

// allow_overlap: both instances fire.
func TestDispatcher_AllowOverlap(t *testing.T) {
	h := newHarness(t)
	h.disp.LoadRuleSet(mustRuleSet(t, &trigger.Rule{
		ID:   "X",
		Kind: event.AbilityUsed,
		Match: trigger.MustMatcher(event.AbilityUsed, map[string]trigger.MatchExpr{
			"ability_id": {Literal: "1234"},
		}),
		Delay:        50 * time.Millisecond,
		AllowOverlap: true,
		Text:         "on",
	}))

	base := time.Now()
	h.disp.OnEvent(abilityAt(base, "1234", "First"))
	h.disp.OnEvent(abilityAt(base, "1234", "Second"))
	h.expectAlert(t)
	h.expectAlert(t)
}
