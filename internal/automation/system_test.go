package automation

import (
	"fmt"
	"testing"
	"time"

	"idle-engine/core/internal/events"
	"idle-engine/core/internal/sim"
	"idle-engine/core/internal/transform"
)

type stubConditions map[string]bool

func (s stubConditions) Evaluate(src string, _ transform.ConditionContext) (bool, error) {
	value, ok := s[src]
	if !ok {
		return false, fmt.Errorf("unknown condition %q", src)
	}
	return value, nil
}

func frame(step uint64) sim.Frame {
	return sim.Frame{Step: step, Delta: 100 * time.Millisecond}
}

func TestTickFiresHeldConditions(t *testing.T) {
	bus := events.NewBus()
	conditions := stubConditions{"rich": true, "poor": false}
	s, err := New([]Definition{
		{ID: "auto-buy", Condition: "rich"},
		{ID: "auto-beg", Condition: "poor"},
	}, Deps{Bus: bus, Conditions: conditions})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fired []string
	bus.On(transform.AutomationFiredTopic("auto-buy"), func() { fired = append(fired, "auto-buy") })
	bus.On(transform.AutomationFiredTopic("auto-beg"), func() { fired = append(fired, "auto-beg") })

	s.Tick(frame(1))
	if len(fired) != 1 || fired[0] != "auto-buy" {
		t.Fatalf("fired = %v, want [auto-buy]", fired)
	}

	conditions["poor"] = true
	s.Tick(frame(2))
	if len(fired) != 3 {
		t.Fatalf("fired = %v, want both on the second tick", fired)
	}
}

func TestAutomationsEvaluateInOrderThenID(t *testing.T) {
	bus := events.NewBus()
	conditions := stubConditions{"always": true}
	s, err := New([]Definition{
		{ID: "zeta", Condition: "always", Order: 1},
		{ID: "alpha", Condition: "always", Order: 2},
		{ID: "beta", Condition: "always", Order: 1},
	}, Deps{Bus: bus, Conditions: conditions})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fired []string
	for _, id := range []string{"zeta", "alpha", "beta"} {
		id := id
		bus.On(transform.AutomationFiredTopic(id), func() { fired = append(fired, id) })
	}

	s.Tick(frame(1))
	want := []string{"beta", "zeta", "alpha"}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fire order = %v, want %v", fired, want)
		}
	}
}

func TestConditionErrorsReportedNotFatal(t *testing.T) {
	bus := events.NewBus()
	var reported []string
	s, err := New([]Definition{
		{ID: "broken", Condition: "unknown"},
		{ID: "working", Condition: "always"},
	}, Deps{
		Bus:        bus,
		Conditions: stubConditions{"always": true},
		OnError:    func(id string, _ error) { reported = append(reported, id) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fired := 0
	bus.On(transform.AutomationFiredTopic("working"), func() { fired++ })

	s.Tick(frame(1))
	if len(reported) != 1 || reported[0] != "broken" {
		t.Fatalf("reported = %v, want [broken]", reported)
	}
	if fired != 1 {
		t.Fatalf("healthy automation blocked by broken one: fired = %d", fired)
	}
}

func TestNewValidation(t *testing.T) {
	bus := events.NewBus()
	conditions := stubConditions{}
	if _, err := New(nil, Deps{Conditions: conditions}); err == nil {
		t.Error("missing bus accepted")
	}
	if _, err := New(nil, Deps{Bus: bus}); err == nil {
		t.Error("missing evaluator accepted")
	}
	if _, err := New([]Definition{{ID: "dup"}, {ID: "dup"}}, Deps{Bus: bus, Conditions: conditions}); err == nil {
		t.Error("duplicate id accepted")
	}
	if _, err := New([]Definition{{ID: ""}}, Deps{Bus: bus, Conditions: conditions}); err == nil {
		t.Error("empty id accepted")
	}
}
