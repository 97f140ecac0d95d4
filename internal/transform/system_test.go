package transform

import (
	"testing"

	"idle-engine/core/internal/events"
)

func TestUnlockIsMonotonic(t *testing.T) {
	def := goldToGem()
	def.UnlockCondition = "has-forge"
	conditions := fakeConditions{"has-forge": false}
	ledger := newFakeLedger(map[string]float64{"gold": 100, "gem": 0})
	s := newTestSystem(t, []Definition{def}, Deps{
		Resources:  ledger,
		Formulas:   goldGemFormulas(),
		Conditions: conditions,
	})

	s.Tick(frame(1))
	if st, _ := s.StateOf("smelt-gem"); st.Unlocked {
		t.Fatal("unlocked before condition held")
	}

	conditions["has-forge"] = true
	s.Tick(frame(2))
	if st, _ := s.StateOf("smelt-gem"); !st.Unlocked {
		t.Fatal("condition held but transform stayed locked")
	}

	// Once unlocked, a false condition never relocks.
	conditions["has-forge"] = false
	s.Tick(frame(3))
	if st, _ := s.StateOf("smelt-gem"); !st.Unlocked {
		t.Fatal("unlock flag reverted")
	}
}

func TestVisibilityRecomputedEveryTick(t *testing.T) {
	def := goldToGem()
	def.VisibilityCondition = "rich"
	conditions := fakeConditions{"rich": true}
	s := newTestSystem(t, []Definition{def}, Deps{
		Resources:  newFakeLedger(map[string]float64{"gold": 100, "gem": 0}),
		Formulas:   goldGemFormulas(),
		Conditions: conditions,
	})

	s.Tick(frame(1))
	if st, _ := s.StateOf("smelt-gem"); !st.Visible {
		t.Fatal("expected visible")
	}
	conditions["rich"] = false
	s.Tick(frame(2))
	if st, _ := s.StateOf("smelt-gem"); st.Visible {
		t.Fatal("visibility did not revert with its condition")
	}
}

func TestHiddenTransformStillExecutes(t *testing.T) {
	def := goldToGem()
	def.VisibilityCondition = "rich"
	ledger := newFakeLedger(map[string]float64{"gold": 100, "gem": 0})
	s := newTestSystem(t, []Definition{def}, Deps{
		Resources:  ledger,
		Formulas:   goldGemFormulas(),
		Conditions: fakeConditions{"rich": false},
	})
	s.Tick(frame(1))

	if res := s.ExecuteTransform("smelt-gem", 1, nil); !res.Success {
		t.Fatalf("hidden transform refused to execute: %+v", res)
	}
}

func TestEventTriggerRetainedUntilSuccess(t *testing.T) {
	def := Definition{
		ID:      "loot-drop",
		Mode:    ModeInstant,
		Trigger: Trigger{Kind: TriggerEvent, EventID: "boss-killed"},
		Inputs:  []Amount{{Resource: "gold", Formula: "10"}},
		Outputs: []Amount{{Resource: "gem", Formula: "1"}},
	}
	ledger := newFakeLedger(map[string]float64{"gold": 0, "gem": 0})
	recorder := newFakeRecorder()
	s := newTestSystem(t, []Definition{def}, Deps{
		Resources: ledger,
		Formulas:  goldGemFormulas(),
		Recorder:  recorder,
	})
	bus := events.NewBus()
	s.Setup(bus)
	defer s.Teardown()

	bus.Emit("boss-killed")
	s.Tick(frame(1))
	if got := ledger.amount("gem"); got != 0 {
		t.Fatalf("broke transform executed: gem = %v", got)
	}
	if recorder.blocked[CodeInsufficientResources] == 0 {
		t.Fatal("blocked attempt not recorded")
	}

	// Funds arrive; the retained trigger fires without a new event.
	ledger.amounts["gold"] = 50
	s.Tick(frame(2))
	if got := ledger.amount("gem"); got != 1 {
		t.Fatalf("retained trigger did not fire: gem = %v", got)
	}

	// Consumed on success: no further executions.
	s.Tick(frame(3))
	if got := ledger.amount("gem"); got != 1 {
		t.Fatalf("trigger fired again after success: gem = %v", got)
	}
}

func TestEventOccurrencesCoalescePerTick(t *testing.T) {
	def := Definition{
		ID:      "loot-drop",
		Mode:    ModeInstant,
		Trigger: Trigger{Kind: TriggerEvent, EventID: "boss-killed"},
		Outputs: []Amount{{Resource: "gem", Formula: "1"}},
	}
	ledger := newFakeLedger(map[string]float64{"gem": 0})
	s := newTestSystem(t, []Definition{def}, Deps{Resources: ledger, Formulas: fakeFormulas{"1": 1}})
	bus := events.NewBus()
	s.Setup(bus)
	defer s.Teardown()

	bus.Emit("boss-killed")
	bus.Emit("boss-killed")
	bus.Emit("boss-killed")
	s.Tick(frame(1))
	if got := ledger.amount("gem"); got != 1 {
		t.Fatalf("coalesced event executed %v times, want 1", got)
	}
}

func TestConditionTriggerFiresWhileHeldWithoutRetention(t *testing.T) {
	def := Definition{
		ID:      "drip",
		Mode:    ModeInstant,
		Trigger: Trigger{Kind: TriggerCondition, Condition: "tap-open"},
		Inputs:  []Amount{{Resource: "gold", Formula: "10"}},
		Outputs: []Amount{{Resource: "gem", Formula: "1"}},
	}
	conditions := fakeConditions{"tap-open": true}
	ledger := newFakeLedger(map[string]float64{"gold": 15, "gem": 0})
	recorder := newFakeRecorder()
	s := newTestSystem(t, []Definition{def}, Deps{
		Resources:  ledger,
		Formulas:   goldGemFormulas(),
		Conditions: conditions,
		Recorder:   recorder,
	})

	s.Tick(frame(1)) // executes, gold 15 -> 5
	s.Tick(frame(2)) // blocked, insufficient
	if got := ledger.amount("gem"); got != 1 {
		t.Fatalf("gem = %v, want 1", got)
	}
	if recorder.blocked[CodeInsufficientResources] != 1 {
		t.Fatalf("blocked count = %d, want 1", recorder.blocked[CodeInsufficientResources])
	}

	// Condition drops: no retention, nothing more fires even with funds.
	conditions["tap-open"] = false
	ledger.amounts["gold"] = 100
	s.Tick(frame(3))
	if got := ledger.amount("gem"); got != 1 {
		t.Fatalf("condition trigger retained across false: gem = %v", got)
	}
}

func TestAutomationTriggerIsNotRetained(t *testing.T) {
	def := Definition{
		ID:      "auto-smelt",
		Mode:    ModeInstant,
		Trigger: Trigger{Kind: TriggerAutomation, AutomationID: "smelter"},
		Inputs:  []Amount{{Resource: "gold", Formula: "10"}},
		Outputs: []Amount{{Resource: "gem", Formula: "1"}},
	}
	ledger := newFakeLedger(map[string]float64{"gold": 0, "gem": 0})
	s := newTestSystem(t, []Definition{def}, Deps{Resources: ledger, Formulas: goldGemFormulas()})
	bus := events.NewBus()
	s.Setup(bus)
	defer s.Teardown()

	bus.Emit(AutomationFiredTopic("smelter"))
	s.Tick(frame(1)) // blocked; automation firings are not retained

	ledger.amounts["gold"] = 50
	s.Tick(frame(2))
	if got := ledger.amount("gem"); got != 0 {
		t.Fatalf("automation firing was retained: gem = %v", got)
	}

	bus.Emit(AutomationFiredTopic("smelter"))
	s.Tick(frame(3))
	if got := ledger.amount("gem"); got != 1 {
		t.Fatalf("fresh firing did not execute: gem = %v", got)
	}
}

func TestIterationOrderFollowsOrderThenID(t *testing.T) {
	defs := []Definition{
		{ID: "zeta", Mode: ModeInstant, Trigger: Trigger{Kind: TriggerManual}, Order: 1},
		{ID: "alpha", Mode: ModeInstant, Trigger: Trigger{Kind: TriggerManual}, Order: 2},
		{ID: "beta", Mode: ModeInstant, Trigger: Trigger{Kind: TriggerManual}, Order: 1},
	}
	s := newTestSystem(t, defs, Deps{Resources: newFakeLedger(nil), Formulas: fakeFormulas{}})

	var got []string
	for _, snap := range s.Snapshots() {
		got = append(got, snap.ID)
	}
	want := []string{"beta", "zeta", "alpha"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("iteration order = %v, want %v", got, want)
		}
	}
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	defs := []Definition{manualInstant("dup"), manualInstant("dup")}
	if _, err := New(defs, Config{}, Deps{Resources: newFakeLedger(nil), Formulas: fakeFormulas{}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestConditionErrorIsIsolated(t *testing.T) {
	def := Definition{
		ID:      "drip",
		Mode:    ModeInstant,
		Trigger: Trigger{Kind: TriggerCondition, Condition: "broken"},
	}
	var reported []string
	s := newTestSystem(t, []Definition{def}, Deps{
		Resources:  newFakeLedger(nil),
		Formulas:   fakeFormulas{},
		Conditions: fakeConditions{}, // "broken" is unknown -> error
		OnError:    func(id string, _ error) { reported = append(reported, id) },
	})

	s.Tick(frame(1)) // must not panic
	if len(reported) == 0 {
		t.Fatal("condition error was swallowed")
	}
}
