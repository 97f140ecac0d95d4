package transform

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"idle-engine/core/internal/sim"
)

// fakeLedger mirrors the engine ledger's index-addressed contract.
type fakeLedger struct {
	ids       []string
	amounts   map[string]float64
	failSpend map[string]bool
}

func newFakeLedger(initial map[string]float64) *fakeLedger {
	ids := make([]string, 0, len(initial))
	for id := range initial {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	amounts := make(map[string]float64, len(initial))
	for id, amount := range initial {
		amounts[id] = amount
	}
	return &fakeLedger{ids: ids, amounts: amounts}
}

func (l *fakeLedger) GetResourceIndex(id string) int {
	for i, known := range l.ids {
		if known == id {
			return i
		}
	}
	return -1
}

func (l *fakeLedger) GetAmount(index int) float64 {
	if index < 0 || index >= len(l.ids) {
		return 0
	}
	return l.amounts[l.ids[index]]
}

func (l *fakeLedger) SpendAmount(index int, amount float64) bool {
	if index < 0 || index >= len(l.ids) {
		return false
	}
	id := l.ids[index]
	if l.failSpend[id] {
		return false
	}
	if l.amounts[id] < amount {
		return false
	}
	l.amounts[id] -= amount
	return true
}

func (l *fakeLedger) AddAmount(index int, amount float64) float64 {
	if index < 0 || index >= len(l.ids) {
		return 0
	}
	id := l.ids[index]
	l.amounts[id] += amount
	return l.amounts[id]
}

func (l *fakeLedger) amount(id string) float64 { return l.amounts[id] }

// noAddLedger hides the output-application capability.
type noAddLedger struct {
	inner *fakeLedger
}

func (l noAddLedger) GetResourceIndex(id string) int { return l.inner.GetResourceIndex(id) }
func (l noAddLedger) GetAmount(index int) float64    { return l.inner.GetAmount(index) }
func (l noAddLedger) SpendAmount(index int, amount float64) bool {
	return l.inner.SpendAmount(index, amount)
}

// fakeFormulas resolves formula sources from a fixed table. Unknown
// sources are evaluation errors.
type fakeFormulas map[string]float64

func (f fakeFormulas) Evaluate(src string, _ FormulaContext) (float64, error) {
	value, ok := f[src]
	if !ok {
		return 0, fmt.Errorf("unknown formula %q", src)
	}
	return value, nil
}

// fakeConditions resolves condition expressions from a mutable table.
type fakeConditions map[string]bool

func (f fakeConditions) Evaluate(src string, _ ConditionContext) (bool, error) {
	value, ok := f[src]
	if !ok {
		return false, fmt.Errorf("unknown condition %q", src)
	}
	return value, nil
}

type fakeInstance struct {
	entityID   string
	stats      map[string]float64
	assigned   bool
	assignedTo string
	returnStep uint64
	experience float64
}

// fakeEntities is a minimal in-memory entity registry.
type fakeEntities struct {
	instances map[string]*fakeInstance
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{instances: make(map[string]*fakeInstance)}
}

func (e *fakeEntities) add(entityID, instanceID string, stats map[string]float64) {
	e.instances[instanceID] = &fakeInstance{entityID: entityID, stats: stats}
}

func (e *fakeEntities) InstancesForEntity(entityID string) []string {
	var ids []string
	for id, inst := range e.instances {
		if inst.entityID == entityID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (e *fakeEntities) InstanceState(instanceID string) (EntityInstanceState, bool) {
	inst, ok := e.instances[instanceID]
	if !ok {
		return EntityInstanceState{}, false
	}
	return EntityInstanceState{
		Stats:      inst.stats,
		Assigned:   inst.assigned,
		ReturnStep: inst.returnStep,
		Experience: inst.experience,
	}, true
}

func (e *fakeEntities) Assign(instanceID, missionID string, returnStep uint64) bool {
	inst, ok := e.instances[instanceID]
	if !ok || inst.assigned {
		return false
	}
	inst.assigned = true
	inst.assignedTo = missionID
	inst.returnStep = returnStep
	return true
}

func (e *fakeEntities) Release(instanceID string) {
	if inst, ok := e.instances[instanceID]; ok {
		inst.assigned = false
		inst.assignedTo = ""
		inst.returnStep = 0
	}
}

func (e *fakeEntities) AddExperience(instanceID string, amount float64) {
	if inst, ok := e.instances[instanceID]; ok {
		inst.experience += amount
	}
}

// fakePRD records the keys it was asked about and answers from a queue.
type fakePRD struct {
	keys    []string
	probs   []float64
	answers []bool
}

func (p *fakePRD) Next(key string, probability float64) bool {
	p.keys = append(p.keys, key)
	p.probs = append(p.probs, probability)
	if len(p.answers) == 0 {
		return false
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer
}

// fakeRecorder counts telemetry calls.
type fakeRecorder struct {
	executed  map[string]int
	blocked   map[ErrorCode]int
	scheduled int
	delivered int
	missions  map[bool]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		executed: make(map[string]int),
		blocked:  make(map[ErrorCode]int),
		missions: make(map[bool]int),
	}
}

func (r *fakeRecorder) TransformExecuted(id string, _ Mode)       { r.executed[id]++ }
func (r *fakeRecorder) TransformBlocked(_ string, code ErrorCode) { r.blocked[code]++ }
func (r *fakeRecorder) BatchScheduled(string)                     { r.scheduled++ }
func (r *fakeRecorder) BatchDelivered(string)                     { r.delivered++ }
func (r *fakeRecorder) MissionResolved(_ string, outcome bool)    { r.missions[outcome]++ }

func frame(step uint64) sim.Frame {
	return sim.Frame{Step: step, Delta: 100 * time.Millisecond}
}

func newTestSystem(t *testing.T, defs []Definition, deps Deps) *System {
	t.Helper()
	if deps.Formulas == nil {
		deps.Formulas = fakeFormulas{}
	}
	if deps.Conditions == nil {
		deps.Conditions = fakeConditions{}
	}
	s, err := New(defs, Config{StepDuration: 100 * time.Millisecond}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func expectCode(t *testing.T, res Result, code ErrorCode) {
	t.Helper()
	if res.Success {
		t.Fatalf("expected failure %s, got success with %d runs", code, res.Runs)
	}
	if res.Error == nil {
		t.Fatalf("expected failure %s, got nil error", code)
	}
	if res.Error.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, res.Error.Code, res.Error.Message)
	}
}
