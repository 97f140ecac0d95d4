// Package transform implements the deterministic transform system: the
// state machine that decides which content-defined conversions fire each
// step, executes their resource transactions atomically, schedules
// multi-step batch and mission completions, and serializes the whole
// thing for exact save/restore and replay.
package transform

import "sort"

// Mode selects how a transform's effect lands.
type Mode string

const (
	// ModeInstant spends inputs and grants outputs within one run.
	ModeInstant Mode = "instant"
	// ModeBatch spends inputs immediately and delivers outputs after a
	// duration measured in steps.
	ModeBatch Mode = "batch"
	// ModeMission is batch plus entity assignment and a probabilistic
	// success/failure outcome rolled at scheduling time.
	ModeMission Mode = "mission"
	// ModeContinuous is declared by content but not supported by this
	// runtime; executing it fails with CodeUnsupportedMode.
	ModeContinuous Mode = "continuous"
)

// TriggerKind selects how execution attempts originate.
type TriggerKind string

const (
	// TriggerManual transforms only fire through ExecuteTransform.
	TriggerManual TriggerKind = "manual"
	// TriggerEvent transforms fire when a named bus event lands; blocked
	// attempts are retained and retried every tick until they succeed.
	TriggerEvent TriggerKind = "event"
	// TriggerCondition transforms attempt one run each tick their
	// condition holds.
	TriggerCondition TriggerKind = "condition"
	// TriggerAutomation transforms fire when the linked automation
	// publishes its fired notification.
	TriggerAutomation TriggerKind = "automation"
)

// Trigger describes what initiates execution attempts for a transform.
type Trigger struct {
	Kind         TriggerKind
	EventID      string
	Condition    string
	AutomationID string
}

// Amount pairs a resource with the formula yielding how much of it one
// run consumes or produces.
type Amount struct {
	Resource string
	Formula  string
}

// Safety caps runaway execution. Zero values mean "not configured".
type Safety struct {
	MaxRunsPerTick        int
	MaxOutstandingBatches int
}

// EntityRequirement describes the entities a mission consumes for its
// duration. MinStats maps stat names to threshold formulas; candidates
// below any threshold are filtered out. PreferHighStats names the stat
// used to rank candidates descending (ties break on ascending instance
// id); when empty, candidates are taken in ascending instance-id order.
type EntityRequirement struct {
	EntityID         string
	CountFormula     string
	ReturnOnComplete bool
	MinStats         map[string]string
	PreferHighStats  string
}

// Aggregation selects how a stat modifier folds the assigned entities'
// stat values into one number.
type Aggregation string

const (
	AggregationSum     Aggregation = "sum"
	AggregationMin     Aggregation = "min"
	AggregationMax     Aggregation = "max"
	AggregationAverage Aggregation = "average"
)

// StatModifier adjusts a mission's success probability by
// weight * aggregate(stat over assigned entities).
type StatModifier struct {
	Stat          string
	WeightFormula string
	Aggregation   Aggregation
}

// SuccessRate describes how a mission's outcome probability is resolved.
type SuccessRate struct {
	BaseRateFormula string
	UsePRD          bool
	StatModifiers   []StatModifier
}

// Outcome is one side of a mission resolution.
type Outcome struct {
	Outputs                 []Amount
	EntityExperienceFormula string
}

// Outcomes pairs the mission's success and optional failure results.
type Outcomes struct {
	Success Outcome
	Failure *Outcome
}

// Definition is the content-authored description of a transform. It is
// immutable at runtime; all mutable bookkeeping lives in State.
type Definition struct {
	ID                  string
	Mode                Mode
	Inputs              []Amount
	Outputs             []Amount
	Trigger             Trigger
	UnlockCondition     string
	VisibilityCondition string
	CooldownFormula     string
	DurationFormula     string
	Safety              *Safety
	EntityRequirements  []EntityRequirement
	SuccessRate         *SuccessRate
	Outcomes            *Outcomes
	Order               int
}

const (
	defaultMaxRunsPerTick = 10
	maxRunsPerTickCeiling = 100
)

// effectiveMaxRuns returns the per-step run budget for a definition.
func effectiveMaxRuns(def *Definition) int {
	limit := defaultMaxRunsPerTick
	if def != nil && def.Safety != nil && def.Safety.MaxRunsPerTick != 0 {
		limit = def.Safety.MaxRunsPerTick
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxRunsPerTickCeiling {
		limit = maxRunsPerTickCeiling
	}
	return limit
}

// sortDefinitions establishes the fixed iteration order: Order
// ascending, then ID ascending.
func sortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Order != defs[j].Order {
			return defs[i].Order < defs[j].Order
		}
		return defs[i].ID < defs[j].ID
	})
}

// AutomationFiredTopic is the bus topic an automation system publishes
// when the named automation fires. The transform system subscribes to it
// for automation-triggered transforms.
func AutomationFiredTopic(automationID string) string {
	return "automation.fired." + automationID
}
