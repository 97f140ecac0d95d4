package transform

import (
	"idle-engine/core/internal/events"
	"idle-engine/core/logging"
)

// ResourceAccessor is the shared resource ledger contract. SpendAmount
// may fail even after an affordability check passed; the transaction
// engine treats that as a genuine failure and rolls back.
type ResourceAccessor interface {
	GetAmount(index int) float64
	GetResourceIndex(id string) int
	SpendAmount(index int, amount float64) bool
}

// ResourceAdder is the optional output-application capability. Its
// absence is detected before any spend and reported as
// CodeResourceStateMissingAddAmount, never a crash.
type ResourceAdder interface {
	AddAmount(index int, amount float64) float64
}

// FormulaContext is the evaluation context handed to formula evaluation.
type FormulaContext struct {
	Level float64
}

// FormulaEvaluator resolves content formulas to numbers. Results must be
// deterministic given the same context.
type FormulaEvaluator interface {
	Evaluate(formula string, ctx FormulaContext) (float64, error)
}

// ConditionContext exposes the game state condition expressions read.
type ConditionContext interface {
	ResourceAmount(id string) float64
	GeneratorLevel(id string) int
	UpgradePurchases(id string) int
}

// ConditionEvaluator resolves boolean condition expressions.
type ConditionEvaluator interface {
	Evaluate(condition string, ctx ConditionContext) (bool, error)
}

// NeverReturnStep marks an assignment whose entities are never
// auto-returned (returnOnComplete false).
const NeverReturnStep = ^uint64(0)

// EntityInstanceState is the per-instance view the mission scheduler
// consumes.
type EntityInstanceState struct {
	Stats      map[string]float64
	Assigned   bool
	ReturnStep uint64
	Experience float64
}

// EntitySystem tracks individually-identified entity instances and their
// mission assignment lifecycle.
type EntitySystem interface {
	InstancesForEntity(entityID string) []string
	InstanceState(instanceID string) (EntityInstanceState, bool)
	Assign(instanceID, missionID string, returnStep uint64) bool
	Release(instanceID string)
	AddExperience(instanceID string, amount float64)
}

// PRDRegistry is the stateful success-chance smoother used by missions
// with usePRD set. Its captured state is part of the replay contract.
type PRDRegistry interface {
	Next(key string, probability float64) bool
}

// EventBus is the subset of the engine bus the transform system needs.
type EventBus interface {
	On(eventID string, handler func()) events.Subscription
}

// Recorder receives execution telemetry. All methods must be cheap; they
// run inside the tick.
type Recorder interface {
	TransformExecuted(id string, mode Mode)
	TransformBlocked(id string, code ErrorCode)
	BatchScheduled(id string)
	BatchDelivered(id string)
	MissionResolved(id string, outcome bool)
}

// Deps injects every collaborator. Resources, Formulas, Conditions, and
// ConditionState are required; the rest are optional.
type Deps struct {
	Resources      ResourceAccessor
	Formulas       FormulaEvaluator
	Conditions     ConditionEvaluator
	ConditionState ConditionContext
	Entities       EntitySystem
	PRD            PRDRegistry
	RNG            func() float64
	Publisher      logging.Publisher
	Recorder       Recorder
	// OnError receives isolated collaborator failures (bad formulas in
	// delivery paths, condition evaluation errors). One bad formula must
	// not halt the tick, so these are reported instead of returned.
	OnError func(transformID string, err error)
}
