package transform

import (
	"context"
	"fmt"
	"time"

	"idle-engine/core/internal/events"
	"idle-engine/core/internal/sim"
	loggingtransforms "idle-engine/core/logging/transforms"
)

// SystemID is the identity the runtime scheduler sees.
const SystemID = "transform-system"

// Config tunes the transform system.
type Config struct {
	// StepDuration is the wall-clock size of one step; duration and
	// cooldown formulas yield milliseconds and are converted to steps
	// against it.
	StepDuration time.Duration
}

// System is the transform system façade composing trigger evaluation,
// the transaction engine, the cooldown/safety governor, the
// batch/mission scheduler, and the state serializer.
type System struct {
	defs   map[string]*Definition
	order  []string
	states map[string]*State

	config Config
	deps   Deps

	pendingEvents      map[string]struct{}
	pendingAutomations map[string]struct{}
	subscriptions      []events.Subscription

	currentStep uint64
}

// New builds the system. One State is created per definition, unlocked
// immediately when no unlock condition is declared. The iteration order
// (Order ascending, ID ascending) is established here and never changes.
func New(definitions []Definition, cfg Config, deps Deps) (*System, error) {
	if cfg.StepDuration <= 0 {
		cfg.StepDuration = 100 * time.Millisecond
	}
	if deps.Resources == nil {
		return nil, fmt.Errorf("transform: resource accessor is required")
	}
	if deps.Formulas == nil {
		return nil, fmt.Errorf("transform: formula evaluator is required")
	}

	sorted := append([]Definition(nil), definitions...)
	sortDefinitions(sorted)

	s := &System{
		defs:               make(map[string]*Definition, len(sorted)),
		order:              make([]string, 0, len(sorted)),
		states:             make(map[string]*State, len(sorted)),
		config:             cfg,
		deps:               deps,
		pendingEvents:      make(map[string]struct{}),
		pendingAutomations: make(map[string]struct{}),
	}
	for i := range sorted {
		def := sorted[i]
		if def.ID == "" {
			return nil, fmt.Errorf("transform: definition with empty id")
		}
		if _, exists := s.defs[def.ID]; exists {
			return nil, fmt.Errorf("transform: duplicate definition %q", def.ID)
		}
		s.defs[def.ID] = &def
		s.order = append(s.order, def.ID)
		s.states[def.ID] = &State{
			Unlocked: def.UnlockCondition == "",
			Visible:  def.VisibilityCondition == "",
		}
	}
	return s, nil
}

// ID identifies the system to the runtime scheduler.
func (s *System) ID() string { return SystemID }

// Setup subscribes event- and automation-triggered transforms on the
// bus. Occurrences of the same event within one tick coalesce into a
// single pending trigger.
func (s *System) Setup(bus EventBus) {
	if s == nil || bus == nil {
		return
	}
	seenEvents := make(map[string]struct{})
	seenAutomations := make(map[string]struct{})
	for _, id := range s.order {
		def := s.defs[id]
		switch def.Trigger.Kind {
		case TriggerEvent:
			eventID := def.Trigger.EventID
			if eventID == "" {
				continue
			}
			if _, dup := seenEvents[eventID]; dup {
				continue
			}
			seenEvents[eventID] = struct{}{}
			sub := bus.On(eventID, func() {
				s.pendingEvents[eventID] = struct{}{}
			})
			s.subscriptions = append(s.subscriptions, sub)
		case TriggerAutomation:
			automationID := def.Trigger.AutomationID
			if automationID == "" {
				continue
			}
			if _, dup := seenAutomations[automationID]; dup {
				continue
			}
			seenAutomations[automationID] = struct{}{}
			sub := bus.On(AutomationFiredTopic(automationID), func() {
				s.pendingAutomations[automationID] = struct{}{}
			})
			s.subscriptions = append(s.subscriptions, sub)
		}
	}
}

// Teardown releases the bus subscriptions taken by Setup.
func (s *System) Teardown() {
	if s == nil {
		return
	}
	for _, sub := range s.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

// Tick advances the system by one step: step-identity bookkeeping, then
// unlock/visibility evaluation, then delivery of due completions, then
// trigger evaluation. Delivery precedes new-trigger firing so a
// transform cannot reorder observable effects by retriggering off its
// own just-delivered outputs.
func (s *System) Tick(frame sim.Frame) {
	if s == nil {
		return
	}
	step := frame.Step
	s.currentStep = step

	for _, id := range s.order {
		s.states[id].ensureStep(step)
	}
	s.advanceUnlocks(step)
	s.deliverDue(step)
	s.evaluateTriggers(step)
}

// advanceUnlocks recomputes the monotonic unlock flag and the fresh
// visibility flag for every transform in order.
func (s *System) advanceUnlocks(step uint64) {
	for _, id := range s.order {
		def := s.defs[id]
		st := s.states[id]

		if !st.Unlocked {
			unlocked := def.UnlockCondition == ""
			if !unlocked {
				ok, err := s.evalCondition(def.UnlockCondition)
				if err != nil {
					s.reportError(id, fmt.Errorf("unlock condition: %w", err))
				} else {
					unlocked = ok
				}
			}
			if unlocked {
				st.Unlocked = true
				loggingtransforms.Unlocked(context.Background(), s.deps.Publisher, step, id)
			}
		}

		if def.VisibilityCondition == "" {
			st.Visible = true
			continue
		}
		visible, err := s.evalCondition(def.VisibilityCondition)
		if err != nil {
			s.reportError(id, fmt.Errorf("visibility condition: %w", err))
			continue
		}
		st.Visible = visible
	}
}

// evaluateTriggers resolves pending event, condition, and automation
// triggers for the step. Event triggers that fail a gate are retained
// and retried; automation and condition triggers are not.
func (s *System) evaluateTriggers(step uint64) {
	firedEvents := s.pendingEvents
	s.pendingEvents = make(map[string]struct{})
	firedAutomations := s.pendingAutomations
	s.pendingAutomations = make(map[string]struct{})

	for _, id := range s.order {
		def := s.defs[id]
		st := s.states[id]

		switch def.Trigger.Kind {
		case TriggerEvent:
			_, fired := firedEvents[def.Trigger.EventID]
			if !fired && !st.retainedEvent {
				continue
			}
			res := s.executeOnce(def, st, step)
			if res.Success {
				st.retainedEvent = false
			} else {
				st.retainedEvent = true
				s.recordBlocked(id, res)
			}
		case TriggerCondition:
			if def.Trigger.Condition == "" {
				continue
			}
			hold, err := s.evalCondition(def.Trigger.Condition)
			if err != nil {
				s.reportError(id, fmt.Errorf("trigger condition: %w", err))
				continue
			}
			if !hold {
				continue
			}
			if res := s.executeOnce(def, st, step); !res.Success {
				s.recordBlocked(id, res)
			}
		case TriggerAutomation:
			if _, fired := firedAutomations[def.Trigger.AutomationID]; !fired {
				continue
			}
			if res := s.executeOnce(def, st, step); !res.Success {
				s.recordBlocked(id, res)
			}
		}
	}
}

func (s *System) recordBlocked(id string, res Result) {
	if res.Error == nil {
		return
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.TransformBlocked(id, res.Error.Code)
	}
	loggingtransforms.Blocked(context.Background(), s.deps.Publisher, s.currentStep, id,
		loggingtransforms.BlockedPayload{Code: string(res.Error.Code)})
}

func (s *System) evalCondition(expression string) (bool, error) {
	if s.deps.Conditions == nil {
		return false, fmt.Errorf("no condition evaluator configured")
	}
	return s.deps.Conditions.Evaluate(expression, s.deps.ConditionState)
}

func (s *System) reportError(id string, err error) {
	if s.deps.OnError != nil {
		s.deps.OnError(id, err)
	}
}

// States returns a deep copy of every transform's state keyed by id.
func (s *System) States() map[string]State {
	if s == nil {
		return nil
	}
	out := make(map[string]State, len(s.states))
	for id, st := range s.states {
		out[id] = st.clone()
	}
	return out
}

// StateOf returns a copy of one transform's state.
func (s *System) StateOf(id string) (State, bool) {
	if s == nil {
		return State{}, false
	}
	st, ok := s.states[id]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

// Snapshots returns broadcast-friendly views in iteration order.
func (s *System) Snapshots() []Snapshot {
	if s == nil {
		return nil
	}
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		st := s.states[id]
		out = append(out, Snapshot{
			ID:                  id,
			Unlocked:            st.Unlocked,
			Visible:             st.Visible,
			CooldownExpiresStep: st.CooldownExpiresStep,
			RunsThisTick:        st.RunsThisTick,
			OutstandingBatches:  len(st.Batches),
		})
	}
	return out
}

var _ sim.System = (*System)(nil)
