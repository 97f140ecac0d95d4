// Package automation runs the condition-gated automations that drive
// automation-triggered transforms. When an automation's condition holds
// on a tick, the system publishes the automation's fired topic on the
// bus; whether the transform system observes it this tick or the next
// depends solely on their relative order in the runner, which is the
// documented cross-system ordering behavior.
package automation

import (
	"context"
	"fmt"
	"sort"

	"idle-engine/core/internal/events"
	"idle-engine/core/internal/sim"
	"idle-engine/core/internal/transform"
	"idle-engine/core/logging"
)

// SystemID is the identity the runtime scheduler sees.
const SystemID = "automation-system"

// EventFired is emitted once per automation firing.
const EventFired logging.EventType = "automation.fired"

// Definition declares one automation.
type Definition struct {
	ID        string
	Condition string
	Order     int
}

// Deps injects the automation system's collaborators.
type Deps struct {
	Bus            *events.Bus
	Conditions     transform.ConditionEvaluator
	ConditionState transform.ConditionContext
	Publisher      logging.Publisher
	OnError        func(automationID string, err error)
}

// System evaluates automations each tick in (Order, ID) order.
type System struct {
	defs []Definition
	deps Deps
}

// New builds the automation system.
func New(definitions []Definition, deps Deps) (*System, error) {
	if deps.Bus == nil {
		return nil, fmt.Errorf("automation: event bus is required")
	}
	if deps.Conditions == nil {
		return nil, fmt.Errorf("automation: condition evaluator is required")
	}
	defs := append([]Definition(nil), definitions...)
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Order != defs[j].Order {
			return defs[i].Order < defs[j].Order
		}
		return defs[i].ID < defs[j].ID
	})
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("automation: definition with empty id")
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("automation: duplicate definition %q", def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return &System{defs: defs, deps: deps}, nil
}

// ID identifies the system to the runtime scheduler.
func (s *System) ID() string { return SystemID }

// Tick fires every automation whose condition holds this step.
func (s *System) Tick(frame sim.Frame) {
	if s == nil {
		return
	}
	for _, def := range s.defs {
		if def.Condition == "" {
			continue
		}
		hold, err := s.deps.Conditions.Evaluate(def.Condition, s.deps.ConditionState)
		if err != nil {
			if s.deps.OnError != nil {
				s.deps.OnError(def.ID, err)
			}
			continue
		}
		if !hold {
			continue
		}
		s.deps.Bus.Emit(transform.AutomationFiredTopic(def.ID))
		if s.deps.Publisher != nil {
			s.deps.Publisher.Publish(context.Background(), logging.Event{
				Type:     EventFired,
				Step:     frame.Step,
				Subject:  logging.SubjectRef{ID: def.ID, Kind: logging.SubjectKindAutomation},
				Severity: logging.SeverityDebug,
				Category: logging.CategoryAutomation,
			})
		}
	}
}

var _ sim.System = (*System)(nil)
