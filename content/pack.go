// Package content decodes designer-authored content packs and compiles
// them into the runtime definitions the engine consumes. The document
// types carry the jsonschema tags cmd/schema reflects into the pack
// schema.
package content

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"idle-engine/core/internal/automation"
	"idle-engine/core/internal/resources"
	"idle-engine/core/internal/transform"
)

// PackFormatVersion names the pack document revision this runtime
// reads. Bump it when a document field changes meaning, not when
// fields are added (additions stay forward compatible).
const PackFormatVersion = "v1"

// PackDocument is the root of one content pack file.
type PackDocument struct {
	Name        string               `json:"name" jsonschema:"required,description=Pack identifier."`
	Resources   []ResourceDocument   `json:"resources,omitempty"`
	Entities    []EntityDocument     `json:"entities,omitempty"`
	Automations []AutomationDocument `json:"automations,omitempty"`
	Transforms  []TransformDocument  `json:"transforms,omitempty"`
}

// ResourceDocument declares a resource and its starting balance.
type ResourceDocument struct {
	ID      string  `json:"id" jsonschema:"required"`
	Initial float64 `json:"initial,omitempty"`
	Cap     float64 `json:"cap,omitempty" jsonschema:"description=Maximum balance; zero means uncapped."`
}

// EntityDocument declares an entity archetype and its seeded instances.
type EntityDocument struct {
	ID        string             `json:"id" jsonschema:"required"`
	Instances []InstanceDocument `json:"instances,omitempty"`
}

// InstanceDocument seeds one entity instance.
type InstanceDocument struct {
	ID    string             `json:"id" jsonschema:"required"`
	Stats map[string]float64 `json:"stats,omitempty"`
}

// AutomationDocument declares a condition-gated automation.
type AutomationDocument struct {
	ID        string `json:"id" jsonschema:"required"`
	Condition string `json:"condition" jsonschema:"required"`
	Order     int    `json:"order,omitempty"`
}

// AmountDocument pairs a resource id with an amount formula.
type AmountDocument struct {
	Resource string `json:"resource" jsonschema:"required"`
	Amount   string `json:"amount" jsonschema:"required,description=Formula yielding the amount."`
}

// TriggerDocument declares how a transform fires.
type TriggerDocument struct {
	Kind         string `json:"kind" jsonschema:"required,enum=manual,enum=event,enum=condition,enum=automation"`
	EventID      string `json:"eventId,omitempty"`
	Condition    string `json:"condition,omitempty"`
	AutomationID string `json:"automationId,omitempty"`
}

// SafetyDocument caps runaway execution.
type SafetyDocument struct {
	MaxRunsPerTick        int `json:"maxRunsPerTick,omitempty"`
	MaxOutstandingBatches int `json:"maxOutstandingBatches,omitempty"`
}

// EntityRequirementDocument declares the entities a mission consumes.
type EntityRequirementDocument struct {
	EntityID         string            `json:"entityId" jsonschema:"required"`
	Count            string            `json:"count" jsonschema:"required,description=Formula yielding how many instances are required."`
	ReturnOnComplete bool              `json:"returnOnComplete,omitempty"`
	MinStats         map[string]string `json:"minStats,omitempty"`
	PreferHighStats  string            `json:"preferHighStats,omitempty"`
}

// StatModifierDocument adjusts mission success probability.
type StatModifierDocument struct {
	Stat        string `json:"stat" jsonschema:"required"`
	Weight      string `json:"weight" jsonschema:"required"`
	Aggregation string `json:"aggregation,omitempty" jsonschema:"enum=sum,enum=min,enum=max,enum=average"`
}

// SuccessRateDocument declares mission outcome probability.
type SuccessRateDocument struct {
	BaseRate      string                 `json:"baseRate" jsonschema:"required"`
	UsePRD        bool                   `json:"usePRD,omitempty"`
	StatModifiers []StatModifierDocument `json:"statModifiers,omitempty"`
}

// OutcomeDocument is one side of a mission resolution.
type OutcomeDocument struct {
	Outputs          []AmountDocument `json:"outputs,omitempty"`
	EntityExperience string           `json:"entityExperience,omitempty"`
}

// OutcomesDocument pairs mission success and failure results.
type OutcomesDocument struct {
	Success OutcomeDocument  `json:"success"`
	Failure *OutcomeDocument `json:"failure,omitempty"`
}

// TransformDocument declares one transform.
type TransformDocument struct {
	ID                  string                      `json:"id" jsonschema:"required"`
	Mode                string                      `json:"mode" jsonschema:"required,enum=instant,enum=batch,enum=mission,enum=continuous"`
	Inputs              []AmountDocument            `json:"inputs,omitempty"`
	Outputs             []AmountDocument            `json:"outputs,omitempty"`
	Trigger             TriggerDocument             `json:"trigger" jsonschema:"required"`
	UnlockCondition     string                      `json:"unlockCondition,omitempty"`
	VisibilityCondition string                      `json:"visibilityCondition,omitempty"`
	Cooldown            string                      `json:"cooldown,omitempty" jsonschema:"description=Formula yielding milliseconds."`
	Duration            string                      `json:"duration,omitempty" jsonschema:"description=Formula yielding milliseconds; required for batch and mission modes."`
	Safety              *SafetyDocument             `json:"safety,omitempty"`
	EntityRequirements  []EntityRequirementDocument `json:"entityRequirements,omitempty"`
	SuccessRate         *SuccessRateDocument        `json:"successRate,omitempty"`
	Outcomes            *OutcomesDocument           `json:"outcomes,omitempty"`
	Order               int                         `json:"order,omitempty"`
}

// Decode reads a pack document from a reader, rejecting unknown
// top-level structure errors but tolerating unknown trigger and mode
// values (forward compatibility lives in Compile, not here).
func Decode(r io.Reader) (*PackDocument, error) {
	var doc PackDocument
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("content: decode pack: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("content: pack has no name")
	}
	return &doc, nil
}

// LoadFile reads and decodes a pack from disk.
func LoadFile(path string) (*PackDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open pack: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

var knownTriggerKinds = map[string]transform.TriggerKind{
	"manual":     transform.TriggerManual,
	"event":      transform.TriggerEvent,
	"condition":  transform.TriggerCondition,
	"automation": transform.TriggerAutomation,
}

// CompileTransforms converts the pack's transform documents to runtime
// definitions. Transforms with unrecognized trigger kinds are skipped
// silently so packs written for newer runtimes still load.
func (d *PackDocument) CompileTransforms() []transform.Definition {
	if d == nil {
		return nil
	}
	defs := make([]transform.Definition, 0, len(d.Transforms))
	for _, doc := range d.Transforms {
		kind, known := knownTriggerKinds[doc.Trigger.Kind]
		if !known {
			continue
		}
		def := transform.Definition{
			ID:   doc.ID,
			Mode: transform.Mode(doc.Mode),
			Trigger: transform.Trigger{
				Kind:         kind,
				EventID:      doc.Trigger.EventID,
				Condition:    doc.Trigger.Condition,
				AutomationID: doc.Trigger.AutomationID,
			},
			UnlockCondition:     doc.UnlockCondition,
			VisibilityCondition: doc.VisibilityCondition,
			CooldownFormula:     doc.Cooldown,
			DurationFormula:     doc.Duration,
			Order:               doc.Order,
		}
		def.Inputs = compileAmounts(doc.Inputs)
		def.Outputs = compileAmounts(doc.Outputs)
		if doc.Safety != nil {
			def.Safety = &transform.Safety{
				MaxRunsPerTick:        doc.Safety.MaxRunsPerTick,
				MaxOutstandingBatches: doc.Safety.MaxOutstandingBatches,
			}
		}
		for _, req := range doc.EntityRequirements {
			minStats := make(map[string]string, len(req.MinStats))
			for stat, formulaSrc := range req.MinStats {
				minStats[stat] = formulaSrc
			}
			if len(minStats) == 0 {
				minStats = nil
			}
			def.EntityRequirements = append(def.EntityRequirements, transform.EntityRequirement{
				EntityID:         req.EntityID,
				CountFormula:     req.Count,
				ReturnOnComplete: req.ReturnOnComplete,
				MinStats:         minStats,
				PreferHighStats:  req.PreferHighStats,
			})
		}
		if doc.SuccessRate != nil {
			rate := &transform.SuccessRate{
				BaseRateFormula: doc.SuccessRate.BaseRate,
				UsePRD:          doc.SuccessRate.UsePRD,
			}
			for _, modifier := range doc.SuccessRate.StatModifiers {
				rate.StatModifiers = append(rate.StatModifiers, transform.StatModifier{
					Stat:          modifier.Stat,
					WeightFormula: modifier.Weight,
					Aggregation:   transform.Aggregation(modifier.Aggregation),
				})
			}
			def.SuccessRate = rate
		}
		if doc.Outcomes != nil {
			outcomes := &transform.Outcomes{Success: compileOutcome(doc.Outcomes.Success)}
			if doc.Outcomes.Failure != nil {
				failure := compileOutcome(*doc.Outcomes.Failure)
				outcomes.Failure = &failure
			}
			def.Outcomes = outcomes
		}
		defs = append(defs, def)
	}
	return defs
}

func compileAmounts(docs []AmountDocument) []transform.Amount {
	if len(docs) == 0 {
		return nil
	}
	amounts := make([]transform.Amount, 0, len(docs))
	for _, doc := range docs {
		amounts = append(amounts, transform.Amount{Resource: doc.Resource, Formula: doc.Amount})
	}
	return amounts
}

func compileOutcome(doc OutcomeDocument) transform.Outcome {
	return transform.Outcome{
		Outputs:                 compileAmounts(doc.Outputs),
		EntityExperienceFormula: doc.EntityExperience,
	}
}

// CompileResources converts the pack's resource documents.
func (d *PackDocument) CompileResources() []resources.Definition {
	if d == nil {
		return nil
	}
	defs := make([]resources.Definition, 0, len(d.Resources))
	for _, doc := range d.Resources {
		defs = append(defs, resources.Definition{ID: doc.ID, Initial: doc.Initial, Cap: doc.Cap})
	}
	return defs
}

// CompileAutomations converts the pack's automation documents.
func (d *PackDocument) CompileAutomations() []automation.Definition {
	if d == nil {
		return nil
	}
	defs := make([]automation.Definition, 0, len(d.Automations))
	for _, doc := range d.Automations {
		defs = append(defs, automation.Definition{ID: doc.ID, Condition: doc.Condition, Order: doc.Order})
	}
	return defs
}
