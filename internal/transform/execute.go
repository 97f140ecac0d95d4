package transform

import (
	"context"
	"math"

	loggingtransforms "idle-engine/core/logging/transforms"
)

// ExecuteOptions tunes a manual execution request.
type ExecuteOptions struct {
	// Runs is the number of repetitions to attempt; zero means one.
	Runs int
}

// ExecuteTransform attempts up to opts.Runs repetitions of a manual
// transform at the given step. Each repetition is independently subject
// to the full per-run algorithm and the remaining run budget; execution
// stops at the first failure and resources reflect exactly the runs that
// fully committed. The call succeeds when at least one run committed.
func (s *System) ExecuteTransform(id string, step uint64, opts *ExecuteOptions) Result {
	if s == nil {
		return failure(CodeUnknownTransform, "transform system not initialised")
	}
	def, ok := s.defs[id]
	if !ok {
		return failure(CodeUnknownTransform, "unknown transform %q", id)
	}
	if def.Trigger.Kind != TriggerManual {
		return failure(CodeInvalidTrigger, "transform %q is %s-triggered, not manual", id, def.Trigger.Kind)
	}
	runs := 1
	if opts != nil && opts.Runs != 0 {
		if opts.Runs < 0 {
			return failure(CodeInvalidRuns, "runs must be a positive integer, got %d", opts.Runs)
		}
		runs = opts.Runs
	}

	st := s.states[id]
	applied := 0
	var last Result
	for i := 0; i < runs; i++ {
		last = s.executeOnce(def, st, step)
		if !last.Success {
			break
		}
		applied++
	}
	if applied > 0 {
		return success(applied)
	}
	return last
}

// executeOnce runs the full per-run algorithm: gate checks, mode
// dispatch, and on success the cooldown advance and budget increment.
// Trigger-driven attempts enter here directly, bypassing the
// manual-trigger check.
func (s *System) executeOnce(def *Definition, st *State, step uint64) Result {
	st.ensureStep(step)

	if !st.Unlocked {
		return failure(CodeTransformLocked, "transform %q is locked", def.ID)
	}
	switch def.Mode {
	case ModeInstant, ModeBatch, ModeMission:
	default:
		return failure(CodeUnsupportedMode, "mode %q is not supported", def.Mode)
	}
	if step < st.CooldownExpiresStep {
		return failure(CodeCooldownActive, "cooldown active until step %d", st.CooldownExpiresStep)
	}
	if st.RunsThisTick >= effectiveMaxRuns(def) {
		return failure(CodeMaxRunsExceeded, "run budget of %d exhausted for this step", effectiveMaxRuns(def))
	}

	var res Result
	switch def.Mode {
	case ModeInstant:
		res = s.runInstant(def)
	case ModeBatch:
		res = s.scheduleBatch(def, st, step)
	case ModeMission:
		res = s.scheduleMission(def, st, step)
	}
	if !res.Success {
		return res
	}

	s.advanceCooldown(def, st, step)
	st.RunsThisTick++
	if s.deps.Recorder != nil {
		s.deps.Recorder.TransformExecuted(def.ID, def.Mode)
	}
	loggingtransforms.Executed(context.Background(), s.deps.Publisher, step, def.ID,
		loggingtransforms.ExecutedPayload{Mode: string(def.Mode), Runs: st.RunsThisTick})
	return res
}

// advanceCooldown applies the cooldown boundary rule: a run at step S
// with cooldown C ms and step size D ms blocks until S + ceil(C/D) + 1.
// The +1 is contractual — it guarantees a run at S never permits an
// immediate re-fire at the exact boundary. Transforms without a cooldown
// formula never enter cooldown (the per-step run budget still applies).
func (s *System) advanceCooldown(def *Definition, st *State, step uint64) {
	if def.CooldownFormula == "" {
		return
	}
	cooldownMs, err := s.deps.Formulas.Evaluate(def.CooldownFormula, FormulaContext{})
	if err != nil || !isFinite(cooldownMs) {
		// No dedicated code exists for a bad cooldown formula; report it
		// and leave the transform uncooled rather than wedge it.
		if err == nil {
			err = &Error{Code: CodeInvalidDurationFormula, Message: "non-finite cooldown"}
		}
		s.reportError(def.ID, err)
		return
	}
	if cooldownMs < 0 {
		return
	}
	// A zero-ms cooldown still takes the +1: ceil(0/D) is 0 and the
	// boundary rule yields S+1, blocking a same-step re-fire.
	st.CooldownExpiresStep = step + s.stepsFor(cooldownMs) + 1
}

// stepsFor converts milliseconds to whole steps, rounding up.
func (s *System) stepsFor(ms float64) uint64 {
	stepMs := float64(s.config.StepDuration.Milliseconds())
	if stepMs <= 0 {
		stepMs = 100
	}
	steps := math.Ceil(ms / stepMs)
	if steps < 0 {
		return 0
	}
	return uint64(steps)
}

// runInstant executes one atomic spend/produce run.
func (s *System) runInstant(def *Definition) Result {
	inputs, errRes := s.resolveAmounts(def.Inputs, CodeInvalidInputFormula)
	if errRes != nil {
		return *errRes
	}
	outputs, errRes := s.resolveAmounts(def.Outputs, CodeInvalidOutputFormula)
	if errRes != nil {
		return *errRes
	}
	outputIdx, adder, errRes := s.resolveOutputs(outputs)
	if errRes != nil {
		return *errRes
	}
	inputIdx, errRes := s.checkAffordable(inputs)
	if errRes != nil {
		return *errRes
	}
	if errRes := s.spendInputs(inputs, inputIdx); errRes != nil {
		return *errRes
	}
	for i, out := range outputs {
		adder.AddAmount(outputIdx[i], out.Amount)
	}
	return success(1)
}

// resolveAmounts evaluates every formula in the list; any non-finite
// result fails the whole run with the supplied code before any resource
// state is touched.
func (s *System) resolveAmounts(amounts []Amount, code ErrorCode) ([]ResolvedAmount, *Result) {
	if len(amounts) == 0 {
		return nil, nil
	}
	resolved := make([]ResolvedAmount, 0, len(amounts))
	for _, amount := range amounts {
		value, err := s.deps.Formulas.Evaluate(amount.Formula, FormulaContext{})
		if err != nil || !isFinite(value) {
			res := failure(code, "formula for resource %q did not yield a finite number", amount.Resource)
			return nil, &res
		}
		resolved = append(resolved, ResolvedAmount{Resource: amount.Resource, Amount: value})
	}
	return resolved, nil
}

// resolveOutputs resolves output resource indexes and the ledger's
// output-application capability. Both checks happen before any spend so
// their failure paths have zero side effects.
func (s *System) resolveOutputs(outputs []ResolvedAmount) ([]int, ResourceAdder, *Result) {
	if len(outputs) == 0 {
		return nil, nil, nil
	}
	adder, ok := s.deps.Resources.(ResourceAdder)
	if !ok {
		res := failure(CodeResourceStateMissingAddAmount, "resource state does not support output application")
		return nil, nil, &res
	}
	indexes := make([]int, len(outputs))
	for i, out := range outputs {
		idx := s.deps.Resources.GetResourceIndex(out.Resource)
		if idx < 0 {
			res := failure(CodeOutputResourceNotFound, "output resource %q not found", out.Resource)
			return nil, nil, &res
		}
		indexes[i] = idx
	}
	return indexes, adder, nil
}

// checkAffordable verifies every input is currently available. A missing
// input resource can never be afforded, so it reports the same shortfall
// code as an insufficient balance.
func (s *System) checkAffordable(inputs []ResolvedAmount) ([]int, *Result) {
	if len(inputs) == 0 {
		return nil, nil
	}
	indexes := make([]int, len(inputs))
	for i, in := range inputs {
		idx := s.deps.Resources.GetResourceIndex(in.Resource)
		if idx < 0 {
			res := failure(CodeInsufficientResources, "input resource %q not found", in.Resource)
			return nil, &res
		}
		if s.deps.Resources.GetAmount(idx) < in.Amount {
			res := failure(CodeInsufficientResources, "insufficient %q", in.Resource)
			return nil, &res
		}
		indexes[i] = idx
	}
	return indexes, nil
}

// spendInputs spends strictly in definition order. If a later spend
// fails after earlier ones succeeded (a race with another consumer), the
// earlier spends are credited back in reverse order and the run fails
// with no output granted.
func (s *System) spendInputs(inputs []ResolvedAmount, indexes []int) *Result {
	for i, in := range inputs {
		if in.Amount <= 0 {
			continue
		}
		if s.deps.Resources.SpendAmount(indexes[i], in.Amount) {
			continue
		}
		s.rollbackSpent(inputs[:i], indexes[:i])
		res := failure(CodeSpendFailed, "spend of %q failed", in.Resource)
		return &res
	}
	return nil
}

func (s *System) rollbackSpent(spent []ResolvedAmount, indexes []int) {
	adder, ok := s.deps.Resources.(ResourceAdder)
	if !ok {
		// Nothing to credit with; surface the inconsistency instead of
		// silently dropping it.
		s.reportError("", &Error{Code: CodeResourceStateMissingAddAmount, Message: "cannot roll back spent inputs"})
		return
	}
	for i := len(spent) - 1; i >= 0; i-- {
		if spent[i].Amount <= 0 {
			continue
		}
		adder.AddAmount(indexes[i], spent[i].Amount)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
