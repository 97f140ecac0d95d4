package transform

import (
	"context"
	"sort"

	loggingtransforms "idle-engine/core/logging/transforms"
)

// scheduleBatch spends inputs immediately and appends a completion
// record delivered once its step arrives. Scheduling is rejected before
// any spend when the outstanding-batch cap is already met.
func (s *System) scheduleBatch(def *Definition, st *State, step uint64) Result {
	durationSteps, errRes := s.resolveDurationSteps(def)
	if errRes != nil {
		return *errRes
	}
	if errRes := checkOutstanding(def, st); errRes != nil {
		return *errRes
	}
	inputs, errRes := s.resolveAmounts(def.Inputs, CodeInvalidInputFormula)
	if errRes != nil {
		return *errRes
	}
	outputs, errRes := s.resolveAmounts(def.Outputs, CodeInvalidOutputFormula)
	if errRes != nil {
		return *errRes
	}
	if _, _, errRes := s.resolveOutputs(outputs); errRes != nil {
		return *errRes
	}
	inputIdx, errRes := s.checkAffordable(inputs)
	if errRes != nil {
		return *errRes
	}
	if errRes := s.spendInputs(inputs, inputIdx); errRes != nil {
		return *errRes
	}

	batch := Batch{CompleteAtStep: step + durationSteps, Outputs: outputs}
	st.Batches = append(st.Batches, batch)
	if s.deps.Recorder != nil {
		s.deps.Recorder.BatchScheduled(def.ID)
	}
	loggingtransforms.BatchScheduled(context.Background(), s.deps.Publisher, step, def.ID,
		loggingtransforms.BatchScheduledPayload{CompleteAtStep: batch.CompleteAtStep, Outstanding: len(st.Batches)})
	return success(1)
}

func (s *System) resolveDurationSteps(def *Definition) (uint64, *Result) {
	durationMs, err := s.deps.Formulas.Evaluate(def.DurationFormula, FormulaContext{})
	if err != nil || !isFinite(durationMs) {
		res := failure(CodeInvalidDurationFormula, "duration formula for %q did not yield a finite number", def.ID)
		return 0, &res
	}
	return s.stepsFor(durationMs), nil
}

func checkOutstanding(def *Definition, st *State) *Result {
	if def.Safety == nil || def.Safety.MaxOutstandingBatches <= 0 {
		return nil
	}
	if len(st.Batches) < def.Safety.MaxOutstandingBatches {
		return nil
	}
	res := failure(CodeMaxOutstandingBatches, "outstanding batch cap of %d reached", def.Safety.MaxOutstandingBatches)
	return &res
}

// missionPlan accumulates everything validated before a mission mutates
// any state.
type missionPlan struct {
	durationSteps  uint64
	inputs         []ResolvedAmount
	inputIdx       []int
	selected       []selectedEntity
	probability    float64
	successOutputs []ResolvedAmount
	successXP      float64
	failureOutputs []ResolvedAmount
	failureXP      float64
}

type selectedEntity struct {
	instanceID string
	returnStep uint64
}

// scheduleMission validates in the contractual order — entity system,
// requirements, counts, stat thresholds, availability, duration, inputs,
// affordability, success rate, outcome formulas, output resources — and
// only then spends, assigns, rolls the outcome, and schedules the
// completion. Nothing mutates until every check passes.
func (s *System) scheduleMission(def *Definition, st *State, step uint64) Result {
	if s.deps.Entities == nil {
		return failure(CodeMissingEntitySystem, "mission %q requires an entity system", def.ID)
	}
	if len(def.EntityRequirements) == 0 {
		return failure(CodeMissingEntityRequirement, "mission %q declares no entity requirements", def.ID)
	}

	plan := missionPlan{}

	counts := make([]int, len(def.EntityRequirements))
	for i, req := range def.EntityRequirements {
		value, err := s.deps.Formulas.Evaluate(req.CountFormula, FormulaContext{})
		if err != nil || !isFinite(value) || value < 0 {
			return failure(CodeInvalidEntityCount, "entity count for %q did not yield a finite non-negative number", req.EntityID)
		}
		counts[i] = int(value)
	}

	thresholds := make([]map[string]float64, len(def.EntityRequirements))
	for i, req := range def.EntityRequirements {
		if len(req.MinStats) == 0 {
			continue
		}
		mins := make(map[string]float64, len(req.MinStats))
		for stat, formulaSrc := range req.MinStats {
			value, err := s.deps.Formulas.Evaluate(formulaSrc, FormulaContext{})
			if err != nil || !isFinite(value) {
				return failure(CodeInvalidEntityStatRequirement, "stat requirement %q for %q did not yield a finite number", stat, req.EntityID)
			}
			mins[stat] = value
		}
		thresholds[i] = mins
	}

	// Availability is checked before duration per the validation order.
	picked := make([][]string, len(def.EntityRequirements))
	for i, req := range def.EntityRequirements {
		instances, errRes := s.selectEntities(req, counts[i], thresholds[i])
		if errRes != nil {
			return *errRes
		}
		picked[i] = instances
	}

	var errRes *Result
	plan.durationSteps, errRes = s.resolveDurationSteps(def)
	if errRes != nil {
		return *errRes
	}
	for i, req := range def.EntityRequirements {
		returnStep := NeverReturnStep
		if req.ReturnOnComplete {
			returnStep = step + plan.durationSteps
		}
		for _, instanceID := range picked[i] {
			plan.selected = append(plan.selected, selectedEntity{instanceID: instanceID, returnStep: returnStep})
		}
	}

	plan.inputs, errRes = s.resolveAmounts(def.Inputs, CodeInvalidInputFormula)
	if errRes != nil {
		return *errRes
	}
	plan.inputIdx, errRes = s.checkAffordable(plan.inputs)
	if errRes != nil {
		return *errRes
	}

	plan.probability, errRes = s.resolveSuccessProbability(def, plan.selected)
	if errRes != nil {
		return *errRes
	}

	successOutcome := Outcome{}
	if def.Outcomes != nil {
		successOutcome = def.Outcomes.Success
	}
	plan.successOutputs, plan.successXP, errRes = s.resolveOutcome(successOutcome)
	if errRes != nil {
		return *errRes
	}
	if def.Outcomes != nil && def.Outcomes.Failure != nil {
		plan.failureOutputs, plan.failureXP, errRes = s.resolveOutcome(*def.Outcomes.Failure)
		if errRes != nil {
			return *errRes
		}
	}
	if _, _, errRes := s.resolveOutputs(plan.successOutputs); errRes != nil {
		return *errRes
	}
	if _, _, errRes := s.resolveOutputs(plan.failureOutputs); errRes != nil {
		return *errRes
	}
	if errRes := checkOutstanding(def, st); errRes != nil {
		return *errRes
	}

	// Validation complete; mutate.
	if errRes := s.spendInputs(plan.inputs, plan.inputIdx); errRes != nil {
		return *errRes
	}
	instanceIDs := make([]string, 0, len(plan.selected))
	for _, sel := range plan.selected {
		s.deps.Entities.Assign(sel.instanceID, def.ID, sel.returnStep)
		instanceIDs = append(instanceIDs, sel.instanceID)
	}

	succeeded := s.rollOutcome(def, plan.probability)
	outputs, experience := plan.successOutputs, plan.successXP
	if !succeeded {
		outputs, experience = plan.failureOutputs, plan.failureXP
	}

	batch := Batch{
		CompleteAtStep:    step + plan.durationSteps,
		Outputs:           outputs,
		EntityInstanceIDs: instanceIDs,
		EntityExperience:  experience,
	}
	st.Batches = append(st.Batches, batch)
	if s.deps.Recorder != nil {
		s.deps.Recorder.BatchScheduled(def.ID)
		s.deps.Recorder.MissionResolved(def.ID, succeeded)
	}
	loggingtransforms.MissionResolved(context.Background(), s.deps.Publisher, step, def.ID,
		loggingtransforms.MissionResolvedPayload{Success: succeeded, Probability: plan.probability, Entities: len(instanceIDs)})
	return success(1)
}

// resolveOutcome evaluates one outcome's output and experience formulas.
func (s *System) resolveOutcome(outcome Outcome) ([]ResolvedAmount, float64, *Result) {
	outputs, errRes := s.resolveAmounts(outcome.Outputs, CodeInvalidOutputFormula)
	if errRes != nil {
		return nil, 0, errRes
	}
	if outcome.EntityExperienceFormula == "" {
		return outputs, 0, nil
	}
	experience, err := s.deps.Formulas.Evaluate(outcome.EntityExperienceFormula, FormulaContext{})
	if err != nil || !isFinite(experience) {
		res := failure(CodeInvalidOutputFormula, "entity experience formula did not yield a finite number")
		return nil, 0, &res
	}
	return outputs, experience, nil
}

// selectEntities ranks unassigned matching instances and takes the
// required count. Ranking is descending by the preferred stat with ties
// broken by ascending instance id; without a preferred stat the order is
// ascending instance id. Both orders are deterministic by construction.
func (s *System) selectEntities(req EntityRequirement, count int, mins map[string]float64) ([]string, *Result) {
	if count == 0 {
		return nil, nil
	}
	candidates := make([]string, 0)
	stats := make(map[string]map[string]float64)
	for _, instanceID := range s.deps.Entities.InstancesForEntity(req.EntityID) {
		state, ok := s.deps.Entities.InstanceState(instanceID)
		if !ok || state.Assigned {
			continue
		}
		eligible := true
		for stat, min := range mins {
			if state.Stats[stat] < min {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}
		candidates = append(candidates, instanceID)
		stats[instanceID] = state.Stats
	}
	if len(candidates) < count {
		res := failure(CodeInsufficientEntities, "need %d of %q, have %d available", count, req.EntityID, len(candidates))
		return nil, &res
	}
	if req.PreferHighStats != "" {
		stat := req.PreferHighStats
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := stats[candidates[i]][stat], stats[candidates[j]][stat]
			if a != b {
				return a > b
			}
			return candidates[i] < candidates[j]
		})
	} else {
		sort.Strings(candidates)
	}
	return candidates[:count], nil
}

// resolveSuccessProbability folds the base rate and stat modifiers into
// a clamped [0,1] probability. A mission without a success-rate block
// always succeeds.
func (s *System) resolveSuccessProbability(def *Definition, selected []selectedEntity) (float64, *Result) {
	if def.SuccessRate == nil {
		return 1, nil
	}
	base, err := s.deps.Formulas.Evaluate(def.SuccessRate.BaseRateFormula, FormulaContext{})
	if err != nil || !isFinite(base) {
		res := failure(CodeInvalidSuccessRate, "base success rate for %q did not yield a finite number", def.ID)
		return 0, &res
	}
	probability := base
	for _, modifier := range def.SuccessRate.StatModifiers {
		weight, err := s.deps.Formulas.Evaluate(modifier.WeightFormula, FormulaContext{})
		if err != nil || !isFinite(weight) {
			res := failure(CodeInvalidSuccessRate, "stat modifier weight for %q did not yield a finite number", def.ID)
			return 0, &res
		}
		probability += weight * s.aggregateStat(modifier, selected)
	}
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return probability, nil
}

func (s *System) aggregateStat(modifier StatModifier, selected []selectedEntity) float64 {
	if len(selected) == 0 {
		return 0
	}
	values := make([]float64, 0, len(selected))
	for _, sel := range selected {
		state, ok := s.deps.Entities.InstanceState(sel.instanceID)
		if !ok {
			continue
		}
		values = append(values, state.Stats[modifier.Stat])
	}
	if len(values) == 0 {
		return 0
	}
	switch modifier.Aggregation {
	case AggregationMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case AggregationAverage:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	default: // sum
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	}
}

// rollOutcome decides a mission's outcome at scheduling time so the
// completion record is replay-exact. PRD smoothing is keyed by the
// transform id; without PRD a direct weighted coin flip is used.
func (s *System) rollOutcome(def *Definition, probability float64) bool {
	if def.SuccessRate != nil && def.SuccessRate.UsePRD && s.deps.PRD != nil {
		return s.deps.PRD.Next(def.ID, probability)
	}
	if probability >= 1 {
		return true
	}
	if probability <= 0 {
		return false
	}
	if s.deps.RNG == nil {
		return false
	}
	return s.deps.RNG() < probability
}

// deliverDue applies every completion whose step has arrived. Transforms
// are visited in iteration order; within one transform, batches deliver
// in FIFO scheduling order, and within one batch, outputs apply in
// definition order — that interleaving is observable and contractual.
func (s *System) deliverDue(step uint64) {
	for _, id := range s.order {
		st := s.states[id]
		if len(st.Batches) == 0 {
			continue
		}
		remaining := st.Batches[:0]
		for _, batch := range st.Batches {
			if batch.CompleteAtStep > step {
				remaining = append(remaining, batch)
				continue
			}
			s.deliverBatch(id, batch, step)
		}
		if len(remaining) == 0 {
			st.Batches = nil
		} else {
			st.Batches = remaining
		}
	}
}

func (s *System) deliverBatch(id string, batch Batch, step uint64) {
	adder, _ := s.deps.Resources.(ResourceAdder)
	for _, out := range batch.Outputs {
		amount := out.Amount
		if !isFinite(amount) {
			amount = 0
		}
		idx := s.deps.Resources.GetResourceIndex(out.Resource)
		if idx < 0 {
			s.reportError(id, &Error{Code: CodeOutputResourceNotFound, Message: "batch output resource " + out.Resource + " not found"})
			continue
		}
		if adder == nil {
			s.reportError(id, &Error{Code: CodeResourceStateMissingAddAmount, Message: "cannot apply batch output"})
			continue
		}
		adder.AddAmount(idx, amount)
	}
	for _, instanceID := range batch.EntityInstanceIDs {
		if s.deps.Entities == nil {
			break
		}
		if batch.EntityExperience > 0 {
			s.deps.Entities.AddExperience(instanceID, batch.EntityExperience)
		}
		state, ok := s.deps.Entities.InstanceState(instanceID)
		if ok && state.Assigned && state.ReturnStep != NeverReturnStep {
			s.deps.Entities.Release(instanceID)
		}
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.BatchDelivered(id)
	}
	loggingtransforms.BatchDelivered(context.Background(), s.deps.Publisher, step, id,
		loggingtransforms.BatchDeliveredPayload{
			Outputs:  len(batch.Outputs),
			Entities: len(batch.EntityInstanceIDs),
			Late:     batch.CompleteAtStep < step,
		})
}
