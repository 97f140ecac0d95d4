package transform

// SerializedTransform is the persisted shape of one transform's state.
// Tick-local fields (visibility, the run counter, retained triggers) are
// deliberately omitted; they are reconstructed on the first tick after a
// restore.
type SerializedTransform struct {
	ID                  string            `json:"id"`
	Unlocked            bool              `json:"unlocked"`
	CooldownExpiresStep uint64            `json:"cooldownExpiresStep"`
	Batches             []SerializedBatch `json:"batches,omitempty"`
}

// SerializedBatch is the persisted shape of one outstanding completion.
type SerializedBatch struct {
	CompleteAtStep    uint64             `json:"completeAtStep"`
	Outputs           []SerializedAmount `json:"outputs,omitempty"`
	EntityInstanceIDs []string           `json:"entityInstanceIds,omitempty"`
	EntityExperience  float64            `json:"entityExperience,omitempty"`
}

// SerializedAmount is one resolved output amount.
type SerializedAmount struct {
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
}

// Rebase shifts step-valued fields across a save/restore gap so elapsed
// real time between save and load is preserved in step units.
type Rebase struct {
	SavedStep   uint64
	CurrentStep uint64
}

// SerializeState converts live state to the persisted representation, in
// iteration order. Non-finite batch amounts are clamped to zero; NaN or
// Infinity must never be persisted.
func (s *System) SerializeState() []SerializedTransform {
	if s == nil {
		return nil
	}
	out := make([]SerializedTransform, 0, len(s.order))
	for _, id := range s.order {
		st := s.states[id]
		record := SerializedTransform{
			ID:                  id,
			Unlocked:            st.Unlocked,
			CooldownExpiresStep: st.CooldownExpiresStep,
		}
		for _, batch := range st.Batches {
			serialized := SerializedBatch{
				CompleteAtStep:    batch.CompleteAtStep,
				EntityExperience:  clampFinite(batch.EntityExperience),
				EntityInstanceIDs: append([]string(nil), batch.EntityInstanceIDs...),
			}
			for _, outAmount := range batch.Outputs {
				serialized.Outputs = append(serialized.Outputs, SerializedAmount{
					Resource: outAmount.Resource,
					Amount:   clampFinite(outAmount.Amount),
				})
			}
			record.Batches = append(record.Batches, serialized)
		}
		out = append(out, record)
	}
	return out
}

// RestoreState replaces all live state from the persisted records. Every
// transform is first reset to its fresh default; records for unknown
// transforms are ignored and transforms missing from the records keep
// defaults, so content additions and removals across saves both load
// cleanly. When rebase markers are supplied, every nonzero step-valued
// field shifts by (CurrentStep - SavedStep); a zero cooldown marker
// means "never fired" and stays zero.
func (s *System) RestoreState(records []SerializedTransform, rebase *Rebase) {
	if s == nil {
		return
	}
	var delta int64
	if rebase != nil {
		delta = int64(rebase.CurrentStep) - int64(rebase.SavedStep)
	}

	for _, id := range s.order {
		def := s.defs[id]
		*s.states[id] = State{
			Unlocked: def.UnlockCondition == "",
			Visible:  def.VisibilityCondition == "",
		}
	}

	for _, record := range records {
		st, ok := s.states[record.ID]
		if !ok {
			continue
		}
		if record.Unlocked {
			st.Unlocked = true
		}
		if record.CooldownExpiresStep != 0 {
			st.CooldownExpiresStep = shiftStep(record.CooldownExpiresStep, delta)
		}
		for _, serialized := range record.Batches {
			batch := Batch{
				CompleteAtStep:    shiftStep(serialized.CompleteAtStep, delta),
				EntityExperience:  clampFinite(serialized.EntityExperience),
				EntityInstanceIDs: append([]string(nil), serialized.EntityInstanceIDs...),
			}
			for _, outAmount := range serialized.Outputs {
				batch.Outputs = append(batch.Outputs, ResolvedAmount{
					Resource: outAmount.Resource,
					Amount:   clampFinite(outAmount.Amount),
				})
			}
			st.Batches = append(st.Batches, batch)
		}
	}
}

func shiftStep(step uint64, delta int64) uint64 {
	if delta >= 0 {
		return step + uint64(delta)
	}
	back := uint64(-delta)
	if back >= step {
		return 0
	}
	return step - back
}

func clampFinite(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}
