package transform

// ResolvedAmount is a fully evaluated output: resource id plus the exact
// amount to grant. Resource indexes are resolved at delivery time so a
// save/restore across a content reindex still lands on the right
// resource.
type ResolvedAmount struct {
	Resource string
	Amount   float64
}

// Batch is one outstanding multi-step completion. Mission batches carry
// the outcome already rolled at scheduling time: Outputs holds the
// chosen outcome's resolved amounts so replay after restore is exact.
type Batch struct {
	CompleteAtStep    uint64
	Outputs           []ResolvedAmount
	EntityInstanceIDs []string
	EntityExperience  float64
}

// State is the mutable per-transform bookkeeping. One State exists per
// definition for the lifetime of the system; RestoreState rewrites them
// in place.
type State struct {
	// Unlocked is monotonic: once true it never reverts, even if the
	// unlock condition later evaluates false.
	Unlocked bool
	// Visible is recomputed every tick and does not gate execution.
	Visible bool
	// CooldownExpiresStep is the first step at which the transform may
	// fire again; zero means it has never fired.
	CooldownExpiresStep uint64
	// RunsThisTick counts committed runs for the current step. It resets
	// on step-identity change, not per Tick call.
	RunsThisTick int
	// Batches holds outstanding completions in FIFO scheduling order,
	// which is also same-step delivery order.
	Batches []Batch

	// retainedEvent marks an event trigger that fired but was blocked;
	// it is re-attempted every tick until it succeeds.
	retainedEvent bool
	lastStep      uint64
	stepSeen      bool
}

// ensureStep resets the per-step run counter when the step identity
// changes. A runtime may tick the same step several times across its
// command and system phases; only a genuine step transition resets.
func (st *State) ensureStep(step uint64) {
	if st == nil {
		return
	}
	if st.stepSeen && st.lastStep == step {
		return
	}
	st.lastStep = step
	st.stepSeen = true
	st.RunsThisTick = 0
}

// clone returns a deep copy safe to hand outside the system.
func (st *State) clone() State {
	if st == nil {
		return State{}
	}
	copied := *st
	if len(st.Batches) > 0 {
		copied.Batches = make([]Batch, len(st.Batches))
		for i, batch := range st.Batches {
			copied.Batches[i] = batch.clone()
		}
	} else {
		copied.Batches = nil
	}
	return copied
}

func (b Batch) clone() Batch {
	copied := b
	if len(b.Outputs) > 0 {
		copied.Outputs = append([]ResolvedAmount(nil), b.Outputs...)
	}
	if len(b.EntityInstanceIDs) > 0 {
		copied.EntityInstanceIDs = append([]string(nil), b.EntityInstanceIDs...)
	}
	return copied
}

// Snapshot is the broadcast-friendly view of one transform's state.
type Snapshot struct {
	ID                  string `json:"id"`
	Unlocked            bool   `json:"unlocked"`
	Visible             bool   `json:"visible"`
	CooldownExpiresStep uint64 `json:"cooldownExpiresStep"`
	RunsThisTick        int    `json:"runsThisTick"`
	OutstandingBatches  int    `json:"outstandingBatches"`
}
