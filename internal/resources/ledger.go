// Package resources implements the engine's indexed resource ledger:
// ordered registration, amount queries by index, atomic single-resource
// spend, and capped accrual.
package resources

import (
	"fmt"
	"math"
)

// Definition declares one resource. Cap zero means uncapped.
type Definition struct {
	ID      string
	Initial float64
	Cap     float64
}

// Ledger is the shared resource state. It is not internally locked; the
// simulation is single-threaded and the embedding server serialises
// access through the runner mutex.
type Ledger struct {
	ids     []string
	index   map[string]int
	amounts []float64
	caps    []float64
}

// NewLedger registers resources in declaration order; the order fixes
// their indexes for the lifetime of the ledger.
func NewLedger(defs []Definition) (*Ledger, error) {
	l := &Ledger{index: make(map[string]int, len(defs))}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("resources: definition with empty id")
		}
		if _, exists := l.index[def.ID]; exists {
			return nil, fmt.Errorf("resources: duplicate resource %q", def.ID)
		}
		l.index[def.ID] = len(l.ids)
		l.ids = append(l.ids, def.ID)
		l.amounts = append(l.amounts, def.Initial)
		l.caps = append(l.caps, def.Cap)
	}
	return l, nil
}

// GetResourceIndex returns the index for a resource id, or -1.
func (l *Ledger) GetResourceIndex(id string) int {
	if l == nil {
		return -1
	}
	idx, ok := l.index[id]
	if !ok {
		return -1
	}
	return idx
}

// GetAmount returns the current amount at an index; out-of-range
// indexes read as zero.
func (l *Ledger) GetAmount(index int) float64 {
	if l == nil || index < 0 || index >= len(l.amounts) {
		return 0
	}
	return l.amounts[index]
}

// SpendAmount atomically deducts amount when the full amount is
// available. Negative or non-finite amounts are rejected.
func (l *Ledger) SpendAmount(index int, amount float64) bool {
	if l == nil || index < 0 || index >= len(l.amounts) {
		return false
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	if l.amounts[index] < amount {
		return false
	}
	l.amounts[index] -= amount
	return true
}

// AddAmount credits amount, clamping at the resource cap when one is
// configured, and returns the new balance.
func (l *Ledger) AddAmount(index int, amount float64) float64 {
	if l == nil || index < 0 || index >= len(l.amounts) {
		return 0
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return l.amounts[index]
	}
	next := l.amounts[index] + amount
	if limit := l.caps[index]; limit > 0 && next > limit {
		next = limit
	}
	if next < 0 {
		next = 0
	}
	l.amounts[index] = next
	return next
}

// SetAmount overwrites a balance directly; save restoration uses it.
func (l *Ledger) SetAmount(index int, amount float64) {
	if l == nil || index < 0 || index >= len(l.amounts) {
		return
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	l.amounts[index] = amount
}

// IDs returns the resource ids in index order.
func (l *Ledger) IDs() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.ids...)
}

// Snapshot is one resource's broadcast view.
type Snapshot struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

// SnapshotAll copies every balance in index order.
func (l *Ledger) SnapshotAll() []Snapshot {
	if l == nil {
		return nil
	}
	out := make([]Snapshot, 0, len(l.ids))
	for i, id := range l.ids {
		out = append(out, Snapshot{ID: id, Amount: l.amounts[i]})
	}
	return out
}

// RestoreAll overwrites balances from a snapshot list; unknown resources
// are ignored.
func (l *Ledger) RestoreAll(snapshots []Snapshot) {
	if l == nil {
		return
	}
	for _, snap := range snapshots {
		idx := l.GetResourceIndex(snap.ID)
		if idx < 0 {
			continue
		}
		l.SetAmount(idx, snap.Amount)
	}
}
