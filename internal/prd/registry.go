// Package prd implements the pseudo-random-distribution registry used to
// smooth mission success streaks. Each key's effective probability ramps
// with its failure streak and resets on success, reducing variance while
// preserving the long-run expected rate. The captured failure counters
// are part of the deterministic replay contract.
package prd

import "fmt"

// Registry accumulates per-key failure streaks.
type Registry struct {
	rng    func() float64
	streak map[string]int
}

// NewRegistry builds a registry over the supplied RNG. The RNG must be
// the engine's seeded deterministic source; prd never falls back to a
// global one.
func NewRegistry(rng func() float64) (*Registry, error) {
	if rng == nil {
		return nil, fmt.Errorf("prd: rng is required")
	}
	return &Registry{rng: rng, streak: make(map[string]int)}, nil
}

// Next rolls an outcome for the key at the nominal probability. The
// effective chance is probability * (failures + 1), clamped to 1, so a
// long miss streak forces a success without changing the long-run rate
// much for mid-range probabilities.
func (r *Registry) Next(key string, probability float64) bool {
	if r == nil {
		return false
	}
	if probability >= 1 {
		r.streak[key] = 0
		return true
	}
	if probability <= 0 {
		return false
	}
	effective := probability * float64(r.streak[key]+1)
	if effective > 1 {
		effective = 1
	}
	if r.rng() < effective {
		r.streak[key] = 0
		return true
	}
	r.streak[key]++
	return false
}

// CaptureState copies the per-key failure counters.
func (r *Registry) CaptureState() map[string]int {
	if r == nil {
		return nil
	}
	out := make(map[string]int, len(r.streak))
	for k, v := range r.streak {
		out[k] = v
	}
	return out
}

// RestoreState replaces the per-key failure counters.
func (r *Registry) RestoreState(state map[string]int) {
	if r == nil {
		return
	}
	r.streak = make(map[string]int, len(state))
	for k, v := range state {
		if v < 0 {
			v = 0
		}
		r.streak[k] = v
	}
}
