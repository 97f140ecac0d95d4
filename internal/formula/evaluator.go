// Package formula evaluates content-authored numeric formulas with
// expr-lang. Programs are compiled once and cached by source; evaluation
// is deterministic given the same context, which is what the transform
// system's replay contract requires.
package formula

import (
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"idle-engine/core/internal/transform"
)

// Evaluator compiles and caches expr programs.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEvaluator returns an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate resolves a formula against the given context. The result is
// coerced to float64; non-numeric results are errors, not panics.
func (e *Evaluator) Evaluate(src string, ctx transform.FormulaContext) (float64, error) {
	if e == nil {
		return 0, fmt.Errorf("formula: evaluator not initialised")
	}
	if src == "" {
		return 0, fmt.Errorf("formula: empty source")
	}
	program, err := e.compile(src)
	if err != nil {
		return 0, err
	}
	env := map[string]any{
		"level": ctx.Level,
	}
	out, err := vm.Run(program, env)
	if err != nil {
		return 0, fmt.Errorf("formula %q: %w", src, err)
	}
	return coerceNumber(src, out)
}

func (e *Evaluator) compile(src string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}
	compiled, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", src, err)
	}
	e.mu.Lock()
	e.programs[src] = compiled
	e.mu.Unlock()
	return compiled, nil
}

func coerceNumber(src string, out any) (float64, error) {
	switch v := out.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		// Conditions occasionally leak into numeric slots in authored
		// content; treat them as 0/1 rather than failing the run.
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return math.NaN(), fmt.Errorf("formula %q: result %T is not numeric", src, out)
	}
}
