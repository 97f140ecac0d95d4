// Package condition evaluates boolean condition expressions with
// expr-lang. Expressions read game state through accessor functions
// (resource, generator, upgrades) backed by the caller's
// ConditionContext.
package condition

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"idle-engine/core/internal/transform"
)

// Evaluator compiles and caches expr programs for condition expressions.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEvaluator returns an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate resolves a condition expression against the context. Missing
// expressions evaluate false; non-boolean results are errors.
func (e *Evaluator) Evaluate(src string, ctx transform.ConditionContext) (bool, error) {
	if e == nil {
		return false, fmt.Errorf("condition: evaluator not initialised")
	}
	if src == "" {
		return false, fmt.Errorf("condition: empty expression")
	}
	if ctx == nil {
		return false, fmt.Errorf("condition: no context supplied")
	}
	program, err := e.compile(src)
	if err != nil {
		return false, err
	}
	env := map[string]any{
		"resource":  func(id string) float64 { return ctx.ResourceAmount(id) },
		"generator": func(id string) int { return ctx.GeneratorLevel(id) },
		"upgrades":  func(id string) int { return ctx.UpgradePurchases(id) },
	}
	out, err := vm.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", src, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: result %T is not a boolean", src, out)
	}
	return result, nil
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
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	e.mu.Lock()
	e.programs[src] = compiled
	e.mu.Unlock()
	return compiled, nil
}
