package sim

import (
	"sync"
	"time"
)

// Frame carries the timing context for one simulation step. Step is the
// monotonic discrete time unit every step-indexed field in the engine is
// expressed in; Delta is the wall-clock time the step represents.
type Frame struct {
	Step  uint64
	Delta time.Duration
	Now   time.Time
}

// System is a simulation participant ticked once per step. Systems are
// ticked in registration order; that order is part of the engine's
// determinism contract (an automation system registered after the
// transform system is observed by it one tick late, and that is the
// documented behavior rather than something the runner papers over).
type System interface {
	ID() string
	Tick(Frame)
}

// Config tunes the fixed-timestep runner.
type Config struct {
	TickRate        int
	CatchupMaxTicks int
	StepDuration    time.Duration
}

// DefaultConfig returns the runner tuning used by the stock server.
func DefaultConfig() Config {
	return Config{
		TickRate:        10,
		CatchupMaxTicks: 4,
		StepDuration:    100 * time.Millisecond,
	}
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the current time from the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

// StepResult describes one completed step for observers.
type StepResult struct {
	Step     uint64
	Now      time.Time
	Delta    time.Duration
	Duration time.Duration
}

// Hooks lets the embedding server observe runner activity.
type Hooks struct {
	AfterStep func(StepResult)
}

// Runner drives an ordered set of systems through fixed-size steps. All
// state mutation happens inside Advance under the runner mutex; external
// callers that need to touch system state between steps use Locked.
type Runner struct {
	mu      sync.Mutex
	systems []System
	step    uint64
	config  Config
	clock   Clock
	hooks   Hooks
}

// NewRunner builds a runner over the given systems, ticked in the order
// supplied.
func NewRunner(cfg Config, clock Clock, hooks Hooks, systems ...System) *Runner {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultConfig().TickRate
	}
	if cfg.StepDuration <= 0 {
		cfg.StepDuration = DefaultConfig().StepDuration
	}
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	return &Runner{
		systems: append([]System(nil), systems...),
		config:  cfg,
		clock:   clock,
		hooks:   hooks,
	}
}

// Step reports the index of the last completed step.
func (r *Runner) Step() uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Locked runs fn with the runner mutex held, passing the current step.
// Command handlers use this to execute transforms between ticks without
// racing Advance.
func (r *Runner) Locked(fn func(step uint64)) {
	if r == nil || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.step)
}

// Advance executes exactly one step: it increments the step counter and
// ticks every system in registration order.
func (r *Runner) Advance(now time.Time, delta time.Duration) StepResult {
	if r == nil {
		return StepResult{}
	}
	start := r.clock.Now()
	r.mu.Lock()
	r.step++
	frame := Frame{Step: r.step, Delta: delta, Now: now}
	for _, system := range r.systems {
		system.Tick(frame)
	}
	r.mu.Unlock()

	result := StepResult{
		Step:     frame.Step,
		Now:      now,
		Delta:    delta,
		Duration: r.clock.Now().Sub(start),
	}
	if r.hooks.AfterStep != nil {
		r.hooks.AfterStep(result)
	}
	return result
}

// Run drives the fixed-timestep loop until the stop channel closes.
func (r *Runner) Run(stop <-chan struct{}) {
	if r == nil {
		return
	}
	tickRate := r.config.TickRate
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	last := r.clock.Now()
	budget := time.Second / time.Duration(tickRate)
	maxDelta := budget
	if r.config.CatchupMaxTicks > 1 {
		maxDelta = budget * time.Duration(r.config.CatchupMaxTicks)
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := r.clock.Now()
			delta := now.Sub(last)
			if delta <= 0 {
				delta = budget
			} else if delta > maxDelta {
				delta = maxDelta
			}
			last = now
			r.Advance(now, delta)
		}
	}
}
