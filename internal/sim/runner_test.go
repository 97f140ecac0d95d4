package sim

import (
	"testing"
	"time"
)

type recordingSystem struct {
	id    string
	steps *[]string
}

func (s recordingSystem) ID() string { return s.id }
func (s recordingSystem) Tick(frame Frame) {
	*s.steps = append(*s.steps, s.id)
}

func TestAdvanceTicksSystemsInRegistrationOrder(t *testing.T) {
	var order []string
	r := NewRunner(DefaultConfig(), nil, Hooks{},
		recordingSystem{id: "automation", steps: &order},
		recordingSystem{id: "transform", steps: &order},
	)

	r.Advance(time.Now(), 100*time.Millisecond)
	r.Advance(time.Now(), 100*time.Millisecond)

	want := []string{"automation", "transform", "automation", "transform"}
	if len(order) != len(want) {
		t.Fatalf("tick order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("tick order = %v, want %v", order, want)
		}
	}
}

type stepCapture struct {
	frames []Frame
}

func (s *stepCapture) ID() string       { return "capture" }
func (s *stepCapture) Tick(frame Frame) { s.frames = append(s.frames, frame) }

func TestAdvanceIncrementsStepMonotonically(t *testing.T) {
	capture := &stepCapture{}
	r := NewRunner(DefaultConfig(), nil, Hooks{}, capture)

	for i := 0; i < 3; i++ {
		r.Advance(time.Now(), 100*time.Millisecond)
	}

	for i, frame := range capture.frames {
		if frame.Step != uint64(i+1) {
			t.Fatalf("frame %d has step %d", i, frame.Step)
		}
	}
	if r.Step() != 3 {
		t.Fatalf("Step() = %d, want 3", r.Step())
	}
}

func TestLockedSeesCurrentStep(t *testing.T) {
	r := NewRunner(DefaultConfig(), nil, Hooks{})
	r.Advance(time.Now(), 100*time.Millisecond)
	r.Advance(time.Now(), 100*time.Millisecond)

	var seen uint64
	r.Locked(func(step uint64) { seen = step })
	if seen != 2 {
		t.Fatalf("Locked step = %d, want 2", seen)
	}
}

func TestAfterStepHookObservesResult(t *testing.T) {
	var results []StepResult
	r := NewRunner(DefaultConfig(), nil, Hooks{
		AfterStep: func(res StepResult) { results = append(results, res) },
	})

	r.Advance(time.Now(), 50*time.Millisecond)
	if len(results) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(results))
	}
	if results[0].Step != 1 || results[0].Delta != 50*time.Millisecond {
		t.Fatalf("hook result = %+v", results[0])
	}
}

func TestNilRunnerIsInert(t *testing.T) {
	var r *Runner
	r.Advance(time.Now(), time.Second)
	r.Locked(func(uint64) { t.Fatal("nil runner invoked fn") })
	if r.Step() != 0 {
		t.Fatal("nil runner has a step")
	}
}
