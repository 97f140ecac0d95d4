package events

import "testing"

func TestEmitInvokesHandlersInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.On("tick", func() { order = append(order, "first") })
	bus.On("tick", func() { order = append(order, "second") })
	bus.On("other", func() { order = append(order, "unrelated") })

	bus.Emit("tick")

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("dispatch order = %v", order)
	}
}

func TestUnsubscribeDetachesHandler(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.On("tick", func() { calls++ })

	bus.Emit("tick")
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	bus.Emit("tick")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestHandlerMaySubscribeDuringEmit(t *testing.T) {
	bus := NewBus()
	lateCalls := 0
	bus.On("tick", func() {
		bus.On("tick", func() { lateCalls++ })
	})

	bus.Emit("tick") // must not deadlock; new handler not invoked yet
	if lateCalls != 0 {
		t.Fatalf("handler registered mid-emit was invoked in the same emit")
	}
	bus.Emit("tick")
	if lateCalls != 1 {
		t.Fatalf("lateCalls = %d, want 1", lateCalls)
	}
}

func TestEmitUnknownEventIsNoop(t *testing.T) {
	bus := NewBus()
	bus.Emit("never-registered") // must not panic
}
