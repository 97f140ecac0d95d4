// Package events provides the engine's publish/subscribe bus. Dispatch is
// synchronous and ordered by subscription age so that replaying the same
// emission sequence always observes handlers in the same order.
package events

import (
	"sort"
	"sync"
)

// Handler is invoked for every emission of the subscribed event.
type Handler func()

// Subscription is the handle returned by On; Unsubscribe detaches the
// handler and is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// Bus is a synchronous event bus keyed by event id.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[uint64]Handler)}
}

type subscription struct {
	bus     *Bus
	eventID string
	id      uint64
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if set, ok := s.bus.handlers[s.eventID]; ok {
			delete(set, s.id)
			if len(set) == 0 {
				delete(s.bus.handlers, s.eventID)
			}
		}
	})
}

// On registers a handler for the named event.
func (b *Bus) On(eventID string, handler func()) Subscription {
	if b == nil || eventID == "" || handler == nil {
		return (*subscription)(nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	set, ok := b.handlers[eventID]
	if !ok {
		set = make(map[uint64]Handler)
		b.handlers[eventID] = set
	}
	set[id] = handler
	return &subscription{bus: b, eventID: eventID, id: id}
}

// Emit invokes every handler registered for the event, oldest
// subscription first. Handlers run outside the bus lock so they may
// subscribe or unsubscribe without deadlocking.
func (b *Bus) Emit(eventID string) {
	if b == nil || eventID == "" {
		return
	}
	b.mu.Lock()
	set := b.handlers[eventID]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ordered := make([]Handler, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, set[id])
	}
	b.mu.Unlock()

	for _, handler := range ordered {
		if handler != nil {
			handler()
		}
	}
}
