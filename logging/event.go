package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type SubjectKind string

const (
	SubjectKindUnknown    SubjectKind = "unknown"
	SubjectKindTransform  SubjectKind = "transform"
	SubjectKindResource   SubjectKind = "resource"
	SubjectKindEntity     SubjectKind = "entity"
	SubjectKindAutomation SubjectKind = "automation"
	SubjectKindSystem     SubjectKind = "system"
)

// Event is the unit every sink receives. Payload carries the typed
// per-domain struct declared next to the event constructor.
type Event struct {
	Type     EventType      `json:"type"`
	Step     uint64         `json:"step"`
	Time     time.Time      `json:"time"`
	Subject  SubjectRef     `json:"subject"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// SubjectRef identifies the engine object an event is about.
type SubjectRef struct {
	ID   string      `json:"id"`
	Kind SubjectKind `json:"kind"`
}

const (
	CategoryTransforms = "transforms"
	CategoryAutomation = "automation"
	CategorySystem     = "system"
)

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
