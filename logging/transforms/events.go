// Package transforms declares the typed log events published by the
// transform system.
package transforms

import (
	"context"

	"idle-engine/core/logging"
)

const (
	// EventExecuted is emitted after a transform run fully commits.
	EventExecuted logging.EventType = "transforms.executed"
	// EventBlocked is emitted when a trigger-driven attempt fails a gate.
	EventBlocked logging.EventType = "transforms.blocked"
	// EventBatchScheduled is emitted when a batch or mission is scheduled.
	EventBatchScheduled logging.EventType = "transforms.batch_scheduled"
	// EventBatchDelivered is emitted when an outstanding completion lands.
	EventBatchDelivered logging.EventType = "transforms.batch_delivered"
	// EventMissionResolved is emitted when a mission outcome is rolled.
	EventMissionResolved logging.EventType = "transforms.mission_resolved"
	// EventUnlocked is emitted when a transform's unlock flag first flips.
	EventUnlocked logging.EventType = "transforms.unlocked"
)

// ExecutedPayload captures a committed run.
type ExecutedPayload struct {
	Mode string `json:"mode"`
	Runs int    `json:"runs,omitempty"`
}

// Executed publishes a committed transform run.
func Executed(ctx context.Context, pub logging.Publisher, step uint64, id string, payload ExecutedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventExecuted,
		Step:     step,
		Subject:  logging.SubjectRef{ID: id, Kind: logging.SubjectKindTransform},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTransforms,
		Payload:  payload,
	})
}

// BlockedPayload captures a gated trigger attempt.
type BlockedPayload struct {
	Code string `json:"code"`
}

// Blocked publishes a gated trigger-driven attempt.
func Blocked(ctx context.Context, pub logging.Publisher, step uint64, id string, payload BlockedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBlocked,
		Step:     step,
		Subject:  logging.SubjectRef{ID: id, Kind: logging.SubjectKindTransform},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryTransforms,
		Payload:  payload,
	})
}

// BatchScheduledPayload captures a scheduled completion.
type BatchScheduledPayload struct {
	CompleteAtStep uint64 `json:"completeAtStep"`
	Outstanding    int    `json:"outstanding"`
}

// BatchScheduled publishes a scheduled batch or mission completion.
func BatchScheduled(ctx context.Context, pub logging.Publisher, step uint64, id string, payload BatchScheduledPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBatchScheduled,
		Step:     step,
		Subject:  logging.SubjectRef{ID: id, Kind: logging.SubjectKindTransform},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTransforms,
		Payload:  payload,
	})
}

// BatchDeliveredPayload captures a delivered completion.
type BatchDeliveredPayload struct {
	Outputs  int  `json:"outputs"`
	Entities int  `json:"entities,omitempty"`
	Late     bool `json:"late,omitempty"`
}

// BatchDelivered publishes a delivered completion.
func BatchDelivered(ctx context.Context, pub logging.Publisher, step uint64, id string, payload BatchDeliveredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBatchDelivered,
		Step:     step,
		Subject:  logging.SubjectRef{ID: id, Kind: logging.SubjectKindTransform},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTransforms,
		Payload:  payload,
	})
}

// MissionResolvedPayload captures a rolled mission outcome.
type MissionResolvedPayload struct {
	Success     bool    `json:"success"`
	Probability float64 `json:"probability"`
	Entities    int     `json:"entities"`
}

// MissionResolved publishes a rolled mission outcome.
func MissionResolved(ctx context.Context, pub logging.Publisher, step uint64, id string, payload MissionResolvedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMissionResolved,
		Step:     step,
		Subject:  logging.SubjectRef{ID: id, Kind: logging.SubjectKindTransform},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTransforms,
		Payload:  payload,
	})
}

// Unlocked publishes a transform's first unlock transition.
func Unlocked(ctx context.Context, pub logging.Publisher, step uint64, id string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnlocked,
		Step:     step,
		Subject:  logging.SubjectRef{ID: id, Kind: logging.SubjectKindTransform},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTransforms,
	})
}
