package saves

import (
	"encoding/json"
	"fmt"

	"idle-engine/core/internal/entity"
	"idle-engine/core/internal/resources"
	"idle-engine/core/internal/transform"
)

// Envelope is the complete persisted engine state: the step the save
// was captured at plus every deterministic subsystem's serialized form.
// The PRD counters are included because they are part of the mission
// system's replay contract.
type Envelope struct {
	Step       uint64                          `json:"step"`
	Transforms []transform.SerializedTransform `json:"transforms"`
	Resources  []resources.Snapshot            `json:"resources,omitempty"`
	Entities   []entity.SerializedInstance     `json:"entities,omitempty"`
	PRD        map[string]int                  `json:"prd,omitempty"`
}

// Encode marshals an envelope for storage.
func Encode(envelope Envelope) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("saves: encode envelope: %w", err)
	}
	return data, nil
}

// Decode unmarshals a stored envelope.
func Decode(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("saves: decode envelope: %w", err)
	}
	return envelope, nil
}
