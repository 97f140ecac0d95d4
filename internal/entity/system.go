// Package entity tracks individually-identified entity instances, their
// stats and experience, and the mission assignment lifecycle the
// transform system drives.
package entity

import (
	"fmt"
	"sort"

	"idle-engine/core/internal/transform"
)

// Instance is one live entity. Stats are fixed at spawn; experience
// accrues from mission outcomes.
type Instance struct {
	ID         string
	EntityID   string
	Stats      map[string]float64
	Experience float64

	assignedTo string
	returnStep uint64
	assigned   bool
}

// System is the entity instance registry.
type System struct {
	instances map[string]*Instance
	byEntity  map[string][]string
}

// NewSystem returns an empty registry.
func NewSystem() *System {
	return &System{
		instances: make(map[string]*Instance),
		byEntity:  make(map[string][]string),
	}
}

// Spawn registers a new instance. Instance ids must be unique across
// all entities; the per-entity listing stays sorted so selection order
// is deterministic.
func (s *System) Spawn(entityID, instanceID string, stats map[string]float64) error {
	if s == nil {
		return fmt.Errorf("entity: system not initialised")
	}
	if entityID == "" || instanceID == "" {
		return fmt.Errorf("entity: entity and instance ids are required")
	}
	if _, exists := s.instances[instanceID]; exists {
		return fmt.Errorf("entity: duplicate instance %q", instanceID)
	}
	copied := make(map[string]float64, len(stats))
	for k, v := range stats {
		copied[k] = v
	}
	s.instances[instanceID] = &Instance{ID: instanceID, EntityID: entityID, Stats: copied}
	ids := append(s.byEntity[entityID], instanceID)
	sort.Strings(ids)
	s.byEntity[entityID] = ids
	return nil
}

// InstancesForEntity returns the instance ids for an entity in ascending
// id order.
func (s *System) InstancesForEntity(entityID string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.byEntity[entityID]...)
}

// InstanceState exposes the per-instance view the mission scheduler
// consumes.
func (s *System) InstanceState(instanceID string) (transform.EntityInstanceState, bool) {
	if s == nil {
		return transform.EntityInstanceState{}, false
	}
	inst, ok := s.instances[instanceID]
	if !ok {
		return transform.EntityInstanceState{}, false
	}
	stats := make(map[string]float64, len(inst.Stats))
	for k, v := range inst.Stats {
		stats[k] = v
	}
	state := transform.EntityInstanceState{
		Stats:      stats,
		Assigned:   inst.assigned,
		Experience: inst.Experience,
	}
	if inst.assigned {
		state.ReturnStep = inst.returnStep
	}
	return state, true
}

// Assign marks an instance as committed to a mission until returnStep.
// Already-assigned instances refuse.
func (s *System) Assign(instanceID, missionID string, returnStep uint64) bool {
	if s == nil {
		return false
	}
	inst, ok := s.instances[instanceID]
	if !ok || inst.assigned {
		return false
	}
	inst.assigned = true
	inst.assignedTo = missionID
	inst.returnStep = returnStep
	return true
}

// Release clears an instance's assignment so it can be reused.
func (s *System) Release(instanceID string) {
	if s == nil {
		return
	}
	inst, ok := s.instances[instanceID]
	if !ok {
		return
	}
	inst.assigned = false
	inst.assignedTo = ""
	inst.returnStep = 0
}

// AddExperience credits mission experience to an instance.
func (s *System) AddExperience(instanceID string, amount float64) {
	if s == nil || amount <= 0 {
		return
	}
	if inst, ok := s.instances[instanceID]; ok {
		inst.Experience += amount
	}
}

// SerializedInstance is the persisted shape of one instance.
type SerializedInstance struct {
	ID         string             `json:"id"`
	EntityID   string             `json:"entityId"`
	Stats      map[string]float64 `json:"stats,omitempty"`
	Experience float64            `json:"experience,omitempty"`
	AssignedTo string             `json:"assignedTo,omitempty"`
	ReturnStep uint64             `json:"returnStep,omitempty"`
}

// SerializeAll captures every instance in ascending id order.
func (s *System) SerializeAll() []SerializedInstance {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]SerializedInstance, 0, len(ids))
	for _, id := range ids {
		inst := s.instances[id]
		record := SerializedInstance{
			ID:         inst.ID,
			EntityID:   inst.EntityID,
			Experience: inst.Experience,
		}
		if len(inst.Stats) > 0 {
			stats := make(map[string]float64, len(inst.Stats))
			for k, v := range inst.Stats {
				stats[k] = v
			}
			record.Stats = stats
		}
		if inst.assigned {
			record.AssignedTo = inst.assignedTo
			record.ReturnStep = inst.returnStep
		}
		out = append(out, record)
	}
	return out
}

// RestoreAll replaces the registry contents from persisted records.
func (s *System) RestoreAll(records []SerializedInstance) {
	if s == nil {
		return
	}
	s.instances = make(map[string]*Instance, len(records))
	s.byEntity = make(map[string][]string)
	for _, record := range records {
		if record.ID == "" || record.EntityID == "" {
			continue
		}
		stats := make(map[string]float64, len(record.Stats))
		for k, v := range record.Stats {
			stats[k] = v
		}
		inst := &Instance{
			ID:         record.ID,
			EntityID:   record.EntityID,
			Stats:      stats,
			Experience: record.Experience,
		}
		if record.AssignedTo != "" {
			inst.assigned = true
			inst.assignedTo = record.AssignedTo
			inst.returnStep = record.ReturnStep
		}
		s.instances[record.ID] = inst
		s.byEntity[record.EntityID] = append(s.byEntity[record.EntityID], record.ID)
	}
	for entityID, ids := range s.byEntity {
		sort.Strings(ids)
		s.byEntity[entityID] = ids
	}
}

var _ transform.EntitySystem = (*System)(nil)
