package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ganot/syncboard/internal/domain/project"
	"github.com/ganot/syncboard/internal/domain/task"
	"github.com/ganot/syncboard/internal/event"
)

// InitialState is a bootstrap sequence of create-events plus the Lamport
// value the clock starts from after they are applied.
type InitialState struct {
	Events    []*event.Event
	LamportTs int64
}

// Seed applies a bootstrap sequence through the normal append path. With no
// connections registered yet the broadcasts are no-ops. The clock floor is
// raised to the bootstrap value even when the events themselves stamp lower.
func (s *Service) Seed(init InitialState) error {
	for _, ev := range init.Events {
		if err := s.AppendEvent(ev); err != nil {
			return fmt.Errorf("seeding initial state: %w", err)
		}
	}
	if init.LamportTs > 0 {
		s.clock.Observe(init.LamportTs - 1)
	}
	return nil
}

// DefaultInitialState returns the built-in bootstrap used when no explicit
// initial state is supplied: two projects and one task under the first,
// created at Lamport 1, 2, 3.
func DefaultInitialState() InitialState {
	now := time.Now().UTC()

	p1 := project.Project{
		ID:          "project-1",
		Name:        "Getting Started",
		Description: "A place to try things out",
		TaskIDs:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
		LamportTs:   1,
	}
	p2 := project.Project{
		ID:          "project-2",
		Name:        "Roadmap",
		Description: "Longer term plans",
		TaskIDs:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
		LamportTs:   2,
	}
	t1 := task.Task{
		ID:        "task-1",
		ProjectID: "project-1",
		Title:     "Invite your team",
		Status:    task.StatusPending,
		Configuration: task.Configuration{
			Priority: "medium",
		},
		CreatedAt: now,
		UpdatedAt: now,
		LamportTs: 3,
	}

	return InitialState{
		Events: []*event.Event{
			bootstrapEvent("bootstrap-1", 1, event.EntityProject, p1.ID, p1),
			bootstrapEvent("bootstrap-2", 2, event.EntityProject, p2.ID, p2),
			bootstrapEvent("bootstrap-3", 3, event.EntityTask, t1.ID, t1),
		},
		LamportTs: 4,
	}
}

func bootstrapEvent(id string, ts int64, entityType event.EntityType, entityID string, payload any) *event.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads above are static structs; this cannot fail.
		panic(err)
	}
	return &event.Event{
		ID:         id,
		LamportTs:  ts,
		Timestamp:  event.NowTimestamp(),
		Action:     event.ActionCreate,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	}
}
