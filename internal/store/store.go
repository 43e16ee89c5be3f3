// Package store holds the converged current state of projects and tasks.
// The Reconciler applies events with a last-writer-wins merge so replaying
// the same event set in any order reaches the same final state.
package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ganot/syncboard/internal/domain/project"
	"github.com/ganot/syncboard/internal/domain/task"
	"github.com/ganot/syncboard/internal/event"
)

// Origin says where an event came from. It selects between the two apply
// modes of the Reconciler, which have different correctness semantics:
// local events apply unconditionally, remote events go through the LWW
// compare-and-swap.
type Origin int

const (
	// OriginRemote marks an event received from the network or replayed
	// from the log. Applied only if it wins the LWW comparison.
	OriginRemote Origin = iota
	// OriginLocal marks an optimistic update authored by this peer before
	// server confirmation. Local intent always wins in the peer's own
	// projection.
	OriginLocal
)

// Result reports what the Reconciler did with an event. Inapplicable input
// is never an error, only an observable no-op.
type Result int

const (
	// Applied means the store now holds the event's snapshot.
	Applied Result = iota
	// SkippedStale means a remote event lost the LWW comparison.
	SkippedStale
	// SkippedMissingParent means a task event referenced an absent project.
	SkippedMissingParent
	// SkippedMissingTarget means a delete had nothing to remove.
	SkippedMissingTarget
	// SkippedBadPayload means the event's data did not decode as the
	// target entity.
	SkippedBadPayload
	// SkippedUnknown means the action or entity type is not recognized.
	SkippedUnknown
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case SkippedStale:
		return "skipped_stale"
	case SkippedMissingParent:
		return "skipped_missing_parent"
	case SkippedMissingTarget:
		return "skipped_missing_target"
	case SkippedBadPayload:
		return "skipped_bad_payload"
	case SkippedUnknown:
		return "skipped_unknown"
	}
	return "unknown"
}

// Store is the materialized projection of the event log: two independent
// maps keyed by entity id. It is mutated only through Apply and may be read
// concurrently.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*project.Project
	tasks    map[string]*task.Task

	// Last-writer event ids, kept per entity for the deterministic
	// equal-timestamp tie-break. Not part of the entity snapshots.
	projectWriters map[string]string
	taskWriters    map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		projects:       make(map[string]*project.Project),
		tasks:          make(map[string]*task.Task),
		projectWriters: make(map[string]string),
		taskWriters:    make(map[string]string),
	}
}

// Apply reconciles one event into the store. It never fails: events that
// cannot or should not change state return a Skipped result and leave the
// store untouched.
func (s *Store) Apply(ev *event.Event, origin Origin) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.EntityType {
	case event.EntityProject:
		return s.applyProject(ev, origin)
	case event.EntityTask:
		return s.applyTask(ev, origin)
	}
	return SkippedUnknown
}

// wins is the LWW rule for remote events: higher Lamport timestamp wins;
// on an exact tie, the lexicographically larger event id wins. The id
// comparison carries no semantic priority, it only forces every replica to
// the same choice.
func wins(incomingTs int64, incomingID string, existingTs int64, existingWriter string) bool {
	if incomingTs != existingTs {
		return incomingTs > existingTs
	}
	return incomingID > existingWriter
}

func (s *Store) applyProject(ev *event.Event, origin Origin) Result {
	switch ev.Action {
	case event.ActionCreate, event.ActionUpdate:
		return s.upsertProject(ev, origin)
	case event.ActionDelete:
		return s.deleteProject(ev, origin)
	}
	return SkippedUnknown
}

func (s *Store) upsertProject(ev *event.Event, origin Origin) Result {
	var incoming project.Project
	if err := json.Unmarshal(ev.Data, &incoming); err != nil {
		return SkippedBadPayload
	}

	existing := s.projects[ev.EntityID]
	if origin == OriginRemote && existing != nil &&
		!wins(ev.LamportTs, ev.ID, existing.LamportTs, s.projectWriters[ev.EntityID]) {
		return SkippedStale
	}

	incoming.ID = ev.EntityID
	incoming.LamportTs = ev.LamportTs
	if existing != nil {
		// Membership is bookkeeping owned by task create/delete, not by
		// project snapshots; keep the stored list.
		incoming.TaskIDs = existing.TaskIDs
	} else if incoming.TaskIDs == nil {
		incoming.TaskIDs = []string{}
	}

	s.projects[ev.EntityID] = &incoming
	s.projectWriters[ev.EntityID] = ev.ID
	return Applied
}

func (s *Store) deleteProject(ev *event.Event, origin Origin) Result {
	existing := s.projects[ev.EntityID]
	if existing == nil {
		return SkippedMissingTarget
	}
	if origin == OriginRemote &&
		!wins(ev.LamportTs, ev.ID, existing.LamportTs, s.projectWriters[ev.EntityID]) {
		return SkippedStale
	}

	// Non-cascading: the project's tasks stay in the task map, orphaned,
	// unless separately deleted.
	delete(s.projects, ev.EntityID)
	delete(s.projectWriters, ev.EntityID)
	return Applied
}

func (s *Store) applyTask(ev *event.Event, origin Origin) Result {
	switch ev.Action {
	case event.ActionCreate, event.ActionUpdate:
		return s.upsertTask(ev, origin)
	case event.ActionDelete:
		return s.deleteTask(ev, origin)
	}
	return SkippedUnknown
}

func (s *Store) upsertTask(ev *event.Event, origin Origin) Result {
	var incoming task.Task
	if err := json.Unmarshal(ev.Data, &incoming); err != nil {
		return SkippedBadPayload
	}

	existing := s.tasks[ev.EntityID]
	projectID := incoming.ProjectID
	if projectID == "" && existing != nil {
		projectID = existing.ProjectID
	}
	parent := s.projects[projectID]
	if parent == nil {
		// Accepted into the log by the caller, but produces no state change.
		return SkippedMissingParent
	}

	if origin == OriginRemote && existing != nil &&
		!wins(ev.LamportTs, ev.ID, existing.LamportTs, s.taskWriters[ev.EntityID]) {
		return SkippedStale
	}

	incoming.ID = ev.EntityID
	incoming.ProjectID = projectID
	incoming.LamportTs = ev.LamportTs

	s.tasks[ev.EntityID] = &incoming
	s.taskWriters[ev.EntityID] = ev.ID

	// Membership bookkeeping: keep the parent's TaskIDs in lock-step with
	// the task map. Bumps the parent's UpdatedAt but not its LamportTs.
	if !parent.HasTask(ev.EntityID) {
		parent.AddTask(ev.EntityID)
		parent.UpdatedAt = time.Now().UTC()
	}
	return Applied
}

func (s *Store) deleteTask(ev *event.Event, origin Origin) Result {
	existing := s.tasks[ev.EntityID]
	if existing == nil {
		if s.projects[taskProjectID(ev)] == nil {
			return SkippedMissingParent
		}
		return SkippedMissingTarget
	}

	if origin == OriginRemote &&
		!wins(ev.LamportTs, ev.ID, existing.LamportTs, s.taskWriters[ev.EntityID]) {
		return SkippedStale
	}

	delete(s.tasks, ev.EntityID)
	delete(s.taskWriters, ev.EntityID)

	// The parent may already be gone (orphaned task): the delete still
	// removes the task so that replicas converge regardless of whether the
	// project delete arrived first.
	if parent := s.projects[existing.ProjectID]; parent != nil {
		parent.RemoveTask(ev.EntityID)
		parent.UpdatedAt = time.Now().UTC()
	}
	return Applied
}

func taskProjectID(ev *event.Event) string {
	var incoming task.Task
	if err := json.Unmarshal(ev.Data, &incoming); err != nil {
		return ""
	}
	return incoming.ProjectID
}

// GetProject returns a copy of the project, or nil if absent.
func (s *Store) GetProject(id string) *project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	return p.Clone()
}

// GetTask returns a copy of the task, or nil if absent.
func (s *Store) GetTask(id string) *task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// Projects returns copies of all projects ordered by id.
func (s *Store) Projects() []*project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tasks returns copies of all tasks ordered by id.
func (s *Store) Tasks() []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of projects and tasks, for diagnostics.
func (s *Store) Counts() (projects, tasks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects), len(s.tasks)
}
