package client

import (
	"github.com/ganot/syncboard/internal/domain/project"
	"github.com/ganot/syncboard/internal/domain/task"
	"github.com/ganot/syncboard/internal/event"
)

// The client is the module's embeddable surface, but the entity and wire
// types live in internal packages an embedding module cannot import. These
// aliases re-export everything the client's signatures mention.

type (
	Project           = project.Project
	Task              = task.Task
	TaskConfiguration = task.Configuration
	TaskStatus        = task.Status

	Event      = event.Event
	Action     = event.Action
	EntityType = event.EntityType
)

const (
	ActionCreate = event.ActionCreate
	ActionUpdate = event.ActionUpdate
	ActionDelete = event.ActionDelete

	EntityProject = event.EntityProject
	EntityTask    = event.EntityTask

	StatusPending    = task.StatusPending
	StatusInProgress = task.StatusInProgress
	StatusCompleted  = task.StatusCompleted
)
