package task

import "time"

// Status is the workflow state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Configuration holds the adjustable details of a task.
type Configuration struct {
	Priority    string     `json:"priority"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Task is a unit of work owned by a single project. ProjectID identifies the
// owning project and never changes, though the project record itself may
// have diverged or been deleted.
type Task struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"projectId"`
	Title         string        `json:"title"`
	Status        Status        `json:"status"`
	Configuration Configuration `json:"configuration"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	LamportTs     int64         `json:"lamportTs"`
}

// Clone returns a copy safe to hand out to readers.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Configuration.DueDate != nil {
		due := *t.Configuration.DueDate
		cp.Configuration.DueDate = &due
	}
	return &cp
}
