package project

import "time"

// Project is a container of tasks. TaskIDs tracks child membership only;
// tasks themselves are stored independently in the task map.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TaskIDs     []string  `json:"taskIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LamportTs   int64     `json:"lamportTs"`
}

// Clone returns a deep copy safe to hand out to readers.
func (p *Project) Clone() *Project {
	cp := *p
	cp.TaskIDs = append([]string(nil), p.TaskIDs...)
	return &cp
}

// HasTask reports whether the task id is in the membership list.
func (p *Project) HasTask(taskID string) bool {
	for _, id := range p.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// AddTask appends the task id to the membership list if absent. The list
// never holds duplicates.
func (p *Project) AddTask(taskID string) {
	if !p.HasTask(taskID) {
		p.TaskIDs = append(p.TaskIDs, taskID)
	}
}

// RemoveTask removes the task id from the membership list if present.
func (p *Project) RemoveTask(taskID string) {
	for i, id := range p.TaskIDs {
		if id == taskID {
			p.TaskIDs = append(p.TaskIDs[:i], p.TaskIDs[i+1:]...)
			return
		}
	}
}
