package service

import "time"

// Task status values.
const (
	StatusOpen      = "needsAction"
	StatusCompleted = "completed"
)

// Task represents a single remote task or sub-item.
type Task struct {
	ID        string
	ProjectID string
	ParentID  string
	Title     string
	Status    string // StatusOpen or StatusCompleted
	Updated   time.Time
}

// Completed reports whether the task is done.
func (t Task) Completed() bool { return t.Status == StatusCompleted }

// Project represents a task list.
type Project struct {
	ID        string
	Title     string
	GroupID   string
	IsDefault bool
}

// ProjectGroup is a folder of projects.
type ProjectGroup struct {
	ID   string
	Name string
}

// TaskAttributes carries the mutable fields of a task.
type TaskAttributes struct {
	Title    string
	Status   string
	ParentID string
}

// StatusFor maps a checkbox state to a task status.
func StatusFor(checked bool) string {
	if checked {
		return StatusCompleted
	}
	return StatusOpen
}
