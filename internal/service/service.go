// Package service defines the backend-agnostic interface for task operations.
package service

import "context"

// Service defines the interface for remote task operations.
// All Google Tasks API calls go through this interface; the sync engine
// never imports the Google SDK directly.
//
// Tasks are addressed through their project because the remote API scopes
// every task to its list.
type Service interface {
	// DefaultProject returns the user's default project.
	DefaultProject(ctx context.Context) (Project, error)

	// ListProjects returns all projects in API order.
	ListProjects(ctx context.Context) ([]Project, error)

	// ResolveProject finds a project by name (case-insensitive, trimmed).
	// Returns error if not found or ambiguous.
	ResolveProject(ctx context.Context, name string) (Project, error)

	// ListProjectGroups returns the folders projects are grouped into.
	ListProjectGroups(ctx context.Context) ([]ProjectGroup, error)

	// ListTasksForProject returns every task of a project, completed ones
	// and sub-items included.
	ListTasksForProject(ctx context.Context, projectID string) ([]Task, error)

	// CreateTask creates a task. attrs.ParentID makes it a sub-item.
	CreateTask(ctx context.Context, projectID, title string, attrs TaskAttributes) (Task, error)

	// UpdateTask replaces the title and status of a task.
	UpdateTask(ctx context.Context, projectID, taskID string, attrs TaskAttributes) (Task, error)

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, projectID, taskID string) error
}
