// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gtasksync/internal/service"
)

// DefaultProjectID is the ID of the project every FakeService starts with.
const DefaultProjectID = "@default"

// Method names accepted by FailNext and Calls.
const (
	MethodDefaultProject    = "DefaultProject"
	MethodListProjects      = "ListProjects"
	MethodResolveProject    = "ResolveProject"
	MethodListProjectGroups = "ListProjectGroups"
	MethodListTasks         = "ListTasksForProject"
	MethodCreateTask        = "CreateTask"
	MethodUpdateTask        = "UpdateTask"
	MethodDeleteTask        = "DeleteTask"
)

// FakeService is an in-memory implementation of service.Service for testing.
type FakeService struct {
	mu       sync.Mutex
	projects []service.Project
	groups   []service.ProjectGroup
	tasks    map[string][]service.Task // projectID -> tasks
	nextID   int
	failures map[string][]error
	calls    map[string]int

	// Now stamps Updated on created and updated tasks.
	Now func() time.Time

	// BeforeCall, if set, runs at the start of every method outside the
	// lock. Tests use it to block a pass mid-flight.
	BeforeCall func(method string)

	// Error injection for testing. These fail every call; FailNext
	// queues one-shot failures that take precedence.
	DefaultProjectErr    error
	ListProjectsErr      error
	ListProjectGroupsErr error
	ListTasksErr         map[string]error // projectID -> error
	CreateTaskErr        error
	UpdateTaskErr        error
	DeleteTaskErr        error
}

// NewFakeService creates a new FakeService with a default project.
func NewFakeService() *FakeService {
	return &FakeService{
		projects: []service.Project{
			{ID: DefaultProjectID, Title: "My Tasks", IsDefault: true},
		},
		tasks:        map[string][]service.Task{DefaultProjectID: nil},
		failures:     make(map[string][]error),
		calls:        make(map[string]int),
		ListTasksErr: make(map[string]error),
		Now:          time.Now,
	}
}

// AddProject adds a project to the fake service.
func (f *FakeService) AddProject(id, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, service.Project{ID: id, Title: title})
	if _, ok := f.tasks[id]; !ok {
		f.tasks[id] = nil
	}
}

// AddGroup adds a project group.
func (f *FakeService) AddGroup(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, service.ProjectGroup{ID: id, Name: name})
}

// AddTask adds an open task to a project.
func (f *FakeService) AddTask(projectID, taskID, title string) {
	f.PutTask(service.Task{
		ID:        taskID,
		ProjectID: projectID,
		Title:     title,
		Status:    service.StatusOpen,
		Updated:   f.Now(),
	})
}

// PutTask inserts or replaces a task as-is, Updated included.
func (f *FakeService) PutTask(t service.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks := f.tasks[t.ProjectID]
	for i := range tasks {
		if tasks[i].ID == t.ID {
			tasks[i] = t
			return
		}
	}
	f.tasks[t.ProjectID] = append(tasks, t)
}

// RemoveTask deletes a task without counting a call.
func (f *FakeService) RemoveTask(projectID, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(projectID, taskID)
}

// Task returns a stored task.
func (f *FakeService) Task(projectID, taskID string) (service.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks[projectID] {
		if t.ID == taskID {
			return t, true
		}
	}
	return service.Task{}, false
}

// Tasks returns a copy of a project's tasks.
func (f *FakeService) Tasks(projectID string) []service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.Task(nil), f.tasks[projectID]...)
}

// FailNext queues errors returned by the next calls to method, one per call.
func (f *FakeService) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

// Calls returns how many times method was invoked.
func (f *FakeService) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *FakeService) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// enter counts the call and returns a queued or fixed error. It locks f;
// callers must unlock when it returns nil.
func (f *FakeService) enter(method string, fixed error) error {
	if f.BeforeCall != nil {
		f.BeforeCall(method)
	}
	f.mu.Lock()
	f.calls[method]++
	if q := f.failures[method]; len(q) > 0 {
		f.failures[method] = q[1:]
		f.mu.Unlock()
		return q[0]
	}
	if fixed != nil {
		f.mu.Unlock()
		return fixed
	}
	return nil
}

func notFound(op string) error {
	return &service.RemoteError{Op: op, Kind: service.ErrNotFound}
}

// DefaultProject implements service.Service.
func (f *FakeService) DefaultProject(ctx context.Context) (service.Project, error) {
	if err := f.enter(MethodDefaultProject, f.DefaultProjectErr); err != nil {
		return service.Project{}, err
	}
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.IsDefault {
			return p, nil
		}
	}
	return service.Project{}, notFound("get default project")
}

// ListProjects implements service.Service.
func (f *FakeService) ListProjects(ctx context.Context) ([]service.Project, error) {
	if err := f.enter(MethodListProjects, f.ListProjectsErr); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	return append([]service.Project(nil), f.projects...), nil
}

// ResolveProject implements service.Service.
func (f *FakeService) ResolveProject(ctx context.Context, name string) (service.Project, error) {
	if err := f.enter(MethodResolveProject, nil); err != nil {
		return service.Project{}, err
	}
	projects := append([]service.Project(nil), f.projects...)
	f.mu.Unlock()
	return service.MatchProject(projects, name)
}

// ListProjectGroups implements service.Service.
func (f *FakeService) ListProjectGroups(ctx context.Context) ([]service.ProjectGroup, error) {
	if err := f.enter(MethodListProjectGroups, f.ListProjectGroupsErr); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	return append([]service.ProjectGroup(nil), f.groups...), nil
}

// ListTasksForProject implements service.Service.
func (f *FakeService) ListTasksForProject(ctx context.Context, projectID string) ([]service.Task, error) {
	f.mu.Lock()
	fixed := f.ListTasksErr[projectID]
	f.mu.Unlock()
	if err := f.enter(MethodListTasks, fixed); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()
	tasks, ok := f.tasks[projectID]
	if !ok {
		return nil, notFound("list tasks")
	}
	out := append([]service.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, projectID, title string, attrs service.TaskAttributes) (service.Task, error) {
	if err := f.enter(MethodCreateTask, f.CreateTaskErr); err != nil {
		return service.Task{}, err
	}
	defer f.mu.Unlock()
	if _, ok := f.tasks[projectID]; !ok {
		return service.Task{}, notFound("create task")
	}
	f.nextID++
	status := attrs.Status
	if status == "" {
		status = service.StatusOpen
	}
	t := service.Task{
		ID:        fmt.Sprintf("t%03d", f.nextID),
		ProjectID: projectID,
		ParentID:  attrs.ParentID,
		Title:     title,
		Status:    status,
		Updated:   f.Now(),
	}
	f.tasks[projectID] = append(f.tasks[projectID], t)
	return t, nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, projectID, taskID string, attrs service.TaskAttributes) (service.Task, error) {
	if err := f.enter(MethodUpdateTask, f.UpdateTaskErr); err != nil {
		return service.Task{}, err
	}
	defer f.mu.Unlock()
	tasks := f.tasks[projectID]
	for i := range tasks {
		if tasks[i].ID != taskID {
			continue
		}
		if attrs.Title != "" {
			tasks[i].Title = attrs.Title
		}
		if attrs.Status != "" {
			tasks[i].Status = attrs.Status
		}
		tasks[i].Updated = f.Now()
		return tasks[i], nil
	}
	return service.Task{}, notFound("update task")
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, projectID, taskID string) error {
	if err := f.enter(MethodDeleteTask, f.DeleteTaskErr); err != nil {
		return err
	}
	defer f.mu.Unlock()
	if !f.removeLocked(projectID, taskID) {
		return notFound("delete task")
	}
	return nil
}

func (f *FakeService) removeLocked(projectID, taskID string) bool {
	tasks := f.tasks[projectID]
	for i, t := range tasks {
		if t.ID == taskID {
			f.tasks[projectID] = append(tasks[:i], tasks[i+1:]...)
			return true
		}
	}
	return false
}
