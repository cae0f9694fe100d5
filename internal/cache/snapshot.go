package cache

import (
	"slices"
	"time"
)

// CurrentVersion is stamped on every snapshot written by this build.
const CurrentVersion = "1.2.0"

// Project is a remote task container.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"groupId,omitempty"`
}

// ProjectGroup is a folder of projects.
type ProjectGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task is the last known remote state of a task or sub-item.
type Task struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	ParentID     string    `json:"parentId,omitempty"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	LastModified time.Time `json:"lastModified"`
	ChildItemIDs []string  `json:"childItemIds,omitempty"`
}

// TaskRef links a task in a document to the items written below it.
type TaskRef struct {
	TaskID    string   `json:"taskId"`
	TaskItems []string `json:"taskItems"`
}

// DocumentMeta records which tasks live in one document.
type DocumentMeta struct {
	Tasks            []TaskRef `json:"tasks"`
	TaskCount        int       `json:"taskCount"`
	DefaultProjectID string    `json:"defaultProjectId,omitempty"`
}

// TaskIDs returns the set of task identifiers in the document.
func (d DocumentMeta) TaskIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(d.Tasks))
	for _, t := range d.Tasks {
		ids[t.TaskID] = struct{}{}
	}
	return ids
}

// PendingCreate is a remote entity whose identifier has not been written
// back into its document yet.
type PendingCreate struct {
	LocalID   string    `json:"localId"`
	Path      string    `json:"path"`
	LineText  string    `json:"lineText"`
	RemoteID  string    `json:"remoteId"`
	ProjectID string    `json:"projectId"`
	ParentID  string    `json:"parentId,omitempty"`
	Item      bool      `json:"item,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings is sync state that travels with the cache.
type Settings struct {
	DefaultProjectID string    `json:"defaultProjectId,omitempty"`
	LastSyncAt       time.Time `json:"lastSyncAt,omitempty"`
}

// Snapshot is the full persisted cache.
type Snapshot struct {
	Version       string                  `json:"version"`
	Projects      []Project               `json:"projects"`
	ProjectGroups []ProjectGroup          `json:"projectGroups"`
	Tasks         []Task                  `json:"tasks"`
	Documents     map[string]DocumentMeta `json:"fileMetadata"`
	Pending       []PendingCreate         `json:"pendingCreates,omitempty"`
	Settings      Settings                `json:"settings"`
}

// NewSnapshot returns an empty snapshot at the current version.
func NewSnapshot() Snapshot {
	return Snapshot{Version: CurrentVersion, Documents: make(map[string]DocumentMeta)}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		Version:       s.Version,
		Projects:      slices.Clone(s.Projects),
		ProjectGroups: slices.Clone(s.ProjectGroups),
		Tasks:         make([]Task, len(s.Tasks)),
		Documents:     make(map[string]DocumentMeta, len(s.Documents)),
		Pending:       slices.Clone(s.Pending),
		Settings:      s.Settings,
	}
	for i, t := range s.Tasks {
		t.ChildItemIDs = slices.Clone(t.ChildItemIDs)
		c.Tasks[i] = t
	}
	for path, d := range s.Documents {
		c.Documents[path] = cloneMeta(d)
	}
	return c
}

func cloneMeta(d DocumentMeta) DocumentMeta {
	refs := make([]TaskRef, len(d.Tasks))
	for i, r := range d.Tasks {
		refs[i] = TaskRef{TaskID: r.TaskID, TaskItems: slices.Clone(r.TaskItems)}
	}
	d.Tasks = refs
	return d
}

// Task returns the cached task with id.
func (s Snapshot) Task(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// PutTask inserts or replaces a task.
func (s *Snapshot) PutTask(t Task) {
	for i := range s.Tasks {
		if s.Tasks[i].ID == t.ID {
			s.Tasks[i] = t
			return
		}
	}
	s.Tasks = append(s.Tasks, t)
}

// RemoveTask drops a task and every reference to it.
func (s *Snapshot) RemoveTask(id string) {
	s.Tasks = slices.DeleteFunc(s.Tasks, func(t Task) bool { return t.ID == id })
	for i := range s.Tasks {
		s.Tasks[i].ChildItemIDs = slices.DeleteFunc(s.Tasks[i].ChildItemIDs, func(c string) bool { return c == id })
	}
	for path, d := range s.Documents {
		d.Tasks = slices.DeleteFunc(d.Tasks, func(r TaskRef) bool { return r.TaskID == id })
		for i := range d.Tasks {
			d.Tasks[i].TaskItems = slices.DeleteFunc(d.Tasks[i].TaskItems, func(c string) bool { return c == id })
		}
		d.TaskCount = len(d.Tasks)
		s.Documents[path] = d
	}
}

// Project returns the cached project with id.
func (s Snapshot) Project(id string) (Project, bool) {
	for _, p := range s.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// Document returns the metadata for path.
func (s Snapshot) Document(path string) (DocumentMeta, bool) {
	d, ok := s.Documents[path]
	return d, ok
}

// PutDocument stores metadata for path.
func (s *Snapshot) PutDocument(path string, d DocumentMeta) {
	if s.Documents == nil {
		s.Documents = make(map[string]DocumentMeta)
	}
	d.TaskCount = len(d.Tasks)
	s.Documents[path] = d
}

// RemoveDocument drops the metadata and pending creates of path.
func (s *Snapshot) RemoveDocument(path string) {
	delete(s.Documents, path)
	s.Pending = slices.DeleteFunc(s.Pending, func(p PendingCreate) bool { return p.Path == path })
}

// RenameDocument moves metadata and pending creates from old to path.
func (s *Snapshot) RenameDocument(old, path string) {
	if d, ok := s.Documents[old]; ok {
		delete(s.Documents, old)
		s.Documents[path] = d
	}
	for i := range s.Pending {
		if s.Pending[i].Path == old {
			s.Pending[i].Path = path
		}
	}
}

// DocumentFor returns the path of the document that holds task id.
func (s Snapshot) DocumentFor(id string) (string, bool) {
	for path, d := range s.Documents {
		if _, ok := d.TaskIDs()[id]; ok {
			return path, true
		}
	}
	return "", false
}

// DefaultProjectFor resolves the project new tasks of path go to: the
// document's own default, else the global default.
func (s Snapshot) DefaultProjectFor(path string) string {
	if d, ok := s.Documents[path]; ok && d.DefaultProjectID != "" {
		return d.DefaultProjectID
	}
	return s.Settings.DefaultProjectID
}

// PendingFor returns the pending creates of path in creation order.
func (s Snapshot) PendingFor(path string) []PendingCreate {
	var out []PendingCreate
	for _, p := range s.Pending {
		if p.Path == path {
			out = append(out, p)
		}
	}
	return out
}

// AddPending records a pending create.
func (s *Snapshot) AddPending(p PendingCreate) {
	s.Pending = append(s.Pending, p)
}

// RemovePending drops the pending create with localID.
func (s *Snapshot) RemovePending(localID string) {
	s.Pending = slices.DeleteFunc(s.Pending, func(p PendingCreate) bool { return p.LocalID == localID })
}
