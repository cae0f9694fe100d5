// Package cache persists the last known remote state and the per-document
// task metadata. Reads are served from memory; every write is a single
// SQLite transaction and memory is only replaced once it commits.
package cache

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	PRAGMA synchronous = NORMAL;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		group_id TEXT NOT NULL DEFAULT '',
		ord INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS project_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ord INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		last_modified TEXT NOT NULL DEFAULT '',
		child_item_ids TEXT NOT NULL DEFAULT '[]',
		ord INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		default_project_id TEXT NOT NULL DEFAULT '',
		task_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS document_tasks (
		path TEXT NOT NULL,
		task_id TEXT NOT NULL,
		task_items TEXT NOT NULL DEFAULT '[]',
		ord INTEGER NOT NULL,
		PRIMARY KEY (path, task_id)
	);
	CREATE TABLE IF NOT EXISTS pending_creates (
		local_id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		line_text TEXT NOT NULL,
		remote_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		item INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_document_tasks_task ON document_tasks(task_id);
`

// Store is the local cache.
type Store struct {
	db       *sql.DB
	path     string
	lockPath string
	logger   *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// Open opens (creating if needed) the cache database at path and loads it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, &Error{Op: "open", Kind: ErrLoad, Err: err}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, &Error{Op: "open", Kind: ErrLoad, Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &Error{Op: "schema", Kind: ErrLoad, Err: err}
	}

	s := &Store{db: db, path: path, lockPath: path + ".lock", logger: logger}
	snap, err := load(db)
	if err != nil {
		db.Close()
		return nil, &Error{Op: "load", Kind: ErrLoad, Err: err}
	}
	if snap.Version != CurrentVersion {
		logger.Info("upgrading cache", "from", snap.Version, "to", CurrentVersion)
		snap.Version = CurrentVersion
		if err := s.writeTx(func(tx *sql.Tx) error { return writeMeta(tx, snap) }); err != nil {
			db.Close()
			return nil, persistErr("upgrade", err)
		}
	}
	s.snap = snap
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Snapshot returns a deep copy of the cache.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// GetProjects returns the cached projects.
func (s *Store) GetProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Project(nil), s.snap.Projects...)
}

// GetProjectGroups returns the cached project groups.
func (s *Store) GetProjectGroups() []ProjectGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ProjectGroup(nil), s.snap.ProjectGroups...)
}

// GetTasks returns the cached tasks.
func (s *Store) GetTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone().Tasks
}

// GetTask returns one cached task.
func (s *Store) GetTask(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Task(id)
}

// Document returns the metadata of one document.
func (s *Store) Document(path string) (DocumentMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.snap.Documents[path]
	if !ok {
		return DocumentMeta{}, false
	}
	return cloneMeta(d), true
}

// Documents returns the paths of every tracked document.
func (s *Store) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.snap.Documents))
	for p := range s.snap.Documents {
		paths = append(paths, p)
	}
	return paths
}

// GetDefaultProjectForPath returns the project new tasks of path go to.
func (s *Store) GetDefaultProjectForPath(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.snap.DefaultProjectFor(path)
	return id, id != ""
}

// SetDefaultProjectForPath sets the default project of one document.
func (s *Store) SetDefaultProjectForPath(path, projectID string) error {
	return s.apply("set default project", func(snap *Snapshot) {
		d := snap.Documents[path]
		d.DefaultProjectID = projectID
		snap.PutDocument(path, d)
	}, writeDocuments)
}

// SetDefaultProject sets the global default project.
func (s *Store) SetDefaultProject(projectID string) error {
	return s.apply("set default project", func(snap *Snapshot) {
		snap.Settings.DefaultProjectID = projectID
	}, writeMeta)
}

// UpdateProjects replaces the cached projects.
func (s *Store) UpdateProjects(projects []Project) error {
	return s.apply("update projects", func(snap *Snapshot) {
		snap.Projects = append([]Project(nil), projects...)
	}, writeProjects)
}

// UpdateProjectGroups replaces the cached project groups.
func (s *Store) UpdateProjectGroups(groups []ProjectGroup) error {
	return s.apply("update project groups", func(snap *Snapshot) {
		snap.ProjectGroups = append([]ProjectGroup(nil), groups...)
	}, writeProjectGroups)
}

// UpdateTasks replaces the cached tasks.
func (s *Store) UpdateTasks(tasks []Task) error {
	return s.apply("update tasks", func(snap *Snapshot) {
		snap.Tasks = Snapshot{Tasks: tasks}.Clone().Tasks
	}, writeTasks)
}

// Commit replaces the whole cache with snap in one transaction.
func (s *Store) Commit(snap Snapshot) error {
	return s.apply("commit", func(cur *Snapshot) {
		*cur = snap.Clone()
	}, writeAll)
}

func (s *Store) apply(op string, mutate func(*Snapshot), write func(*sql.Tx, Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Clone()
	mutate(&next)
	next.Version = CurrentVersion
	if next.Documents == nil {
		next.Documents = make(map[string]DocumentMeta)
	}
	if err := s.writeTx(func(tx *sql.Tx) error { return write(tx, next) }); err != nil {
		return persistErr(op, err)
	}
	s.snap = next
	return nil
}

func (s *Store) writeTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Lock takes the cross-process sync lock. It fails with ErrLocked when
// another process holds it.
func (s *Store) Lock() (unlock func() error, err error) {
	fl := flock.New(s.lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, &Error{Op: "lock", Kind: ErrLocked, Err: err}
	}
	if !ok {
		return nil, &Error{Op: "lock", Kind: ErrLocked}
	}
	return fl.Unlock, nil
}

// Export writes the cache as a JSON snapshot, replacing path atomically.
func (s *Store) Export(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return &Error{Op: "export", Kind: ErrPersist, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &Error{Op: "export", Kind: ErrPersist, Err: err}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return &Error{Op: "export", Kind: ErrPersist, Err: err}
	}
	return nil
}

// Backup exports the cache into dir under a timestamped name.
func (s *Store) Backup(dir string, now time.Time) (string, error) {
	path := filepath.Join(dir, "cache-"+now.UTC().Format("20060102T150405Z")+".json")
	return path, s.Export(path)
}

// Import migrates a JSON snapshot of any known version and commits it.
// It returns user-facing notices raised by the migration.
func (s *Store) Import(r io.Reader) ([]string, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &Error{Op: "import", Kind: ErrMigrate, Err: err}
	}
	notices, err := Migrate(raw)
	if err != nil {
		return nil, err
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	if err := s.Commit(snap); err != nil {
		return nil, err
	}
	s.logger.Info("imported snapshot", "tasks", len(snap.Tasks), "documents", len(snap.Documents))
	return notices, nil
}

func decodeSnapshot(raw map[string]any) (Snapshot, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return Snapshot{}, &Error{Op: "import", Kind: ErrMigrate, Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, &Error{Op: "import", Kind: ErrMigrate, Err: err}
	}
	if snap.Documents == nil {
		snap.Documents = make(map[string]DocumentMeta)
	}
	for path, d := range snap.Documents {
		for i := range d.Tasks {
			if d.Tasks[i].TaskItems == nil {
				d.Tasks[i].TaskItems = []string{}
			}
		}
		snap.Documents[path] = d
	}
	return snap, nil
}
