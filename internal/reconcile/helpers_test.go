package reconcile_test

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"gtasksync/internal/cache"
	"gtasksync/internal/config"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/service"
	"gtasksync/internal/taskline"
	"gtasksync/internal/testutil"
)

var (
	t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	t1 = time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)

	transientErr = &service.RemoteError{Op: "test", Kind: service.ErrTransient}
	authErr      = &service.RemoteError{Op: "test", Kind: service.ErrAuth}
)

func tok(id string) string     { return taskline.TaskToken(id) }
func itemTok(id string) string { return taskline.ItemToken(id) }

// memStore is an in-memory reconcile.Store with commit failure injection.
type memStore struct {
	mu        sync.Mutex
	snap      cache.Snapshot
	commitErr []error
	commits   int
}

func newMemStore() *memStore {
	return &memStore{snap: cache.NewSnapshot()}
}

func (s *memStore) Snapshot() cache.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

func (s *memStore) Commit(snap cache.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if len(s.commitErr) > 0 {
		err := s.commitErr[0]
		s.commitErr = s.commitErr[1:]
		return err
	}
	s.snap = snap.Clone()
	return nil
}

// track records a synced task both in the cache and in a document.
func (s *memStore) track(path string, t cache.Task, items ...cache.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.PutTask(t)
	ref := cache.TaskRef{TaskID: t.ID, TaskItems: []string{}}
	for _, it := range items {
		s.snap.PutTask(it)
		ref.TaskItems = append(ref.TaskItems, it.ID)
	}
	meta := s.snap.Documents[path]
	meta.Tasks = append(meta.Tasks, ref)
	s.snap.PutDocument(path, meta)
}

// memDocs is an in-memory reconcile.Documents.
type memDocs struct {
	mu       sync.Mutex
	files    map[string]string
	writeErr error
	writes   int
}

func newMemDocs(files map[string]string) *memDocs {
	if files == nil {
		files = make(map[string]string)
	}
	return &memDocs{files: files}
}

func (d *memDocs) Read(path string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.files[path]
	if !ok {
		return "", &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return text, nil
}

func (d *memDocs) Write(path, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeErr; err != nil {
		d.writeErr = nil
		return err
	}
	d.writes++
	d.files[path] = content
	return nil
}

func (d *memDocs) Exists(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[path]
	return ok
}

func (d *memDocs) List() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.files))
	for p := range d.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (d *memDocs) get(t *testing.T, path string) string {
	t.Helper()
	text, err := d.Read(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return text
}

func newFake() *testutil.FakeService {
	fake := testutil.NewFakeService()
	fake.Now = func() time.Time { return t2 }
	return fake
}

func newEngine(svc service.Service, docs *memDocs, store *memStore) *reconcile.Engine {
	return newEngineWith(svc, docs, store, config.Settings{})
}

func newEngineWith(svc service.Service, docs *memDocs, store *memStore, settings config.Settings) *reconcile.Engine {
	env := reconcile.Env{
		Store:    store,
		Settings: settings,
		Clock:    func() time.Time { return t2 },
	}
	policy := reconcile.RetryPolicy{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return reconcile.New(svc, docs, env, logger, reconcile.WithRetryPolicy(policy))
}

func openTask(id, title string, modified time.Time) cache.Task {
	return cache.Task{
		ID:           id,
		ProjectID:    testutil.DefaultProjectID,
		Title:        title,
		Status:       service.StatusOpen,
		LastModified: modified,
	}
}

func remoteTask(id, title string, updated time.Time) service.Task {
	return service.Task{
		ID:        id,
		ProjectID: testutil.DefaultProjectID,
		Title:     title,
		Status:    service.StatusOpen,
		Updated:   updated,
	}
}

func hasNotice(r *reconcile.Report, kind reconcile.NoticeKind) bool {
	if r == nil {
		return false
	}
	for _, n := range r.Notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func mutations(fake *testutil.FakeService) int {
	return fake.Calls(testutil.MethodCreateTask) + fake.Calls(testutil.MethodUpdateTask) + fake.Calls(testutil.MethodDeleteTask)
}
