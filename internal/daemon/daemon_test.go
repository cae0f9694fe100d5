package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gtasksync/internal/config"
	"gtasksync/internal/events"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/service"
)

// fakeEngine records the passes requested by the daemon.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	vaultErr []error
	unloaded bool
	vaultRan chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{vaultRan: make(chan struct{}, 16)}
}

func (f *fakeEngine) add(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) SyncLine(_ context.Context, path string, lineNum int, lineText, _ string) (*reconcile.Report, error) {
	f.add(fmt.Sprintf("line %s:%d %s", path, lineNum, lineText))
	return &reconcile.Report{Mode: reconcile.ModeLine}, nil
}

func (f *fakeEngine) SyncDocument(_ context.Context, path string) (*reconcile.Report, error) {
	f.add("document " + path)
	return &reconcile.Report{Mode: reconcile.ModeDocument}, nil
}

func (f *fakeEngine) SyncVault(context.Context) (*reconcile.Report, error) {
	f.add("vault")
	f.mu.Lock()
	var err error
	if len(f.vaultErr) > 0 {
		err = f.vaultErr[0]
		f.vaultErr = f.vaultErr[1:]
	}
	f.mu.Unlock()
	f.vaultRan <- struct{}{}
	if err != nil {
		return nil, err
	}
	return &reconcile.Report{Mode: reconcile.ModeVault}, nil
}

func (f *fakeEngine) DeletedTaskCheck(_ context.Context, path string) (*reconcile.Report, error) {
	f.add("delete-check " + path)
	return &reconcile.Report{Mode: reconcile.ModeDeleteCheck}, nil
}

func (f *fakeEngine) DocumentDeleted(_ context.Context, path string) (*reconcile.Report, error) {
	f.add("deleted " + path)
	return &reconcile.Report{Mode: reconcile.ModeDocumentEvent}, nil
}

func (f *fakeEngine) DocumentRenamed(_ context.Context, oldPath, newPath string) (*reconcile.Report, error) {
	f.add("renamed " + oldPath + " " + newPath)
	return &reconcile.Report{Mode: reconcile.ModeDocumentEvent}, nil
}

func (f *fakeEngine) Unload() {
	f.mu.Lock()
	f.unloaded = true
	f.mu.Unlock()
}

type fakeWatcher struct {
	mu    sync.Mutex
	times map[string]time.Time
}

func (w *fakeWatcher) set(path string, t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.IsZero() {
		delete(w.times, path)
		return
	}
	w.times[path] = t
}

func (w *fakeWatcher) ModTimes() (map[string]time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]time.Time, len(w.times))
	for k, v := range w.times {
		out[k] = v
	}
	return out, nil
}

type fakeBackup struct {
	calls int
	err   error
}

func (b *fakeBackup) Backup(dir string, _ time.Time) (string, error) {
	b.calls++
	return dir + "/cache.json", b.err
}

func newTestDaemon(engine *fakeEngine, settings config.Settings) *Daemon {
	return New(Config{
		Engine:     engine,
		Settings:   settings,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		RetryDelay: time.Millisecond,
	})
}

func TestHandle_RoutesEvents(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	d := newTestDaemon(engine, config.Settings{})

	content := "- [ ] one\n- [ ] two #gtask\n"
	steps := []events.Event{
		{Kind: events.DocumentModified, Path: "a.md"},
		{Kind: events.InteractionOccurred, Path: "b.md", Line: 1, Content: content},
		{Kind: events.InteractionOccurred, Path: "b.md", Line: 1, Content: content},
		{Kind: events.InteractionOccurred, Path: "b.md", Line: 0, Content: content},
		{Kind: events.InteractionOccurred, Path: "b.md", Line: 0, Content: "- [ ] one\n", Deletion: true},
		{Kind: events.DocumentRenamed, OldPath: "a.md", Path: "c.md"},
		{Kind: events.DocumentDeleted, Path: "c.md"},
		{Kind: events.ManualTrigger},
	}
	for _, ev := range steps {
		if _, err := d.Handle(ctx, ev); err != nil {
			t.Fatalf("Handle(%v): %v", ev.Kind, err)
		}
	}

	want := []string{
		"document a.md",
		"line b.md:1 - [ ] two #gtask",
		"delete-check b.md",
		"renamed a.md c.md",
		"deleted c.md",
		"vault",
	}
	got := engine.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
	if s := d.Stats(); s.SyncCount != len(want) {
		t.Errorf("SyncCount = %d, want %d", s.SyncCount, len(want))
	}
}

func TestHandle_SkipsActiveDocument(t *testing.T) {
	engine := newFakeEngine()
	d := newTestDaemon(engine, config.Settings{})
	d.SetActive("a.md")

	r, err := d.Handle(context.Background(), events.Event{Kind: events.DocumentModified, Path: "a.md"})
	if r != nil || err != nil {
		t.Errorf("Handle = %v, %v", r, err)
	}
	if len(engine.Calls()) != 0 {
		t.Errorf("calls = %q", engine.Calls())
	}

	if _, err := d.Handle(context.Background(), events.Event{Kind: events.DocumentRenamed, OldPath: "a.md", Path: "b.md"}); err != nil {
		t.Fatal(err)
	}
	if d.Active() != "b.md" {
		t.Errorf("active = %q after rename", d.Active())
	}
}

func TestPoll_PublishesChanges(t *testing.T) {
	engine := newFakeEngine()
	w := &fakeWatcher{times: map[string]time.Time{
		"a.md": time.Unix(100, 0),
		"b.md": time.Unix(100, 0),
	}}
	d := newTestDaemon(engine, config.Settings{})
	d.watcher = w
	sub := d.Events().Subscribe()
	defer sub.Close()

	d.poll(false)
	w.set("a.md", time.Unix(200, 0))
	w.set("b.md", time.Time{})
	w.set("c.md", time.Unix(300, 0))
	d.poll(true)

	got := make(map[string]events.Kind)
	for len(got) < 3 {
		select {
		case ev := <-sub.Events:
			got[ev.Path] = ev.Kind
		default:
			t.Fatalf("events = %v, want 3", got)
		}
	}
	if got["a.md"] != events.DocumentModified || got["c.md"] != events.DocumentModified || got["b.md"] != events.DocumentDeleted {
		t.Errorf("events = %v", got)
	}
}

func TestRun_BacksUpSyncsAndUnloads(t *testing.T) {
	engine := newFakeEngine()
	backup := &fakeBackup{}
	d := New(Config{
		Engine:    engine,
		Backup:    backup,
		BackupDir: t.TempDir(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-engine.vaultRan:
	case <-time.After(5 * time.Second):
		t.Fatal("initial vault sync did not run")
	}
	d.Events().Publish(events.Event{Kind: events.DocumentModified, Path: "a.md"})
	deadline := time.After(5 * time.Second)
	for len(engine.Calls()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("calls = %q", engine.Calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backup.calls != 1 {
		t.Errorf("backups = %d, want 1", backup.calls)
	}
	engine.mu.Lock()
	unloaded := engine.unloaded
	engine.mu.Unlock()
	if !unloaded {
		t.Error("engine not unloaded on exit")
	}
}

func TestRun_SkipBackup(t *testing.T) {
	engine := newFakeEngine()
	backup := &fakeBackup{err: errors.New("should not be called")}
	d := New(Config{
		Engine:   engine,
		Backup:   backup,
		Settings: config.Settings{SkipBackup: true},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	<-engine.vaultRan
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backup.calls != 0 {
		t.Errorf("backups = %d, want 0", backup.calls)
	}
}

func TestRun_InitialSyncRetries(t *testing.T) {
	engine := newFakeEngine()
	transient := &service.RemoteError{Op: "list", Kind: service.ErrTransient}
	engine.vaultErr = []error{transient, transient}
	d := newTestDaemon(engine, config.Settings{SkipBackup: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	for i := 0; i < 3; i++ {
		<-engine.vaultRan
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := d.Stats(); s.ErrorCount != 2 || s.SyncCount != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRun_InitialSyncStopsOnAuthFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.vaultErr = []error{reconcile.ErrAuthRequired}
	d := newTestDaemon(engine, config.Settings{SkipBackup: true})

	err := d.Run(context.Background())
	if !errors.Is(err, reconcile.ErrAuthRequired) {
		t.Errorf("Run = %v, want ErrAuthRequired", err)
	}
	if n := len(engine.Calls()); n != 1 {
		t.Errorf("vault passes = %d, want 1", n)
	}
}
