// Package reconcile runs synchronization passes between the documents of a
// vault, the local cache and the remote task service.
//
// A pass clones the cache snapshot, maps the affected documents, diffs them
// against the clone, applies remote mutations (delete, then create, then
// update), writes identifiers and remote-wins rewrites back into the
// documents and finally commits the clone in one transaction. At most one
// pass runs at a time; a trigger that arrives while a pass is running is
// dropped with ErrBusy.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gtasksync/internal/cache"
	"gtasksync/internal/config"
	"gtasksync/internal/service"
)

const defaultResultsBuffer = 16

// State is the phase of the running pass.
type State int32

const (
	Idle State = iota
	CollectingLocalChanges
	DiffingAgainstCache
	ApplyingRemoteMutations
	ApplyingLocalMutations
	PersistingCache
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CollectingLocalChanges:
		return "collecting-local-changes"
	case DiffingAgainstCache:
		return "diffing-against-cache"
	case ApplyingRemoteMutations:
		return "applying-remote-mutations"
	case ApplyingLocalMutations:
		return "applying-local-mutations"
	case PersistingCache:
		return "persisting-cache"
	default:
		return "unknown"
	}
}

// Store is the cache a pass reads from and commits to.
type Store interface {
	Snapshot() cache.Snapshot
	Commit(cache.Snapshot) error
}

// Documents reads and writes vault documents by vault-relative path.
type Documents interface {
	Read(path string) (string, error)
	Write(path, content string) error
	Exists(path string) bool
	List() ([]string, error)
}

// Env is the synchronization context threaded through every pass.
type Env struct {
	Store    Store
	Settings config.Settings
	Clock    func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRetryPolicy overrides the retry policy for remote calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithResultsBuffer sets the capacity of the Results channel.
func WithResultsBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.results = make(chan Report, n)
		}
	}
}

// Engine runs reconciliation passes.
type Engine struct {
	svc    service.Service
	docs   Documents
	env    Env
	retry  RetryPolicy
	logger *slog.Logger

	busy  atomic.Bool
	state atomic.Int32

	mu         sync.Mutex
	loaded     bool
	authFailed bool
	inflight   sync.WaitGroup
	// deleted holds identifiers deleted remotely whose removal has not
	// been committed to the cache yet.
	deleted map[string]bool

	results chan Report
}

// New returns a loaded engine.
func New(svc service.Service, docs Documents, env Env, logger *slog.Logger, opts ...Option) *Engine {
	if env.Clock == nil {
		env.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		svc:     svc,
		docs:    docs,
		env:     env,
		retry:   RetryPolicyFrom(env.Settings.Retry),
		logger:  logger,
		loaded:  true,
		deleted: make(map[string]bool),
		results: make(chan Report, defaultResultsBuffer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// State returns the phase of the running pass, Idle when none runs.
func (e *Engine) State() State { return State(e.state.Load()) }

// Results delivers one report per finished pass. Reports are dropped when
// nobody drains the channel.
func (e *Engine) Results() <-chan Report { return e.results }

// Unload stops new passes and waits for a running pass to finish. The
// running pass completes its remote work and cache commit but no longer
// writes documents or publishes its report.
func (e *Engine) Unload() {
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()
	e.inflight.Wait()
}

// ResetAuth clears a recorded credentials failure, typically after login.
func (e *Engine) ResetAuth() {
	e.mu.Lock()
	e.authFailed = false
	e.mu.Unlock()
}

// AuthFailed reports whether passes are short-circuited by a credentials failure.
func (e *Engine) AuthFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authFailed
}

func (e *Engine) isLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) markAuthFailed() {
	e.mu.Lock()
	e.authFailed = true
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	if prev := State(e.state.Swap(int32(s))); prev != s {
		e.logger.Debug("sync state", "from", prev, "to", s)
	}
}

func (e *Engine) begin(remote bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ErrUnloaded
	}
	if remote && e.authFailed {
		return ErrAuthRequired
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	e.inflight.Add(1)
	return nil
}

func (e *Engine) end() {
	e.setState(Idle)
	e.busy.Store(false)
	e.inflight.Done()
}

// run executes body as one pass. remote passes are refused after an auth
// failure; local maintenance passes are not.
func (e *Engine) run(ctx context.Context, mode Mode, remote bool, body func(*pass) error) (*Report, error) {
	if err := e.begin(remote); err != nil {
		return nil, err
	}
	defer e.end()

	p := e.newPass(ctx, mode)
	e.setState(CollectingLocalChanges)
	err := body(p)
	return e.complete(p, err)
}

func (e *Engine) complete(p *pass, err error) (*Report, error) {
	r := p.report
	if p.authErr != nil {
		r.notice(Notice{Kind: NoticeAuthRequired, Err: p.authErr})
		if err == nil {
			err = fmt.Errorf("%w: %w", ErrAuthRequired, p.authErr)
		}
	}
	if err == nil && p.advanceSync && len(p.listErr) == 0 {
		p.snap.Settings.LastSyncAt = r.Started
	}

	e.setState(PersistingCache)
	if cerr := e.env.Store.Commit(p.snap); cerr != nil {
		e.logger.Error("cache commit failed, pass discarded", "mode", r.Mode, "err", cerr)
		err = errors.Join(err, cerr)
	} else {
		e.forgetDeleted(p.snap)
	}

	r.Finished = e.env.Clock()
	r.Err = err
	e.logger.Info("sync pass finished",
		"mode", r.Mode, "docs", len(r.Paths),
		"created", r.Created, "updated", r.Updated, "deleted", r.Deleted, "pulled", r.Pulled,
		"notices", len(r.Notices), "err", err)

	if e.isLoaded() {
		select {
		case e.results <- *r:
		default:
			e.logger.Debug("report dropped, results channel full", "mode", r.Mode)
		}
	}
	return r, err
}

func (e *Engine) isDeleted(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleted[id]
}

func (e *Engine) markDeleted(id string) {
	e.mu.Lock()
	e.deleted[id] = true
	e.mu.Unlock()
}

// forgetDeleted drops tombstones of identifiers the committed cache no
// longer holds.
func (e *Engine) forgetDeleted(snap cache.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.deleted {
		if _, ok := snap.Task(id); ok {
			continue
		}
		if _, ok := snap.DocumentFor(id); ok {
			continue
		}
		delete(e.deleted, id)
	}
}

// SyncLine syncs the single line lineNum of path, whose text is lineText in
// the document content. It creates tagged tasks and unsynced sub-items,
// pushes edits of synced ones and links orphans.
func (e *Engine) SyncLine(ctx context.Context, path string, lineNum int, lineText, content string) (*Report, error) {
	return e.run(ctx, ModeLine, true, func(p *pass) error {
		return p.syncLine(path, lineNum, lineText, content)
	})
}

// SyncDocument reconciles one whole document.
func (e *Engine) SyncDocument(ctx context.Context, path string) (*Report, error) {
	return e.run(ctx, ModeDocument, true, func(p *pass) error {
		return p.syncDocument(path)
	})
}

// SyncVault refreshes projects and reconciles every tracked document, plus
// every document with tagged or linked tasks when full vault sync is on.
func (e *Engine) SyncVault(ctx context.Context) (*Report, error) {
	return e.run(ctx, ModeVault, true, func(p *pass) error {
		return p.syncVault()
	})
}

// DeletedTaskCheck deletes remotely the tasks whose lines were removed from
// path. Nothing else is synced.
func (e *Engine) DeletedTaskCheck(ctx context.Context, path string) (*Report, error) {
	return e.run(ctx, ModeDeleteCheck, true, func(p *pass) error {
		return p.deletedTaskCheck(path)
	})
}

// DocumentDeleted drops the metadata of a deleted document. Its tasks stay
// in the cache and remotely.
func (e *Engine) DocumentDeleted(ctx context.Context, path string) (*Report, error) {
	return e.run(ctx, ModeDocumentEvent, false, func(p *pass) error {
		p.report.addPath(path)
		p.snap.RemoveDocument(path)
		return nil
	})
}

// DocumentRenamed moves the metadata of a renamed document.
func (e *Engine) DocumentRenamed(ctx context.Context, oldPath, newPath string) (*Report, error) {
	return e.run(ctx, ModeDocumentEvent, false, func(p *pass) error {
		p.report.addPath(newPath)
		p.snap.RenameDocument(oldPath, newPath)
		return nil
	})
}

// RefreshProjects replaces the cached projects and groups with the remote ones.
func (e *Engine) RefreshProjects(ctx context.Context) (*Report, error) {
	return e.run(ctx, ModeProjects, true, func(p *pass) error {
		return p.refreshProjects()
	})
}

// SetDefaultProject sets the project new tasks of path are created in. An
// empty path sets the vault-wide default.
func (e *Engine) SetDefaultProject(path, projectID string) (*Report, error) {
	return e.run(context.Background(), ModeDefaultProject, false, func(p *pass) error {
		if projectID != "" && len(p.snap.Projects) > 0 {
			if _, ok := p.snap.Project(projectID); !ok {
				return fmt.Errorf("%w: project %s", service.ErrNotFound, projectID)
			}
		}
		if path == "" {
			p.snap.Settings.DefaultProjectID = projectID
			return nil
		}
		p.report.addPath(path)
		meta, _ := p.snap.Document(path)
		meta.DefaultProjectID = projectID
		p.snap.PutDocument(path, meta)
		return nil
	})
}
