package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"
	"time"

	"gtasksync/internal/cache"
	"gtasksync/internal/service"
	"gtasksync/internal/taskline"
)

// pass is the working state of one reconciliation pass. It mutates a
// private clone of the cache snapshot that is committed at the end.
type pass struct {
	e      *Engine
	ctx    context.Context
	snap   cache.Snapshot
	since  time.Time
	report *Report

	authErr     error
	advanceSync bool

	remote  map[string]map[string]service.Task // projectID -> taskID -> task
	listErr map[string]error
	texts   map[string]string
	adopted map[string]bool // pending creates linked this pass
}

func (e *Engine) newPass(ctx context.Context, mode Mode) *pass {
	snap := e.env.Store.Snapshot()
	return &pass{
		e:       e,
		ctx:     ctx,
		snap:    snap,
		since:   snap.Settings.LastSyncAt,
		report:  &Report{Mode: mode, Started: e.env.Clock()},
		remote:  make(map[string]map[string]service.Task),
		listErr: make(map[string]error),
		texts:   make(map[string]string),
		adopted: make(map[string]bool),
	}
}

// call runs one remote operation under the retry policy. After a
// credentials failure every further call fails immediately.
func (p *pass) call(op func(context.Context) error) error {
	if p.authErr != nil {
		return p.authErr
	}
	err := p.e.retry.Do(p.ctx, op)
	if service.IsAuth(err) {
		p.authErr = err
		p.e.markAuthFailed()
		p.e.logger.Error("remote rejected credentials, stopping remote calls", "err", err)
	}
	return err
}

func (p *pass) skip(path, title, op string, err error) {
	if service.IsAuth(err) {
		return
	}
	p.e.logger.Warn("remote operation skipped", "op", op, "path", path, "title", title, "err", err)
	p.report.notice(Notice{Kind: NoticeSkipped, Path: path, Title: title, Err: fmt.Errorf("%s: %w", op, err)})
}

func (p *pass) read(path string) (string, error) {
	if text, ok := p.texts[path]; ok {
		return text, nil
	}
	text, err := p.e.docs.Read(path)
	if err != nil {
		return "", err
	}
	p.texts[path] = text
	return text, nil
}

func cacheTask(t service.Task) cache.Task {
	return cache.Task{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		ParentID:     t.ParentID,
		Title:        t.Title,
		Status:       t.Status,
		LastModified: t.Updated,
	}
}

// putRemote stores the remote state of a task, keeping what the remote
// response does not carry.
func (p *pass) putRemote(t service.Task) {
	ct := cacheTask(t)
	if old, ok := p.snap.Task(t.ID); ok {
		ct.ChildItemIDs = old.ChildItemIDs
		if ct.ProjectID == "" {
			ct.ProjectID = old.ProjectID
		}
		if ct.ParentID == "" {
			ct.ParentID = old.ParentID
		}
	}
	p.snap.PutTask(ct)
}

// listProject returns the remote tasks of a project, listing it at most
// once per pass.
func (p *pass) listProject(projectID string) (map[string]service.Task, bool) {
	if m, ok := p.remote[projectID]; ok {
		return m, true
	}
	if _, failed := p.listErr[projectID]; failed {
		return nil, false
	}
	var tasks []service.Task
	err := p.call(func(ctx context.Context) error {
		var err error
		tasks, err = p.e.svc.ListTasksForProject(ctx, projectID)
		return err
	})
	if err != nil {
		p.listErr[projectID] = err
		p.skip("", projectID, "list tasks", err)
		return nil, false
	}
	m := make(map[string]service.Task, len(tasks))
	for _, t := range tasks {
		if t.ProjectID == "" {
			t.ProjectID = projectID
		}
		m[t.ID] = t
	}
	p.remote[projectID] = m
	return m, true
}

// defaultProject resolves the project new tasks of path are created in:
// the document default, the cached default, the configured default, and
// finally the remote default which is then cached.
func (p *pass) defaultProject(path string) (string, error) {
	if id := p.snap.DefaultProjectFor(path); id != "" {
		return id, nil
	}
	if id := p.e.env.Settings.DefaultProjectID; id != "" {
		return id, nil
	}
	var proj service.Project
	err := p.call(func(ctx context.Context) error {
		var err error
		proj, err = p.e.svc.DefaultProject(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	p.snap.Settings.DefaultProjectID = proj.ID
	return proj.ID, nil
}

func (p *pass) create(path, projectID string, attrs service.TaskAttributes) (service.Task, error) {
	var t service.Task
	err := p.call(func(ctx context.Context) error {
		var err error
		t, err = p.e.svc.CreateTask(ctx, projectID, attrs.Title, attrs)
		return err
	})
	if err != nil {
		p.skip(path, attrs.Title, "create", err)
		return service.Task{}, err
	}
	if t.ProjectID == "" {
		t.ProjectID = projectID
	}
	if t.ParentID == "" {
		t.ParentID = attrs.ParentID
	}
	p.putRemote(t)
	p.report.Created++
	p.e.logger.Info("created task", "path", path, "id", t.ID, "project", projectID, "parent", attrs.ParentID)
	return t, nil
}

func (p *pass) update(path string, cached cache.Task, attrs service.TaskAttributes) error {
	var t service.Task
	err := p.call(func(ctx context.Context) error {
		var err error
		t, err = p.e.svc.UpdateTask(ctx, cached.ProjectID, cached.ID, attrs)
		return err
	})
	if err != nil {
		p.skip(path, attrs.Title, "update", err)
		return err
	}
	if t.ProjectID == "" {
		t.ProjectID = cached.ProjectID
	}
	p.putRemote(t)
	p.report.Updated++
	p.e.logger.Info("updated task", "path", path, "id", cached.ID, "status", attrs.Status)
	return nil
}

func (p *pass) refreshProjects() error {
	var projects []service.Project
	err := p.call(func(ctx context.Context) error {
		var err error
		projects, err = p.e.svc.ListProjects(ctx)
		return err
	})
	if err != nil {
		p.skip("", "projects", "list projects", err)
		return err
	}
	p.snap.Projects = make([]cache.Project, 0, len(projects))
	for _, pr := range projects {
		p.snap.Projects = append(p.snap.Projects, cache.Project{ID: pr.ID, Name: pr.Title, GroupID: pr.GroupID})
		if pr.IsDefault && p.snap.Settings.DefaultProjectID == "" && p.e.env.Settings.DefaultProjectID == "" {
			p.snap.Settings.DefaultProjectID = pr.ID
		}
	}

	var groups []service.ProjectGroup
	err = p.call(func(ctx context.Context) error {
		var err error
		groups, err = p.e.svc.ListProjectGroups(ctx)
		return err
	})
	if err != nil {
		p.skip("", "project groups", "list project groups", err)
		return nil
	}
	p.snap.ProjectGroups = make([]cache.ProjectGroup, 0, len(groups))
	for _, g := range groups {
		p.snap.ProjectGroups = append(p.snap.ProjectGroups, cache.ProjectGroup{ID: g.ID, Name: g.Name})
	}
	return nil
}

func (p *pass) syncVault() error {
	p.advanceSync = true
	if err := p.refreshProjects(); err != nil {
		p.e.logger.Warn("project refresh failed, syncing documents with cached projects", "err", err)
	}

	paths := make([]string, 0, len(p.snap.Documents))
	for path := range p.snap.Documents {
		paths = append(paths, path)
	}
	if p.e.env.Settings.FullVaultSync {
		all, err := p.e.docs.List()
		if err != nil {
			p.e.logger.Warn("listing vault failed", "err", err)
		}
		for _, path := range all {
			if _, tracked := p.snap.Documents[path]; tracked {
				continue
			}
			text, err := p.read(path)
			if err == nil && hasSyncLines(text) {
				paths = append(paths, path)
			}
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		if err := p.syncDocument(path); err != nil {
			p.e.logger.Warn("document sync failed", "path", path, "err", err)
		}
	}
	return nil
}

func hasSyncLines(text string) bool {
	for _, line := range taskline.Lines(text) {
		if taskline.HasToken(line) || taskline.IsNewTaskLine(line) {
			return true
		}
	}
	return false
}

func (p *pass) syncDocument(path string) error {
	p.report.addPath(path)
	content, err := p.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.e.logger.Info("document no longer exists, dropping its metadata", "path", path)
			p.snap.RemoveDocument(path)
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	return p.reconcileDocument(path, content)
}

func (p *pass) deletedTaskCheck(path string) error {
	p.report.addPath(path)
	content, err := p.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	d, err := p.collect(path, content)
	if err != nil {
		return nil
	}
	p.e.setState(DiffingAgainstCache)
	ids := p.deleteCandidates(d)
	p.e.setState(ApplyingRemoteMutations)
	p.applyDeletes(d, ids)
	if d.tracked {
		p.dropFromMeta(d, ids)
	}
	return nil
}

// dropFromMeta removes deleted identifiers from the document's metadata.
// Identifiers whose delete failed stay recorded.
func (p *pass) dropFromMeta(d *doc, ids []string) {
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !slices.Contains(d.retained, id) {
			gone[id] = true
		}
	}
	if len(gone) == 0 {
		return
	}
	meta := copyMeta(d.meta)
	refs := meta.Tasks[:0]
	for _, ref := range meta.Tasks {
		if gone[ref.TaskID] {
			continue
		}
		ref.TaskItems = slices.DeleteFunc(ref.TaskItems, func(id string) bool { return gone[id] })
		refs = append(refs, ref)
	}
	meta.Tasks = refs
	p.snap.PutDocument(d.path, meta)
}

// tokenPresent reports whether the token of id still occurs in path's text
// or in any other tracked document, which means the line moved rather than
// disappeared.
func (p *pass) tokenPresent(path, content, id string) bool {
	if containsToken(content, id) {
		return true
	}
	for other := range p.snap.Documents {
		if other == path {
			continue
		}
		text, err := p.read(other)
		if err != nil {
			continue
		}
		if containsToken(text, id) {
			p.e.logger.Debug("task moved to another document", "id", id, "from", path, "to", other)
			return true
		}
	}
	return false
}

func containsToken(text, id string) bool {
	return strings.Contains(text, taskline.TaskToken(id)) || strings.Contains(text, taskline.ItemToken(id))
}
