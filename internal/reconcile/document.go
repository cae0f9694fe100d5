package reconcile

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/google/uuid"

	"gtasksync/internal/cache"
	"gtasksync/internal/filemap"
	"gtasksync/internal/outline"
	"gtasksync/internal/service"
	"gtasksync/internal/taskline"
)

// doc is one document being reconciled.
type doc struct {
	path    string
	content string
	lines   []string
	m       *filemap.Map
	records []filemap.Record
	meta    cache.DocumentMeta
	tracked bool

	// ids maps record index to the identifier the record carries after
	// this pass. Superseded duplicates have no entry.
	ids      map[int]string
	created  []linked
	retained []string
	unlinked map[string]bool
	orphaned map[string]bool
	edits    []edit
}

// linked is an identifier newly written to a line this pass.
type linked struct {
	line     int
	id       string
	parentID string
}

// edit is a pending change of one document line. old is matched against
// the document as it is at write-back time.
type edit struct {
	line     int
	old, new string
	id       string
	// orphan is recorded when a created task cannot be written back.
	orphan *cache.PendingCreate
	// adopts is the pending create resolved once the edit lands.
	adopts string
	// revert restores the cache when a remote-wins rewrite cannot land.
	revert *cache.Task
}

func copyMeta(m cache.DocumentMeta) cache.DocumentMeta {
	refs := make([]cache.TaskRef, len(m.Tasks))
	for i, r := range m.Tasks {
		refs[i] = cache.TaskRef{TaskID: r.TaskID, TaskItems: slices.Clone(r.TaskItems)}
	}
	m.Tasks = refs
	return m
}

// collect maps the document. Parse failures abort this document only.
func (p *pass) collect(path, content string) (*doc, error) {
	o, err := outline.Parse([]byte(content))
	var m *filemap.Map
	if err == nil {
		m, err = filemap.Build(content, &o)
	}
	if err != nil {
		p.e.logger.Warn("cannot map document", "path", path, "err", err)
		p.report.notice(Notice{Kind: NoticeParseError, Path: path, Err: err})
		return nil, err
	}
	for _, merr := range m.Errors() {
		if errors.Is(merr, filemap.ErrDuplicateID) {
			p.report.notice(Notice{Kind: NoticeDuplicateID, Path: path, TaskID: merr.ID})
			p.e.logger.Warn("duplicate task identifier", "path", path, "err", merr)
			continue
		}
		p.e.logger.Debug("mapping problem", "path", path, "err", merr)
	}

	meta, tracked := p.snap.Document(path)
	d := &doc{
		path:     path,
		content:  content,
		lines:    taskline.Lines(content),
		m:        m,
		records:  m.Records(),
		meta:     copyMeta(meta),
		tracked:  tracked,
		ids:      make(map[int]string),
		unlinked: make(map[string]bool),
		orphaned: make(map[string]bool),
	}
	for i, r := range d.records {
		if r.ID == "" {
			continue
		}
		if last, _ := m.Record(r.ID); last.StartLine == r.StartLine {
			d.ids[i] = r.ID
		}
	}
	return d, nil
}

func (d *doc) recordAt(line int) int {
	for i, r := range d.records {
		if r.StartLine == line {
			return i
		}
	}
	return -1
}

// parentOf returns the identifier of the record's parent, or "" when the
// parent is unsynced or missing.
func (d *doc) parentOf(i int) string {
	r := d.records[i]
	if pi := r.Parent(); pi >= 0 {
		return d.ids[pi]
	}
	if r.ParentID != filemap.NoParent {
		return r.ParentID
	}
	return ""
}

func (d *doc) rootTask(i int) int {
	for pi := d.records[i].Parent(); pi >= 0; pi = d.records[pi].Parent() {
		if d.records[pi].Kind == filemap.KindTask {
			return pi
		}
	}
	return -1
}

type createOp struct {
	line   int
	record int // -1 for a tagged line that is not a record
}

func (p *pass) reconcileDocument(path, content string) error {
	d, err := p.collect(path, content)
	if err != nil {
		return nil
	}

	p.e.setState(DiffingAgainstCache)
	deletes := p.deleteCandidates(d)
	var creates []createOp
	var updates []int
	for i, r := range d.records {
		id, ok := d.ids[i]
		switch {
		case r.ID == "" && r.Kind == filemap.KindItem:
			creates = append(creates, createOp{line: r.StartLine, record: i})
		case !ok:
			// superseded duplicate
		default:
			if _, cached := p.snap.Task(id); cached {
				updates = append(updates, i)
			} else {
				creates = append(creates, createOp{line: r.StartLine, record: i})
			}
		}
	}
	for _, line := range d.m.NewTaskLines() {
		creates = append(creates, createOp{line: line, record: -1})
	}
	sort.SliceStable(creates, func(a, b int) bool { return creates[a].line < creates[b].line })
	p.e.logger.Debug("document diff", "path", path, "delete", len(deletes), "create", len(creates), "update", len(updates))

	p.e.setState(ApplyingRemoteMutations)
	p.applyDeletes(d, deletes)
	for _, op := range creates {
		switch {
		case op.record < 0:
			p.createTagged(d, op.line, d.lines[op.line])
		case d.records[op.record].ID == "":
			p.createItem(d, op.record)
		default:
			p.linkUnknown(d, op.record, true)
		}
	}
	for _, i := range updates {
		p.updateRecord(d, i, true)
	}

	p.e.setState(ApplyingLocalMutations)
	p.writeBack(d)
	p.rebuildMeta(d)
	return nil
}

// deleteCandidates lists the identifiers recorded for the document that no
// longer occur in it. An identifier whose token still appears anywhere in
// the text, or in another tracked document, is never a candidate.
func (p *pass) deleteCandidates(d *doc) []string {
	inDoc := make(map[string]bool, len(d.ids))
	for _, id := range d.ids {
		inDoc[id] = true
	}
	var out []string
	for _, ref := range d.meta.Tasks {
		for _, id := range append([]string{ref.TaskID}, ref.TaskItems...) {
			if inDoc[id] || p.tokenPresent(d.path, d.content, id) {
				continue
			}
			out = append(out, id)
		}
	}
	return out
}

// applyDeletes deletes remotely each identifier once. An identifier deleted
// by an earlier pass whose cache commit has not landed is only unlinked.
func (p *pass) applyDeletes(d *doc, ids []string) {
	for _, id := range ids {
		t, cached := p.snap.Task(id)
		if !cached || p.e.isDeleted(id) {
			p.snap.RemoveTask(id)
			continue
		}
		err := p.call(func(ctx context.Context) error {
			return p.e.svc.DeleteTask(ctx, t.ProjectID, id)
		})
		if err != nil && !service.IsNotFound(err) {
			p.skip(d.path, t.Title, "delete", err)
			d.retained = append(d.retained, id)
			continue
		}
		p.e.markDeleted(id)
		p.snap.RemoveTask(id)
		p.report.Deleted++
		p.e.logger.Info("deleted task", "path", d.path, "id", id, "title", t.Title)
	}
}

func (p *pass) pendingByLine(path, text string, item bool) (cache.PendingCreate, bool) {
	for _, pc := range p.snap.PendingFor(path) {
		if !p.adopted[pc.LocalID] && pc.Item == item && pc.LineText == text {
			return pc, true
		}
	}
	return cache.PendingCreate{}, false
}

func (p *pass) pendingByRemote(id string) (cache.PendingCreate, bool) {
	for _, pc := range p.snap.Pending {
		if !p.adopted[pc.LocalID] && pc.RemoteID == id {
			return pc, true
		}
	}
	return cache.PendingCreate{}, false
}

// adopt links a line to the remote task of a pending create. The pending
// create is dropped once the line is written.
func (p *pass) adopt(d *doc, line int, text, newText string, pc cache.PendingCreate) {
	p.adopted[pc.LocalID] = true
	if _, ok := p.snap.Task(pc.RemoteID); !ok {
		p.snap.PutTask(cache.Task{
			ID:           pc.RemoteID,
			ProjectID:    pc.ProjectID,
			ParentID:     pc.ParentID,
			Title:        taskline.Title(text),
			Status:       service.StatusFor(taskline.Checked(text)),
			LastModified: pc.CreatedAt,
		})
	}
	d.edits = append(d.edits, edit{line: line, old: text, new: newText, id: pc.RemoteID, adopts: pc.LocalID})
	p.report.notice(Notice{Kind: NoticeAdopted, Path: d.path, TaskID: pc.RemoteID, Title: taskline.Title(text)})
}

func (p *pass) pending(d *doc, text, remoteID, projectID, parentID string, item bool) *cache.PendingCreate {
	return &cache.PendingCreate{
		LocalID:   uuid.NewString(),
		Path:      d.path,
		LineText:  text,
		RemoteID:  remoteID,
		ProjectID: projectID,
		ParentID:  parentID,
		Item:      item,
		CreatedAt: p.e.env.Clock(),
	}
}

// createTagged creates the task of a tagged line and queues its token.
func (p *pass) createTagged(d *doc, line int, text string) {
	if pc, ok := p.pendingByLine(d.path, text, false); ok {
		p.adopt(d, line, text, taskline.WithTaskID(text, pc.RemoteID), pc)
		d.created = append(d.created, linked{line: line, id: pc.RemoteID})
		return
	}
	l, _ := taskline.Parse(text)
	projectID, err := p.defaultProject(d.path)
	if err != nil {
		p.skip(d.path, l.Title, "resolve default project", err)
		return
	}
	t, err := p.create(d.path, projectID, service.TaskAttributes{Title: l.Title, Status: service.StatusFor(l.Checked)})
	if err != nil {
		return
	}
	d.created = append(d.created, linked{line: line, id: t.ID})
	d.edits = append(d.edits, edit{
		line:   line,
		old:    text,
		new:    taskline.WithTaskID(text, t.ID),
		id:     t.ID,
		orphan: p.pending(d, text, t.ID, projectID, "", false),
	})
}

// createItem creates an unsynced sub-item under its synced parent.
func (p *pass) createItem(d *doc, i int) {
	r := d.records[i]
	text := r.Lines[0]
	parentID := d.parentOf(i)
	if parentID == "" {
		p.e.logger.Debug("sub-item waits for its parent to sync", "path", d.path, "line", r.StartLine)
		return
	}
	parent, ok := p.snap.Task(parentID)
	if !ok {
		return
	}
	if pc, ok := p.pendingByLine(d.path, text, true); ok {
		p.adopt(d, r.StartLine, text, taskline.WithItemID(text, pc.RemoteID), pc)
		d.ids[i] = pc.RemoteID
		d.created = append(d.created, linked{line: r.StartLine, id: pc.RemoteID, parentID: parentID})
		return
	}
	l, _ := taskline.Parse(text)
	t, err := p.create(d.path, parent.ProjectID, service.TaskAttributes{
		Title:    l.Title,
		Status:   service.StatusFor(l.Checked),
		ParentID: parentID,
	})
	if err != nil {
		return
	}
	d.ids[i] = t.ID
	d.created = append(d.created, linked{line: r.StartLine, id: t.ID, parentID: parentID})
	d.edits = append(d.edits, edit{
		line:   r.StartLine,
		old:    text,
		new:    taskline.WithItemID(text, t.ID),
		id:     t.ID,
		orphan: p.pending(d, text, t.ID, parent.ProjectID, parentID, true),
	})
}

// linkUnknown handles a line whose identifier the cache does not know: it
// links an orphaned create, or an existing remote task, and otherwise
// recreates the task and swaps the identifier. Without search only
// orphans are linked.
func (p *pass) linkUnknown(d *doc, i int, search bool) {
	r := d.records[i]
	id := d.ids[i]
	text := r.Lines[0]
	item := r.Kind == filemap.KindItem

	if pc, ok := p.pendingByLine(d.path, text, item); ok {
		newText := taskline.ReplaceTaskID(text, id, pc.RemoteID)
		if item {
			newText = taskline.WithItemID(text, pc.RemoteID)
		}
		p.adopt(d, r.StartLine, text, newText, pc)
		d.ids[i] = pc.RemoteID
		return
	}
	if pc, ok := p.pendingByRemote(id); ok {
		p.adopted[pc.LocalID] = true
		p.snap.PutTask(cache.Task{
			ID:           id,
			ProjectID:    pc.ProjectID,
			ParentID:     pc.ParentID,
			Title:        taskline.Title(text),
			Status:       service.StatusFor(taskline.Checked(text)),
			LastModified: pc.CreatedAt,
		})
		p.snap.RemovePending(pc.LocalID)
		p.report.notice(Notice{Kind: NoticeAdopted, Path: d.path, TaskID: id, Title: taskline.Title(text)})
		return
	}
	if !search {
		return
	}

	t, found, complete := p.findRemote(d.path, id)
	if found {
		p.putRemote(t)
		p.e.logger.Info("linked existing remote task", "path", d.path, "id", id)
		return
	}
	if !complete {
		return
	}

	l, _ := taskline.Parse(text)
	attrs := service.TaskAttributes{Title: l.Title, Status: service.StatusFor(l.Checked)}
	var projectID string
	if item {
		attrs.ParentID = d.parentOf(i)
		parent, ok := p.snap.Task(attrs.ParentID)
		if attrs.ParentID == "" || !ok {
			return
		}
		projectID = parent.ProjectID
	} else {
		var err error
		if projectID, err = p.defaultProject(d.path); err != nil {
			p.skip(d.path, l.Title, "resolve default project", err)
			return
		}
	}
	created, err := p.create(d.path, projectID, attrs)
	if err != nil {
		return
	}
	newText := taskline.ReplaceTaskID(text, id, created.ID)
	if item {
		newText = taskline.WithItemID(text, created.ID)
	}
	d.ids[i] = created.ID
	d.edits = append(d.edits, edit{
		line:   r.StartLine,
		old:    text,
		new:    newText,
		id:     created.ID,
		orphan: p.pending(d, text, created.ID, projectID, attrs.ParentID, item),
	})
}

// findRemote looks for id in the document's default project and then in
// every cached project. complete is false when some listing failed.
func (p *pass) findRemote(path, id string) (t service.Task, found, complete bool) {
	projects := make([]string, 0, len(p.snap.Projects)+1)
	if def := p.snap.DefaultProjectFor(path); def != "" {
		projects = append(projects, def)
	} else if def := p.e.env.Settings.DefaultProjectID; def != "" {
		projects = append(projects, def)
	}
	for _, pr := range p.snap.Projects {
		if !slices.Contains(projects, pr.ID) {
			projects = append(projects, pr.ID)
		}
	}
	complete = len(projects) > 0
	for _, pid := range projects {
		tasks, ok := p.listProject(pid)
		if !ok {
			complete = false
			continue
		}
		if t, ok := tasks[id]; ok {
			return t, true, true
		}
	}
	return service.Task{}, false, complete
}

// updateRecord reconciles a synced line with its cached and, when refresh
// is set, remote state. A remote change newer than the last sync wins over
// a local edit of the same task.
func (p *pass) updateRecord(d *doc, i int, refresh bool) {
	r := d.records[i]
	id := d.ids[i]
	text := r.Lines[0]
	cached, _ := p.snap.Task(id)
	l, _ := taskline.Parse(text)
	localStatus := service.StatusFor(l.Checked)
	cachedTitle := taskline.NormalizeTitle(cached.Title)
	localChanged := l.Title != cachedTitle || localStatus != cached.Status

	if refresh {
		if remote, listed := p.listProject(cached.ProjectID); listed {
			rt, found := remote[id]
			if !found {
				revert := cached
				p.snap.RemoveTask(id)
				d.unlinked[id] = true
				d.edits = append(d.edits, edit{line: r.StartLine, old: text, new: taskline.StripSync(text), id: id, revert: &revert})
				p.report.notice(Notice{Kind: NoticeRemoteDeleted, Path: d.path, TaskID: id, Title: cached.Title})
				p.e.logger.Info("task deleted remotely, unlinking line", "path", d.path, "id", id)
				return
			}

			remoteTitle := taskline.NormalizeTitle(rt.Title)
			remoteChanged := remoteTitle != cachedTitle || rt.Status != cached.Status
			localIsRemote := l.Title == remoteTitle && localStatus == rt.Status
			switch {
			case remoteChanged && localIsRemote:
				p.putRemote(rt)
				return
			case remoteChanged && !localChanged:
				p.pull(d, r, text, cached, rt, NoticePulled)
				return
			case remoteChanged && rt.Updated.After(p.since):
				p.pull(d, r, text, cached, rt, NoticeConflictOverride)
				return
			case !remoteChanged && !localChanged:
				if !rt.Updated.Equal(cached.LastModified) {
					p.putRemote(rt)
				}
				return
			}
		}
	}
	if !localChanged {
		return
	}
	_ = p.update(d.path, cached, service.TaskAttributes{Title: l.Title, Status: localStatus})
}

// pull rewrites a line to the remote state.
func (p *pass) pull(d *doc, r filemap.Record, text string, cached cache.Task, rt service.Task, kind NoticeKind) {
	revert := cached
	p.putRemote(rt)
	d.edits = append(d.edits, edit{
		line:   r.StartLine,
		old:    text,
		new:    taskline.Rewrite(text, rt.Title, rt.Completed()),
		id:     rt.ID,
		revert: &revert,
	})
	p.report.Pulled++
	p.report.notice(Notice{Kind: kind, Path: d.path, TaskID: rt.ID, Title: rt.Title})
	if kind == NoticeConflictOverride {
		p.e.logger.Warn("conflicting edits, remote version kept", "path", d.path, "id", rt.ID, "local", taskline.Title(text), "remote", rt.Title)
	} else {
		p.e.logger.Info("pulled remote change", "path", d.path, "id", rt.ID)
	}
}
