package reconcile

import (
	"slices"
	"sort"
	"strings"

	"gtasksync/internal/cache"
	"gtasksync/internal/filemap"
	"gtasksync/internal/taskline"
)

// writeBack applies the queued line edits to the document as it is now.
// An edit lands on its original line when that line is unchanged, else on
// the single line elsewhere with the same text. Edits that cannot land are
// dropped: created tasks become pending creates and remote-wins rewrites
// are reverted in the cache so the next pass sees them again.
func (p *pass) writeBack(d *doc) {
	if len(d.edits) == 0 {
		return
	}
	if !p.e.isLoaded() {
		p.e.logger.Info("engine unloaded, deferring document changes", "path", d.path)
		p.dropEdits(d, d.edits)
		return
	}
	current, err := p.e.docs.Read(d.path)
	if err != nil {
		p.e.logger.Warn("cannot re-read document for write-back", "path", d.path, "err", err)
		p.dropEdits(d, d.edits)
		return
	}

	lines := taskline.Lines(current)
	var applied, failed []edit
	for _, ed := range d.edits {
		i := locate(lines, ed.line, ed.old)
		if i < 0 {
			failed = append(failed, ed)
			continue
		}
		lines[i] = ed.new
		applied = append(applied, ed)
	}
	if len(applied) > 0 {
		updated := strings.Join(lines, "\n")
		if err := p.e.docs.Write(d.path, updated); err != nil {
			p.e.logger.Warn("document write failed", "path", d.path, "err", err)
			failed = append(failed, applied...)
			applied = nil
		} else {
			p.texts[d.path] = updated
		}
	}
	for _, ed := range applied {
		if ed.adopts != "" {
			p.snap.RemovePending(ed.adopts)
		}
	}
	p.dropEdits(d, failed)
}

func locate(lines []string, line int, old string) int {
	if line >= 0 && line < len(lines) && lines[line] == old {
		return line
	}
	found := -1
	for i, l := range lines {
		if l != old {
			continue
		}
		if found >= 0 {
			return -1
		}
		found = i
	}
	return found
}

func (p *pass) dropEdits(d *doc, edits []edit) {
	for _, ed := range edits {
		switch {
		case ed.orphan != nil:
			p.snap.AddPending(*ed.orphan)
			d.orphaned[ed.id] = true
			p.report.notice(Notice{Kind: NoticeOrphan, Path: d.path, TaskID: ed.id, Title: taskline.Title(ed.old)})
			p.e.logger.Warn("created task could not be written back, tracking it as pending", "path", d.path, "id", ed.id)
		case ed.adopts != "":
			d.orphaned[ed.id] = true
		case ed.revert != nil:
			p.snap.PutTask(*ed.revert)
			delete(d.unlinked, ed.id)
		}
	}
}

// rebuildMeta replaces the document's metadata with the tasks it holds
// after the pass. Tasks whose remote delete failed stay recorded so the
// delete is retried. Tasks now in this document are dropped from any other
// document's metadata.
func (p *pass) rebuildMeta(d *doc) {
	type entry struct {
		line int
		ref  cache.TaskRef
	}
	var entries []*entry
	byTask := make(map[string]*entry)
	addTask := func(id string, line int) {
		if _, ok := byTask[id]; ok {
			return
		}
		e := &entry{line: line, ref: cache.TaskRef{TaskID: id, TaskItems: []string{}}}
		entries = append(entries, e)
		byTask[id] = e
	}
	keep := func(id string) bool {
		if d.unlinked[id] || d.orphaned[id] {
			return false
		}
		_, cached := p.snap.Task(id)
		return cached
	}

	for i, r := range d.records {
		if id, ok := d.ids[i]; ok && r.Kind == filemap.KindTask && keep(id) {
			addTask(id, r.StartLine)
		}
	}
	for _, c := range d.created {
		if c.parentID == "" && keep(c.id) {
			addTask(c.id, c.line)
		}
	}
	for i, r := range d.records {
		id, ok := d.ids[i]
		if !ok || r.Kind != filemap.KindItem || !keep(id) {
			continue
		}
		root := ""
		if ri := d.rootTask(i); ri >= 0 {
			root = d.ids[ri]
		}
		if root == "" {
			root = p.cachedRoot(id)
		}
		if e, ok := byTask[root]; ok && !slices.Contains(e.ref.TaskItems, id) {
			e.ref.TaskItems = append(e.ref.TaskItems, id)
		}
	}
	for _, ref := range d.meta.Tasks {
		if slices.Contains(d.retained, ref.TaskID) {
			addTask(ref.TaskID, len(d.lines))
		}
		e, ok := byTask[ref.TaskID]
		if !ok {
			continue
		}
		for _, item := range ref.TaskItems {
			if slices.Contains(d.retained, item) && !slices.Contains(e.ref.TaskItems, item) {
				e.ref.TaskItems = append(e.ref.TaskItems, item)
			}
		}
	}

	if len(entries) == 0 && !d.tracked {
		return
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].line < entries[b].line })

	claimed := make(map[string]bool)
	refs := make([]cache.TaskRef, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, e.ref)
		claimed[e.ref.TaskID] = true
		for _, item := range e.ref.TaskItems {
			claimed[item] = true
		}
		if t, ok := p.snap.Task(e.ref.TaskID); ok {
			t.ChildItemIDs = slices.Clone(e.ref.TaskItems)
			p.snap.PutTask(t)
		}
	}
	p.claim(d.path, claimed)

	meta, _ := p.snap.Document(d.path)
	meta = copyMeta(meta)
	meta.Tasks = refs
	p.snap.PutDocument(d.path, meta)
}

// cachedRoot follows cached parent links from id up to its top-level task.
func (p *pass) cachedRoot(id string) string {
	seen := make(map[string]bool)
	for !seen[id] {
		seen[id] = true
		t, ok := p.snap.Task(id)
		if !ok {
			return ""
		}
		if t.ParentID == "" {
			return t.ID
		}
		id = t.ParentID
	}
	return ""
}

// claim removes identifiers held by path from every other document.
func (p *pass) claim(path string, ids map[string]bool) {
	for other, meta := range p.snap.Documents {
		if other == path {
			continue
		}
		changed := false
		meta = copyMeta(meta)
		refs := meta.Tasks[:0]
		for _, ref := range meta.Tasks {
			if ids[ref.TaskID] {
				changed = true
				continue
			}
			n := len(ref.TaskItems)
			ref.TaskItems = slices.DeleteFunc(ref.TaskItems, func(id string) bool { return ids[id] })
			changed = changed || len(ref.TaskItems) != n
			refs = append(refs, ref)
		}
		if changed {
			meta.Tasks = refs
			p.snap.PutDocument(other, meta)
		}
	}
}

// linkMeta records one identifier in the document's metadata without
// touching the rest of it. Items are added to the task that owns parentID.
func (p *pass) linkMeta(path, id, parentID string) {
	meta, _ := p.snap.Document(path)
	meta = copyMeta(meta)
	if parentID == "" {
		for _, ref := range meta.Tasks {
			if ref.TaskID == id {
				return
			}
		}
		meta.Tasks = append(meta.Tasks, cache.TaskRef{TaskID: id, TaskItems: []string{}})
		p.snap.PutDocument(path, meta)
		return
	}
	for i, ref := range meta.Tasks {
		if ref.TaskID != parentID && !slices.Contains(ref.TaskItems, parentID) {
			continue
		}
		if !slices.Contains(ref.TaskItems, id) {
			meta.Tasks[i].TaskItems = append(meta.Tasks[i].TaskItems, id)
			if t, ok := p.snap.Task(ref.TaskID); ok {
				t.ChildItemIDs = slices.Clone(meta.Tasks[i].TaskItems)
				p.snap.PutTask(t)
			}
		}
		p.snap.PutDocument(path, meta)
		return
	}
	p.e.logger.Debug("parent not recorded for document, item not linked", "path", path, "id", id, "parent", parentID)
}

// syncLine is single-line mode: the line the cursor just left is created,
// pushed or linked. Deletions are left to DeletedTaskCheck.
func (p *pass) syncLine(path string, lineNum int, lineText, content string) error {
	p.report.addPath(path)
	if strings.TrimSpace(lineText) == "" {
		return nil
	}
	d, err := p.collect(path, content)
	if err != nil {
		return nil
	}

	p.e.setState(DiffingAgainstCache)
	i := d.recordAt(lineNum)
	if i >= 0 && d.records[i].Lines[0] != lineText {
		i = -1
	}

	p.e.setState(ApplyingRemoteMutations)
	linkedRecord := false
	switch {
	case taskline.IsNewTaskLine(lineText) && d.m.IsNewTaskLine(lineNum):
		p.createTagged(d, lineNum, lineText)
	case i < 0:
		p.e.logger.Debug("line is not a synced task", "path", path, "line", lineNum)
	case d.records[i].ID == "" && d.records[i].Kind == filemap.KindItem:
		p.createItem(d, i)
	case d.ids[i] != "":
		if _, cached := p.snap.Task(d.ids[i]); cached {
			p.updateRecord(d, i, false)
		} else {
			p.linkUnknown(d, i, false)
			linkedRecord = true
		}
	}

	p.e.setState(ApplyingLocalMutations)
	p.writeBack(d)
	for _, c := range d.created {
		if !d.orphaned[c.id] {
			p.linkMeta(path, c.id, c.parentID)
		}
	}
	if linkedRecord && !d.orphaned[d.ids[i]] {
		if t, ok := p.snap.Task(d.ids[i]); ok {
			p.linkMeta(path, t.ID, t.ParentID)
		}
	}
	return nil
}
