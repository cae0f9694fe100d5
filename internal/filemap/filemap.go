// Package filemap maps the synced tasks of one document to line spans.
//
// A Map is rebuilt from the document text and its outline on every pass and
// is never persisted. Line numbers are 0-based; EndLine is inclusive.
package filemap

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"gtasksync/internal/outline"
	"gtasksync/internal/taskline"
)

// NoParent is the ParentID of a record with no resolvable parent.
const NoParent = "none"

var (
	// ErrDuplicateID marks an identifier that occurs on more than one line.
	ErrDuplicateID = errors.New("duplicate identifier")

	// ErrUnresolvedParent marks an item whose parent line is not a synced record.
	ErrUnresolvedParent = errors.New("unresolved parent")

	// ErrUnknownTask is returned for lookups of an identifier not in the map.
	ErrUnknownTask = errors.New("unknown task")
)

// Kind distinguishes tasks from their sub-items.
type Kind int

const (
	KindTask Kind = iota
	KindItem
)

func (k Kind) String() string {
	if k == KindItem {
		return "Item"
	}
	return "Task"
}

// Record is one synced task or item and the lines it spans.
// An Item with an empty ID is a sub-item that has not been created remotely.
type Record struct {
	Kind      Kind
	ID        string
	Lines     []string
	StartLine int
	EndLine   int
	// ParentID is the identifier of the enclosing record, NoParent when there
	// is none, or empty when the enclosing record is itself not yet synced.
	ParentID string
	Heading  string

	parent int
}

// Parent returns the index of the enclosing record in Records, or -1.
func (r Record) Parent() int { return r.parent }

// MapError reports a structural problem found while mapping.
type MapError struct {
	ID    string
	Lines []int
	Err   error
}

func (e *MapError) Error() string {
	lines := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = fmt.Sprint(l)
	}
	return fmt.Sprintf("%s %q at lines %s", e.Err, e.ID, strings.Join(lines, ","))
}

func (e *MapError) Unwrap() error { return e.Err }

// Map is the task map of one document.
type Map struct {
	records   []Record
	lineCount int
	byID      map[string]int
	errs      []*MapError
	newTasks  []int
}

// Build maps text using its outline. A nil outline or one that does not fit
// the text yields an *outline.ParseError.
func Build(text string, o *outline.Outline) (*Map, error) {
	if o == nil {
		return nil, &outline.ParseError{Reason: "no outline for document", Line: -1, Err: outline.ErrOutlineUnavailable}
	}
	lines := taskline.Lines(text)
	if err := o.Validate(len(lines)); err != nil {
		return nil, err
	}

	m := &Map{
		lineCount: len(lines),
		byID:      make(map[string]int),
	}
	byStart := make(map[int]int)
	seen := make(map[string][]int)

	for _, item := range o.ListItems {
		if !item.TaskLike {
			continue
		}
		first := lines[item.StartLine]
		taskID, isTask := taskline.ExtractTaskID(first)
		itemID, isItem := taskline.ExtractItemID(first)
		if taskline.IsNewTaskLine(first) {
			m.newTasks = append(m.newTasks, item.StartLine)
			continue
		}
		if !isTask && !isItem && !taskline.IsContinuationLine(first) {
			continue
		}

		rec := Record{
			Kind:      KindItem,
			ID:        itemID,
			Lines:     append([]string(nil), lines[item.StartLine:item.EndLine+1]...),
			StartLine: item.StartLine,
			EndLine:   item.EndLine,
			ParentID:  NoParent,
			Heading:   headingFor(o.Headings, item.StartLine),
			parent:    -1,
		}
		if isTask {
			rec.Kind = KindTask
			rec.ID = taskID
		}

		if item.Parent != outline.NoParent {
			if pi, ok := byStart[item.Parent]; ok {
				rec.parent = pi
				rec.ParentID = m.records[pi].ID
			}
		}
		if rec.Kind == KindItem && rec.parent < 0 {
			m.errs = append(m.errs, &MapError{ID: rec.ID, Lines: []int{rec.StartLine}, Err: ErrUnresolvedParent})
		}

		idx := len(m.records)
		m.records = append(m.records, rec)
		byStart[rec.StartLine] = idx
		if rec.ID != "" {
			m.byID[rec.ID] = idx
			seen[rec.ID] = append(seen[rec.ID], rec.StartLine)
		}
	}

	dups := make([]string, 0)
	for id, at := range seen {
		if len(at) > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	for _, id := range dups {
		m.errs = append(m.errs, &MapError{ID: id, Lines: seen[id], Err: ErrDuplicateID})
	}
	return m, nil
}

func headingFor(headings []outline.Heading, line int) string {
	for i := len(headings) - 1; i >= 0; i-- {
		if line >= headings[i].StartLine {
			return headings[i].Title
		}
	}
	return ""
}

// Records returns the records in document order.
func (m *Map) Records() []Record {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Record returns the record for id. When id occurs more than once the last
// occurrence wins.
func (m *Map) Record(id string) (Record, bool) {
	i, ok := m.byID[id]
	if !ok {
		return Record{}, false
	}
	return m.records[i], true
}

// NewTaskLines returns the lines of tagged checkbox items that have no
// identifier yet. Text outside list items, such as code blocks, is never
// reported.
func (m *Map) NewTaskLines() []int { return slices.Clone(m.newTasks) }

// IsNewTaskLine reports whether line is one of NewTaskLines.
func (m *Map) IsNewTaskLine(line int) bool { return slices.Contains(m.newTasks, line) }

// Errors returns duplicate-identifier and unresolved-parent conditions.
func (m *Map) Errors() []*MapError { return m.errs }

// LineCount is the number of lines in the mapped text.
func (m *Map) LineCount() int { return m.lineCount }

// LastLine is the insertion point at the end of the document.
func (m *Map) LastLine() int { return m.lineCount }

// TaskIDs returns the distinct task identifiers in document order.
func (m *Map) TaskIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, r := range m.records {
		if r.Kind == KindTask && !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Children returns the direct children of the record with id.
func (m *Map) Children(id string) []Record {
	i, ok := m.byID[id]
	if !ok {
		return nil
	}
	var out []Record
	for _, r := range m.records[i+1:] {
		if r.parent == i {
			out = append(out, r)
		}
	}
	return out
}

// DescendantItemIDs returns the identifiers of every synced item below id.
func (m *Map) DescendantItemIDs(id string) []string {
	i, ok := m.byID[id]
	if !ok {
		return nil
	}
	var ids []string
	m.walk(i, func(j int) {
		if r := m.records[j]; r.Kind == KindItem && r.ID != "" {
			ids = append(ids, r.ID)
		}
	})
	return ids
}

func (m *Map) walk(i int, fn func(int)) {
	for j := i + 1; j < len(m.records); j++ {
		if m.records[j].parent == i {
			fn(j)
			m.walk(j, fn)
		}
	}
}

func (m *Map) subtreeEnd(i int) int {
	end := m.records[i].EndLine
	m.walk(i, func(j int) {
		if e := m.records[j].EndLine; e > end {
			end = e
		}
	})
	return end
}

// InsertEndLineForTask returns the line just past the task and all of its
// descendants, however deeply nested.
func (m *Map) InsertEndLineForTask(id string) (int, error) {
	i, ok := m.byID[id]
	if !ok || m.records[i].Kind != KindTask {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return m.subtreeEnd(i) + 1, nil
}

// InsertionLine returns where a new task belongs: after the last task and
// its subtree, and never before the end of any mapped record. Documents
// without tasks insert at the end.
func (m *Map) InsertionLine() int {
	last := -1
	for i, r := range m.records {
		if r.Kind == KindTask && (last < 0 || r.EndLine >= m.records[last].EndLine) {
			last = i
		}
	}
	if last < 0 {
		return m.lineCount
	}
	line := m.subtreeEnd(last) + 1
	for _, r := range m.records {
		if r.EndLine+1 > line {
			line = r.EndLine + 1
		}
	}
	return line
}

// ParentLine returns the first line of the record with id, or -1.
func (m *Map) ParentLine(id string) int {
	i, ok := m.byID[id]
	if !ok {
		return -1
	}
	return m.records[i].StartLine
}

// ParentInsertPoint returns the last line of the record's subtree, after
// which a new child line goes, or -1 if id is unknown.
func (m *Map) ParentInsertPoint(id string) int {
	i, ok := m.byID[id]
	if !ok {
		return -1
	}
	return m.subtreeEnd(i)
}

// ParentIndent returns the leading whitespace of the record's first line.
func (m *Map) ParentIndent(id string) string {
	i, ok := m.byID[id]
	if !ok {
		return ""
	}
	first := m.records[i].Lines[0]
	return first[:len(first)-len(strings.TrimLeft(first, " \t"))]
}
