// Package tracker turns cursor movement into "this line is finished"
// signals. A line is reported only once the cursor has left it, so a task
// is never synced while it is still being typed.
package tracker

import (
	"strings"
	"sync"
)

// Change is a line the cursor just left.
type Change struct {
	Path string
	Line int
	// Text is the line's content in the current document, empty when the
	// line no longer exists.
	Text    string
	Content string
}

type state struct {
	line    int
	content string
}

// Tracker remembers the last cursor line and content per document.
type Tracker struct {
	mu   sync.Mutex
	docs map[string]state
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{docs: make(map[string]state)}
}

// Observe records the cursor at line in path with the document's current
// content. It returns the previously observed line when the cursor moved
// off it. The first observation of a document only seeds it.
func (t *Tracker) Observe(path string, line int, content string) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.docs[path]
	t.docs[path] = state{line: line, content: content}
	if !seen || prev.line == line {
		return Change{}, false
	}

	c := Change{Path: path, Line: prev.line, Content: content}
	lines := strings.Split(content, "\n")
	if prev.line >= 0 && prev.line < len(lines) {
		c.Text = lines[prev.line]
	}
	return c, true
}

// Content returns the content seen at the last observation of path.
func (t *Tracker) Content(path string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.docs[path]
	return s.content, ok
}

// Line returns the last observed cursor line of path.
func (t *Tracker) Line(path string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.docs[path]
	return s.line, ok
}

// Forget drops the state of a closed or deleted document.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docs, path)
}

// Rename moves state from old to path.
func (t *Tracker) Rename(old, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.docs[old]; ok {
		delete(t.docs, old)
		t.docs[path] = s
	}
}
