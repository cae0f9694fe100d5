// Package outline describes the structural view of a markdown document
// (headings and list items with line spans) and validates it before the
// task mapper consumes it.
package outline

import (
	"errors"
	"fmt"
)

// NoParent is the Parent value of a top-level list item.
const NoParent = -1

// ErrOutlineUnavailable is returned when no outline could be obtained for a document.
var ErrOutlineUnavailable = errors.New("outline unavailable")

// Heading is a section heading. Lines are 0-based and inclusive.
type Heading struct {
	Title     string
	StartLine int
	EndLine   int
}

// ListItem is a list entry. Parent is the StartLine of the enclosing list
// item, or NoParent.
type ListItem struct {
	StartLine int
	EndLine   int
	Parent    int
	TaskLike  bool
}

// Outline is the typed outline of one document.
type Outline struct {
	Headings  []Heading
	ListItems []ListItem
}

// ParseError reports an outline whose shape does not fit the document.
type ParseError struct {
	Reason string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Validate checks that every span lies inside a document of lineCount lines,
// that entries are in document order and that parents precede children.
func (o Outline) Validate(lineCount int) error {
	inRange := func(l int) bool { return l >= 0 && l < lineCount }

	prev := -1
	for _, h := range o.Headings {
		if !inRange(h.StartLine) || !inRange(h.EndLine) || h.StartLine > h.EndLine {
			return &ParseError{Reason: fmt.Sprintf("heading %q spans %d-%d outside document", h.Title, h.StartLine, h.EndLine), Line: h.StartLine}
		}
		if h.StartLine < prev {
			return &ParseError{Reason: "headings out of order", Line: h.StartLine}
		}
		prev = h.StartLine
	}

	prev = -1
	for _, it := range o.ListItems {
		if !inRange(it.StartLine) || !inRange(it.EndLine) || it.StartLine > it.EndLine {
			return &ParseError{Reason: fmt.Sprintf("list item spans %d-%d outside document", it.StartLine, it.EndLine), Line: it.StartLine}
		}
		if it.StartLine <= prev {
			return &ParseError{Reason: "list items out of order", Line: it.StartLine}
		}
		if it.Parent != NoParent && (it.Parent < 0 || it.Parent >= it.StartLine) {
			return &ParseError{Reason: fmt.Sprintf("parent %d does not precede item", it.Parent), Line: it.StartLine}
		}
		prev = it.StartLine
	}
	return nil
}
