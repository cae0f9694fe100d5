package outline

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"gtasksync/internal/taskline"
)

var markdown = goldmark.New()

// Parse builds the outline of a markdown document from its AST.
// List item spans cover the item's own content; nested lists are reported
// as separate items whose Parent points at the enclosing item.
func Parse(source []byte) (Outline, error) {
	doc := markdown.Parser().Parse(text.NewReader(source))
	lines := bytes.Split(source, []byte("\n"))

	var o Outline
	lastItem := -1
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			start, end, ok := span(node, source)
			if !ok {
				return ast.WalkSkipChildren, nil
			}
			o.Headings = append(o.Headings, Heading{
				Title:     headingTitle(node, source),
				StartLine: start,
				EndLine:   end,
			})
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			start, end, ok := itemSpan(node, source)
			if !ok || start <= lastItem {
				return ast.WalkContinue, nil
			}
			lastItem = start
			o.ListItems = append(o.ListItems, ListItem{
				StartLine: start,
				EndLine:   end,
				Parent:    parentLine(node, source),
				TaskLike:  taskline.IsTaskLine(string(lines[start])),
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Outline{}, &ParseError{Reason: "walk markdown", Line: -1, Err: err}
	}
	if err := o.Validate(len(lines)); err != nil {
		return Outline{}, err
	}
	return o, nil
}

func parentLine(item *ast.ListItem, source []byte) int {
	list := item.Parent()
	if list == nil {
		return NoParent
	}
	p, ok := list.Parent().(*ast.ListItem)
	if !ok {
		return NoParent
	}
	start, _, ok := itemSpan(p, source)
	if !ok {
		return NoParent
	}
	return start
}

// itemSpan returns the lines of an item's own blocks, skipping nested lists.
func itemSpan(item *ast.ListItem, source []byte) (int, int, bool) {
	start, end := -1, -1
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() == ast.KindList {
			continue
		}
		s, e, ok := span(c, source)
		if !ok {
			continue
		}
		if start < 0 {
			start = s
		}
		end = e
	}
	return start, end, start >= 0
}

func span(n ast.Node, source []byte) (int, int, bool) {
	segs := n.Lines()
	if segs == nil || segs.Len() == 0 {
		return 0, 0, false
	}
	first := segs.At(0)
	last := segs.At(segs.Len() - 1)
	return lineOf(source, first.Start), lineOf(source, last.Start), true
}

func lineOf(source []byte, offset int) int {
	if offset > len(source) {
		offset = len(source)
	}
	return bytes.Count(source[:offset], []byte{'\n'})
}

func headingTitle(h *ast.Heading, source []byte) string {
	var b strings.Builder
	segs := h.Lines()
	for i := 0; i < segs.Len(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		seg := segs.At(i)
		b.Write(bytes.TrimSpace(seg.Value(source)))
	}
	return strings.TrimSpace(b.String())
}
