// Package taskline recognizes sync tokens and checkbox syntax on a single
// document line. Every function is pure and safe for concurrent use.
package taskline

import (
	"regexp"
	"strings"
)

const (
	// Tag marks a checkbox line as a new task to be created remotely.
	Tag = "#gtask"

	taskTokenPrefix = "%%[gtask_id:: "
	itemTokenPrefix = "%%[gtask_item_id:: "
	tokenSuffix     = "]%%"
)

var (
	taskIDPattern   = regexp.MustCompile(`%%\[gtask_id::\s*([A-Za-z0-9_-]+)\]%%`)
	itemIDPattern   = regexp.MustCompile(`%%\[gtask_item_id::\s*([A-Za-z0-9_-]+)\]%%`)
	anyTokenPattern = regexp.MustCompile(`\s*%%\[gtask_(?:item_)?id::\s*[A-Za-z0-9_-]+\]%%`)
	checkboxPattern = regexp.MustCompile(`^([ \t]*)([-*+]) \[([ xX])\](?:\s+(.*))?$`)
	tagPattern      = regexp.MustCompile(`(^|\s)#gtask(\s|$)`)
)

// Line is the parsed form of a checkbox line.
type Line struct {
	Indent  string
	Depth   int
	Marker  string
	Checked bool
	Title   string
	TaskID  string
	ItemID  string
	Tagged  bool
}

// Parse parses a checkbox line. It reports false for anything that is not a
// checkbox list item.
func Parse(line string) (Line, bool) {
	m := checkboxPattern.FindStringSubmatch(line)
	if m == nil {
		return Line{}, false
	}
	l := Line{
		Indent:  m[1],
		Depth:   depth(m[1]),
		Marker:  m[2],
		Checked: m[3] != " ",
		Tagged:  tagPattern.MatchString(m[4]),
	}
	l.TaskID, _ = ExtractTaskID(line)
	l.ItemID, _ = ExtractItemID(line)
	l.Title = cleanTitle(m[4])
	return l, true
}

// depth counts one level per tab and per four spaces.
func depth(indent string) int {
	d, spaces := 0, 0
	for _, r := range indent {
		switch r {
		case '\t':
			d++
			spaces = 0
		case ' ':
			spaces++
			if spaces == 4 {
				d++
				spaces = 0
			}
		}
	}
	return d
}

func cleanTitle(body string) string {
	body = anyTokenPattern.ReplaceAllString(body, " ")
	body = tagPattern.ReplaceAllString(body, "$1$2")
	return NormalizeTitle(body)
}

// NormalizeTitle collapses runs of whitespace, line breaks included, into
// single spaces. Titles read from a line are always in this form, so remote
// titles are compared and written in it too.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// splitCR separates the carriage return of a CRLF line from its text.
func splitCR(line string) (text, cr string) {
	if strings.HasSuffix(line, "\r") {
		return line[:len(line)-1], "\r"
	}
	return line, ""
}

// ExtractTaskID returns the task identifier carried by line, if any.
func ExtractTaskID(line string) (string, bool) {
	m := taskIDPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractItemID returns the item identifier carried by line, if any.
func ExtractItemID(line string) (string, bool) {
	m := itemIDPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HasToken reports whether line carries any task or item identifier.
func HasToken(line string) bool {
	return taskIDPattern.MatchString(line) || itemIDPattern.MatchString(line)
}

// HasTag reports whether line carries the new-task tag.
func HasTag(line string) bool {
	return tagPattern.MatchString(line)
}

// IsTaskLine reports whether line is a checkbox list item at any indent.
func IsTaskLine(line string) bool {
	return checkboxPattern.MatchString(line)
}

// IsContinuationLine reports whether line is a tab-indented checkbox item
// with no identifier of its own, i.e. a sub-item not yet synced.
func IsContinuationLine(line string) bool {
	return strings.HasPrefix(line, "\t") && IsTaskLine(line) && !HasToken(line)
}

// IsNewTaskLine reports whether line is a tagged top-level checkbox item
// that has not been synced yet.
func IsNewTaskLine(line string) bool {
	return IsTaskLine(line) && HasTag(line) && !HasToken(line) && !strings.HasPrefix(line, "\t")
}

// Title returns the checkbox text without tokens and tag.
func Title(line string) string {
	l, ok := Parse(line)
	if !ok {
		return ""
	}
	return l.Title
}

// Checked reports whether line is a ticked checkbox.
func Checked(line string) bool {
	l, ok := Parse(line)
	return ok && l.Checked
}

// TaskToken renders the task identifier token.
func TaskToken(id string) string { return taskTokenPrefix + id + tokenSuffix }

// ItemToken renders the item identifier token.
func ItemToken(id string) string { return itemTokenPrefix + id + tokenSuffix }

// WithTaskID appends the task token to line, replacing any existing one.
func WithTaskID(line, id string) string {
	if old, ok := ExtractTaskID(line); ok {
		return ReplaceTaskID(line, old, id)
	}
	text, cr := splitCR(line)
	return strings.TrimRight(text, " \t") + " " + TaskToken(id) + cr
}

// WithItemID appends the item token to line, replacing any existing one.
func WithItemID(line, id string) string {
	if loc := itemIDPattern.FindStringIndex(line); loc != nil {
		return line[:loc[0]] + ItemToken(id) + line[loc[1]:]
	}
	text, cr := splitCR(line)
	return strings.TrimRight(text, " \t") + " " + ItemToken(id) + cr
}

// ReplaceTaskID swaps the task identifier old for id. Lines carrying a
// different identifier are returned unchanged.
func ReplaceTaskID(line, old, id string) string {
	loc := taskIDPattern.FindStringSubmatchIndex(line)
	if loc == nil || line[loc[2]:loc[3]] != old {
		return line
	}
	return line[:loc[0]] + TaskToken(id) + line[loc[1]:]
}

// Rewrite replaces the title and checkbox state of line, keeping its
// indent, marker, tag and identifiers. The title is normalized so that it
// stays on one line.
func Rewrite(line, title string, checked bool) string {
	text, cr := splitCR(line)
	l, ok := Parse(text)
	if !ok {
		return line
	}
	var b strings.Builder
	b.WriteString(l.Indent)
	b.WriteString(l.Marker)
	if checked {
		b.WriteString(" [x] ")
	} else {
		b.WriteString(" [ ] ")
	}
	b.WriteString(NormalizeTitle(title))
	if l.Tagged {
		b.WriteString(" " + Tag)
	}
	if l.TaskID != "" {
		b.WriteString(" " + TaskToken(l.TaskID))
	}
	if l.ItemID != "" {
		b.WriteString(" " + ItemToken(l.ItemID))
	}
	b.WriteString(cr)
	return b.String()
}

// StripSync removes identifiers and the tag, leaving a plain checkbox.
func StripSync(line string) string {
	text, cr := splitCR(line)
	text = anyTokenPattern.ReplaceAllString(text, "")
	text = tagPattern.ReplaceAllString(text, "$2")
	return strings.TrimRight(text, " \t") + cr
}

// Lines splits document text into lines. A trailing newline yields a final
// empty line, matching how editors number lines.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}
