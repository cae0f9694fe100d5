// Package output provides formatters for CLI output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gtasksync/internal/cache"
	"gtasksync/internal/filemap"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/taskline"
)

const (
	// ListSeparator is the separator line for group sections.
	ListSeparator = "------------"
)

// FormatReport writes a one-line summary of a pass followed by its notices.
// Format: "{MODE}: {N} document(s), {C} created, {U} updated, {D} deleted, {P} pulled\n"
func FormatReport(w io.Writer, r reconcile.Report) {
	docs := "documents"
	if len(r.Paths) == 1 {
		docs = "document"
	}
	fmt.Fprintf(w, "%s: %d %s, %d created, %d updated, %d deleted, %d pulled\n",
		r.Mode, len(r.Paths), docs, r.Created, r.Updated, r.Deleted, r.Pulled)
	for _, n := range reconcile.Notices(r) {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

// FormatGroupHeader formats a project group section header.
func FormatGroupHeader(w io.Writer, name string) {
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, normalizeListTitle(name))
	fmt.Fprintln(w, ListSeparator)
}

// FormatProject formats a project line for the projects command.
// Format: "{TITLE} ({ID})[ [default]]\n"
func FormatProject(w io.Writer, p cache.Project, isDefault bool) {
	title := normalizeListTitle(p.Name) + " (" + p.ID + ")"
	if isDefault {
		title += " [default]"
	}
	fmt.Fprintln(w, title)
}

// FormatProjects writes projects grouped by project group. Ungrouped
// projects come first without a header.
func FormatProjects(w io.Writer, projects []cache.Project, groups []cache.ProjectGroup, defaultID string) {
	for _, p := range projects {
		if p.GroupID == "" {
			FormatProject(w, p, p.ID == defaultID)
		}
	}
	for _, g := range groups {
		header := false
		for _, p := range projects {
			if p.GroupID != g.ID {
				continue
			}
			if !header {
				FormatGroupHeader(w, g.Name)
				header = true
			}
			FormatProject(w, p, p.ID == defaultID)
		}
	}
}

type mapRecord struct {
	Kind      string   `json:"kind"`
	ID        string   `json:"id,omitempty"`
	StartLine int      `json:"startLine"`
	EndLine   int      `json:"endLine"`
	ParentID  string   `json:"parentId,omitempty"`
	Heading   string   `json:"heading,omitempty"`
	Title     string   `json:"title"`
	Lines     []string `json:"lines"`
}

type mapDocument struct {
	Path    string      `json:"path"`
	Records []mapRecord `json:"records"`
	Errors  []string    `json:"errors,omitempty"`
}

// FormatMap writes the task map of a document as indented JSON.
func FormatMap(w io.Writer, path string, m *filemap.Map) error {
	doc := mapDocument{Path: path, Records: []mapRecord{}}
	for _, r := range m.Records() {
		title := ""
		if len(r.Lines) > 0 {
			title = normalizeTitle(taskline.Title(r.Lines[0]))
		}
		doc.Records = append(doc.Records, mapRecord{
			Kind:      r.Kind.String(),
			ID:        r.ID,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			ParentID:  r.ParentID,
			Heading:   r.Heading,
			Title:     title,
			Lines:     r.Lines,
		})
	}
	for _, err := range m.Errors() {
		doc.Errors = append(doc.Errors, err.Error())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	// Replace newlines with spaces
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	// Trim and check for empty
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

// normalizeListTitle normalizes a project title for display.
// Empty or whitespace-only titles become "(untitled)".
func normalizeListTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
