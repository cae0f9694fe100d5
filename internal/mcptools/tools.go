// Package mcptools exposes the sync daemon to an editor host over MCP. The
// host reports cursor moves, deletions and renames; the tools turn them into
// daemon events and answer with the resulting pass report.
package mcptools

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"gtasksync/internal/daemon"
	"gtasksync/internal/events"
	"gtasksync/internal/filemap"
	"gtasksync/internal/outline"
	"gtasksync/internal/output"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/vault"
)

// Host is the daemon as seen by the tools.
type Host interface {
	Handle(ctx context.Context, ev events.Event) (*reconcile.Report, error)
	SetActive(path string)
	Stats() daemon.Stats
}

// DocumentSyncer syncs one document regardless of focus.
type DocumentSyncer interface {
	SyncDocument(ctx context.Context, path string) (*reconcile.Report, error)
}

// Documents reads vault documents by vault-relative path.
type Documents interface {
	Read(path string) (string, error)
	Rel(path string) (string, error)
	Exists(path string) bool
}

// Register adds every sync tool to the MCP server.
func Register(s *server.MCPServer, host Host, syncer DocumentSyncer, docs Documents) {
	s.AddTool(mapDocumentTool(), mapDocumentHandler(docs))
	s.AddTool(cursorMovedTool(), cursorMovedHandler(host, docs))
	s.AddTool(linesDeletedTool(), linesDeletedHandler(host, docs))
	s.AddTool(documentRenamedTool(), documentRenamedHandler(host, docs))
	s.AddTool(documentDeletedTool(), documentDeletedHandler(host, docs))
	s.AddTool(setActiveTool(), setActiveHandler(host, docs))
	s.AddTool(syncDocumentTool(), syncDocumentHandler(syncer, docs))
	s.AddTool(syncVaultTool(), syncVaultHandler(host))
	s.AddTool(statusTool(), statusHandler(host))
}

// --- map_document ---

func mapDocumentTool() mcp.Tool {
	return mcp.NewTool("map_document",
		mcp.WithDescription("Return the synced tasks and items of a document as JSON, with their line ranges and parents."),
		mcp.WithString("path",
			mcp.Description("Document path, relative to the vault or absolute"),
			mcp.Required(),
		),
	)
}

func mapDocumentHandler(docs Documents) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := docPath(docs, req.GetString("path", ""))
		if err != nil {
			return toolError(err)
		}
		text, err := docs.Read(path)
		if err != nil {
			return toolError(err)
		}
		o, err := outline.Parse([]byte(text))
		if err != nil {
			return toolError(err)
		}
		m, err := filemap.Build(text, &o)
		if err != nil {
			return toolError(err)
		}
		var buf bytes.Buffer
		if err := output.FormatMap(&buf, path, m); err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}

// --- cursor_moved ---

func cursorMovedTool() mcp.Tool {
	return mcp.NewTool("cursor_moved",
		mcp.WithDescription("Report the cursor line in the active document. Leaving an edited task line syncs it."),
		mcp.WithString("path",
			mcp.Description("Document path"),
			mcp.Required(),
		),
		mcp.WithNumber("line",
			mcp.Description("Zero-based cursor line"),
			mcp.Required(),
		),
	)
}

func cursorMovedHandler(host Host, docs Documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return interaction(ctx, host, docs, req, false)
	}
}

// --- lines_deleted ---

func linesDeletedTool() mcp.Tool {
	return mcp.NewTool("lines_deleted",
		mcp.WithDescription("Report that text was removed from a document. Tasks whose tokens disappeared are deleted remotely."),
		mcp.WithString("path",
			mcp.Description("Document path"),
			mcp.Required(),
		),
		mcp.WithNumber("line",
			mcp.Description("Zero-based cursor line after the deletion"),
		),
	)
}

func linesDeletedHandler(host Host, docs Documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return interaction(ctx, host, docs, req, true)
	}
}

func interaction(ctx context.Context, host Host, docs Documents, req mcp.CallToolRequest, deletion bool) (*mcp.CallToolResult, error) {
	path, err := docPath(docs, req.GetString("path", ""))
	if err != nil {
		return toolError(err)
	}
	line := req.GetInt("line", 0)
	if line < 0 {
		return toolError(fmt.Errorf("line must not be negative"))
	}
	content, err := docs.Read(path)
	if err != nil {
		return toolError(err)
	}
	return report(host.Handle(ctx, events.Event{
		Kind:     events.InteractionOccurred,
		Path:     path,
		Line:     line,
		Content:  content,
		Deletion: deletion,
	}))
}

// --- document_renamed ---

func documentRenamedTool() mcp.Tool {
	return mcp.NewTool("document_renamed",
		mcp.WithDescription("Report that a document was renamed or moved inside the vault."),
		mcp.WithString("old_path",
			mcp.Description("Previous document path"),
			mcp.Required(),
		),
		mcp.WithString("path",
			mcp.Description("New document path"),
			mcp.Required(),
		),
	)
}

func documentRenamedHandler(host Host, docs Documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		oldPath, err := vaultPath(docs, req.GetString("old_path", ""))
		if err != nil {
			return toolError(err)
		}
		path, err := vaultPath(docs, req.GetString("path", ""))
		if err != nil {
			return toolError(err)
		}
		return report(host.Handle(ctx, events.Event{Kind: events.DocumentRenamed, OldPath: oldPath, Path: path}))
	}
}

// --- document_deleted ---

func documentDeletedTool() mcp.Tool {
	return mcp.NewTool("document_deleted",
		mcp.WithDescription("Report that a document was deleted. Its remote tasks are kept."),
		mcp.WithString("path",
			mcp.Description("Deleted document path"),
			mcp.Required(),
		),
	)
}

func documentDeletedHandler(host Host, docs Documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := vaultPath(docs, req.GetString("path", ""))
		if err != nil {
			return toolError(err)
		}
		return report(host.Handle(ctx, events.Event{Kind: events.DocumentDeleted, Path: path}))
	}
}

// --- set_active ---

func setActiveTool() mcp.Tool {
	return mcp.NewTool("set_active",
		mcp.WithDescription("Mark the document open in the editor. Polling skips it while it is active."),
		mcp.WithString("path",
			mcp.Description("Active document path; empty clears it"),
		),
	)
}

func setActiveHandler(host Host, docs Documents) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := req.GetString("path", "")
		if raw == "" {
			host.SetActive("")
			return mcp.NewToolResultText("ok"), nil
		}
		path, err := docPath(docs, raw)
		if err != nil {
			return toolError(err)
		}
		host.SetActive(path)
		return mcp.NewToolResultText("ok"), nil
	}
}

// --- sync_document ---

func syncDocumentTool() mcp.Tool {
	return mcp.NewTool("sync_document",
		mcp.WithDescription("Sync one document with Google Tasks now."),
		mcp.WithString("path",
			mcp.Description("Document path"),
			mcp.Required(),
		),
	)
}

func syncDocumentHandler(syncer DocumentSyncer, docs Documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := docPath(docs, req.GetString("path", ""))
		if err != nil {
			return toolError(err)
		}
		return report(syncer.SyncDocument(ctx, path))
	}
}

// --- sync_vault ---

func syncVaultTool() mcp.Tool {
	return mcp.NewTool("sync_vault",
		mcp.WithDescription("Sync every tracked document with Google Tasks now."),
	)
}

func syncVaultHandler(host Host) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return report(host.Handle(ctx, events.Event{Kind: events.ManualTrigger}))
	}
}

// --- status ---

func statusTool() mcp.Tool {
	return mcp.NewTool("status",
		mcp.WithDescription("Show pass counters of the running daemon."),
	)
}

func statusHandler(host Host) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := host.Stats()
		var sb strings.Builder
		fmt.Fprintf(&sb, "started: %s\n", formatTime(st.StartedAt))
		fmt.Fprintf(&sb, "last sync: %s\n", formatTime(st.LastSync))
		fmt.Fprintf(&sb, "passes: %d, failed: %d, coalesced: %d\n", st.SyncCount, st.ErrorCount, st.Coalesced)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- helpers ---

func report(r *reconcile.Report, err error) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if r != nil {
		output.FormatReport(&buf, *r)
	}
	if err != nil {
		if buf.Len() > 0 {
			return mcp.NewToolResultError(buf.String() + "error: " + err.Error()), nil
		}
		return toolError(err)
	}
	if r == nil {
		return mcp.NewToolResultText("no change"), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// docPath resolves an existing document.
func docPath(docs Documents, raw string) (string, error) {
	path, err := vaultPath(docs, raw)
	if err != nil {
		return "", err
	}
	if !docs.Exists(path) {
		return "", fmt.Errorf("document not found: %s", raw)
	}
	return path, nil
}

// vaultPath turns a vault-relative or absolute path into a vault path
// without requiring the document to exist.
func vaultPath(docs Documents, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(raw) {
		return docs.Rel(raw)
	}
	clean := filepath.ToSlash(filepath.Clean(raw))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", vault.ErrOutsideVault, raw)
	}
	return clean, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
