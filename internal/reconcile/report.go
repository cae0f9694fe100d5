package reconcile

import (
	"fmt"
	"time"
)

// Mode names the kind of pass that produced a report.
type Mode string

const (
	ModeLine           Mode = "line"
	ModeDocument       Mode = "document"
	ModeVault          Mode = "vault"
	ModeDeleteCheck    Mode = "delete-check"
	ModeDocumentEvent  Mode = "document-event"
	ModeProjects       Mode = "projects"
	ModeDefaultProject Mode = "default-project"
)

// NoticeKind classifies a user-visible outcome of a pass.
type NoticeKind int

const (
	// NoticeConflictOverride: both sides changed a task, the remote won.
	NoticeConflictOverride NoticeKind = iota + 1
	// NoticePulled: a remote-only change was written into the document.
	NoticePulled
	// NoticeRemoteDeleted: the task is gone remotely and was unlinked.
	NoticeRemoteDeleted
	// NoticeDuplicateID: an identifier occurs on more than one line.
	NoticeDuplicateID
	// NoticeOrphan: a created task could not be written back yet.
	NoticeOrphan
	// NoticeAdopted: a previously orphaned task was linked to its line.
	NoticeAdopted
	// NoticeSkipped: a remote operation failed after retries.
	NoticeSkipped
	// NoticeParseError: a document could not be mapped.
	NoticeParseError
	// NoticeAuthRequired: credentials were rejected.
	NoticeAuthRequired
)

// Notice is one user-visible outcome.
type Notice struct {
	Kind   NoticeKind
	Path   string
	TaskID string
	Title  string
	Err    error
}

// Report is the terminal result of one pass.
type Report struct {
	Mode     Mode
	Paths    []string
	Started  time.Time
	Finished time.Time

	Created int
	Updated int
	Deleted int
	Pulled  int

	Notices []Notice
	// Err is the error that ended the pass, if any.
	Err error
}

// Changed reports whether the pass mutated anything remotely or locally.
func (r *Report) Changed() bool {
	return r.Created+r.Updated+r.Deleted+r.Pulled > 0
}

func (r *Report) notice(n Notice) {
	r.Notices = append(r.Notices, n)
}

func (r *Report) addPath(path string) {
	for _, p := range r.Paths {
		if p == path {
			return
		}
	}
	r.Paths = append(r.Paths, path)
}

// Notices renders the user-facing messages of a report.
func Notices(r Report) []string {
	var out []string
	for _, n := range r.Notices {
		switch n.Kind {
		case NoticeConflictOverride:
			out = append(out, fmt.Sprintf("%s: %q was changed on both sides; the remote version was kept", n.Path, n.Title))
		case NoticePulled:
			out = append(out, fmt.Sprintf("%s: updated %q from remote", n.Path, n.Title))
		case NoticeRemoteDeleted:
			out = append(out, fmt.Sprintf("%s: %q was deleted remotely and is no longer synced", n.Path, n.Title))
		case NoticeDuplicateID:
			out = append(out, fmt.Sprintf("%s: task %s appears more than once; the last occurrence is used", n.Path, n.TaskID))
		case NoticeOrphan:
			out = append(out, fmt.Sprintf("%s: created %q but the document changed; the link will be restored on the next sync", n.Path, n.Title))
		case NoticeAdopted:
			out = append(out, fmt.Sprintf("%s: linked %q to its remote task", n.Path, n.Title))
		case NoticeSkipped:
			out = append(out, fmt.Sprintf("%s: could not sync %q, will retry: %v", n.Path, n.Title, n.Err))
		case NoticeParseError:
			out = append(out, fmt.Sprintf("%s: could not read task structure: %v", n.Path, n.Err))
		case NoticeAuthRequired:
			out = append(out, "Google rejected the saved credentials. Run 'gtasksync login' to sync again.")
		}
	}
	return out
}
