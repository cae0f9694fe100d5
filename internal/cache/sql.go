package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func load(db *sql.DB) (Snapshot, error) {
	snap := NewSnapshot()

	meta := make(map[string]string)
	err := queryEach(db, "SELECT key, value FROM meta", func(rows *sql.Rows) error {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		meta[k] = v
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query meta: %w", err)
	}
	snap.Version = meta["version"]
	snap.Settings.DefaultProjectID = meta["default_project_id"]
	snap.Settings.LastSyncAt = parseTime(meta["last_sync_at"])

	err = queryEach(db, "SELECT id, name, group_id FROM projects ORDER BY ord", func(rows *sql.Rows) error {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.GroupID); err != nil {
			return err
		}
		snap.Projects = append(snap.Projects, p)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query projects: %w", err)
	}

	err = queryEach(db, "SELECT id, name FROM project_groups ORDER BY ord", func(rows *sql.Rows) error {
		var g ProjectGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return err
		}
		snap.ProjectGroups = append(snap.ProjectGroups, g)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query project groups: %w", err)
	}

	err = queryEach(db, "SELECT id, project_id, parent_id, title, status, last_modified, child_item_ids FROM tasks ORDER BY ord", func(rows *sql.Rows) error {
		var t Task
		var modified, children string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.ParentID, &t.Title, &t.Status, &modified, &children); err != nil {
			return err
		}
		t.LastModified = parseTime(modified)
		if err := json.Unmarshal([]byte(children), &t.ChildItemIDs); err != nil {
			return fmt.Errorf("task %s children: %w", t.ID, err)
		}
		snap.Tasks = append(snap.Tasks, t)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query tasks: %w", err)
	}

	err = queryEach(db, "SELECT path, default_project_id FROM documents", func(rows *sql.Rows) error {
		var path string
		var d DocumentMeta
		if err := rows.Scan(&path, &d.DefaultProjectID); err != nil {
			return err
		}
		d.Tasks = []TaskRef{}
		snap.Documents[path] = d
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query documents: %w", err)
	}

	err = queryEach(db, "SELECT path, task_id, task_items FROM document_tasks ORDER BY path, ord", func(rows *sql.Rows) error {
		var path, items string
		var ref TaskRef
		if err := rows.Scan(&path, &ref.TaskID, &items); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(items), &ref.TaskItems); err != nil {
			return fmt.Errorf("document %s task %s items: %w", path, ref.TaskID, err)
		}
		d := snap.Documents[path]
		d.Tasks = append(d.Tasks, ref)
		d.TaskCount = len(d.Tasks)
		snap.Documents[path] = d
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query document tasks: %w", err)
	}

	err = queryEach(db, "SELECT local_id, path, line_text, remote_id, project_id, parent_id, item, created_at FROM pending_creates ORDER BY created_at", func(rows *sql.Rows) error {
		var p PendingCreate
		var created string
		if err := rows.Scan(&p.LocalID, &p.Path, &p.LineText, &p.RemoteID, &p.ProjectID, &p.ParentID, &p.Item, &created); err != nil {
			return err
		}
		p.CreatedAt = parseTime(created)
		snap.Pending = append(snap.Pending, p)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("query pending creates: %w", err)
	}
	return snap, nil
}

// queryEach runs query and calls fn for every row. Errors from fn, from
// the query and from iteration all end the scan.
func queryEach(db *sql.DB, query string, fn func(*sql.Rows) error) error {
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func writeAll(tx *sql.Tx, snap Snapshot) error {
	for _, write := range []func(*sql.Tx, Snapshot) error{
		writeMeta, writeProjects, writeProjectGroups, writeTasks, writeDocuments, writePending,
	} {
		if err := write(tx, snap); err != nil {
			return err
		}
	}
	return nil
}

func writeMeta(tx *sql.Tx, snap Snapshot) error {
	values := map[string]string{
		"version":            snap.Version,
		"default_project_id": snap.Settings.DefaultProjectID,
		"last_sync_at":       formatTime(snap.Settings.LastSyncAt),
	}
	for k, v := range values {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	return nil
}

func writeProjects(tx *sql.Tx, snap Snapshot) error {
	if _, err := tx.Exec("DELETE FROM projects"); err != nil {
		return fmt.Errorf("clear projects: %w", err)
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO projects (id, name, group_id, ord) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, p := range snap.Projects {
		if _, err := stmt.Exec(p.ID, p.Name, p.GroupID, i); err != nil {
			return fmt.Errorf("write project %s: %w", p.ID, err)
		}
	}
	return nil
}

func writeProjectGroups(tx *sql.Tx, snap Snapshot) error {
	if _, err := tx.Exec("DELETE FROM project_groups"); err != nil {
		return fmt.Errorf("clear project groups: %w", err)
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO project_groups (id, name, ord) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, g := range snap.ProjectGroups {
		if _, err := stmt.Exec(g.ID, g.Name, i); err != nil {
			return fmt.Errorf("write project group %s: %w", g.ID, err)
		}
	}
	return nil
}

func writeTasks(tx *sql.Tx, snap Snapshot) error {
	if _, err := tx.Exec("DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO tasks
		(id, project_id, parent_id, title, status, last_modified, child_item_ids, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, t := range snap.Tasks {
		children, err := json.Marshal(nonNil(t.ChildItemIDs))
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(t.ID, t.ProjectID, t.ParentID, t.Title, t.Status, formatTime(t.LastModified), string(children), i); err != nil {
			return fmt.Errorf("write task %s: %w", t.ID, err)
		}
	}
	return nil
}

func writeDocuments(tx *sql.Tx, snap Snapshot) error {
	if _, err := tx.Exec("DELETE FROM documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM document_tasks"); err != nil {
		return fmt.Errorf("clear document tasks: %w", err)
	}
	docStmt, err := tx.Prepare("INSERT INTO documents (path, default_project_id, task_count) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer docStmt.Close()
	refStmt, err := tx.Prepare("INSERT OR REPLACE INTO document_tasks (path, task_id, task_items, ord) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer refStmt.Close()

	for path, d := range snap.Documents {
		if _, err := docStmt.Exec(path, d.DefaultProjectID, len(d.Tasks)); err != nil {
			return fmt.Errorf("write document %s: %w", path, err)
		}
		for i, ref := range d.Tasks {
			items, err := json.Marshal(nonNil(ref.TaskItems))
			if err != nil {
				return err
			}
			if _, err := refStmt.Exec(path, ref.TaskID, string(items), i); err != nil {
				return fmt.Errorf("write document %s task %s: %w", path, ref.TaskID, err)
			}
		}
	}
	return nil
}

func writePending(tx *sql.Tx, snap Snapshot) error {
	if _, err := tx.Exec("DELETE FROM pending_creates"); err != nil {
		return fmt.Errorf("clear pending creates: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO pending_creates
		(local_id, path, line_text, remote_id, project_id, parent_id, item, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range snap.Pending {
		if _, err := stmt.Exec(p.LocalID, p.Path, p.LineText, p.RemoteID, p.ProjectID, p.ParentID, p.Item, formatTime(p.CreatedAt)); err != nil {
			return fmt.Errorf("write pending create %s: %w", p.LocalID, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
