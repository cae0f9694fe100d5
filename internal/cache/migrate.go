package cache

import (
	"fmt"
	"time"

	"golang.org/x/mod/semver"
)

const legacyTimeLayout = "2006-01-02T15:04:05.000-0700"

// migration upgrades a raw snapshot in place. Steps must be idempotent so
// a snapshot interrupted mid-upgrade can be migrated again.
type migration struct {
	// before is the first version that no longer needs the step; empty
	// means the step applies only to unversioned snapshots.
	before string
	name   string
	apply  func(raw map[string]any) (notice string)
}

var migrations = []migration{
	{before: "", name: "flatten task lists", apply: flattenTaskLists},
	{before: "1.0.10", name: "drop stored credentials", apply: dropCredentials},
	{before: "1.0.36", name: "task limiting rules", apply: dropTagAndOr},
	{before: "1.0.40", name: "date handling", apply: func(map[string]any) string {
		return "Date handling: due dates are not synced; dates in task titles stay plain text."
	}},
	{before: "1.1.0", name: "current layout", apply: currentLayout},
}

// Migrate brings a decoded snapshot up to CurrentVersion and stamps it.
// It returns the notices to show the user, one per step that raised one.
func Migrate(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, &Error{Op: "migrate", Kind: ErrMigrate, Err: fmt.Errorf("empty snapshot")}
	}
	version, _ := raw["version"].(string)

	var notices []string
	for _, m := range migrations {
		if !needs(version, m.before) {
			continue
		}
		if n := m.apply(raw); n != "" {
			notices = append(notices, n)
		}
	}
	raw["version"] = CurrentVersion
	return notices, nil
}

func needs(version, before string) bool {
	if before == "" {
		return version == ""
	}
	// Invalid and empty versions sort before every valid one.
	return semver.Compare("v"+version, "v"+before) < 0
}

// flattenTaskLists turns each document's legacy list of task ids into
// {taskId, taskItems} records. Counts and default projects are kept as is.
func flattenTaskLists(raw map[string]any) string {
	docs, _ := raw["fileMetadata"].(map[string]any)
	for path, v := range docs {
		doc, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ids, ok := doc["TickTickTasks"].([]any)
		if !ok {
			continue
		}
		refs := make([]any, 0, len(ids))
		for _, id := range ids {
			switch id := id.(type) {
			case string:
				refs = append(refs, map[string]any{"taskId": id, "taskItems": []any{}})
			case map[string]any:
				refs = append(refs, id)
			}
		}
		doc["TickTickTasks"] = refs
		docs[path] = doc
	}
	return ""
}

func dropCredentials(raw map[string]any) string {
	delete(raw, "username")
	delete(raw, "password")
	return ""
}

// dropTagAndOr removes the legacy tag/project limiting rule. New tasks
// come only from tagged lines, so the rule has nothing left to select.
func dropTagAndOr(raw map[string]any) string {
	delete(raw, "tagAndOr")
	if settings, ok := raw["settings"].(map[string]any); ok {
		delete(settings, "tagAndOr")
	}
	return "Task limiting rules: new tasks are created only from lines tagged #gtask."
}

// currentLayout renames legacy document keys and lifts legacy task data
// and settings to where this version keeps them.
func currentLayout(raw map[string]any) string {
	docs, _ := raw["fileMetadata"].(map[string]any)
	for path, v := range docs {
		doc, ok := v.(map[string]any)
		if !ok {
			continue
		}
		rename(doc, "TickTickTasks", "tasks")
		rename(doc, "TickTickCount", "taskCount")
		docs[path] = doc
	}

	if data, ok := raw["TickTickTasksData"].(map[string]any); ok {
		for _, key := range []string{"projects", "projectGroups"} {
			if _, exists := raw[key]; !exists && data[key] != nil {
				raw[key] = data[key]
			}
		}
		if _, exists := raw["tasks"]; !exists {
			if list, ok := data["tasks"].([]any); ok {
				raw["tasks"] = convertLegacyTasks(list)
			}
		}
		delete(raw, "TickTickTasksData")
	}

	settings, _ := raw["settings"].(map[string]any)
	if settings == nil {
		settings = map[string]any{}
	}
	if v, ok := raw["defaultProjectId"]; ok {
		if _, set := settings["defaultProjectId"]; !set {
			settings["defaultProjectId"] = v
		}
		delete(raw, "defaultProjectId")
	}
	raw["settings"] = settings
	return ""
}

func rename(m map[string]any, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, exists := m[to]; !exists {
		m[to] = v
	}
	delete(m, from)
}

// convertLegacyTasks maps legacy task objects (numeric status, modifiedTime,
// childIds) onto the current task shape.
func convertLegacyTasks(list []any) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		t, ok := v.(map[string]any)
		if !ok {
			continue
		}
		task := map[string]any{
			"id":        t["id"],
			"projectId": t["projectId"],
			"title":     t["title"],
			"status":    legacyStatus(t["status"]),
		}
		if p, ok := t["parentId"].(string); ok {
			task["parentId"] = p
		}
		if m, ok := t["modifiedTime"].(string); ok {
			if ts := normalizeLegacyTime(m); ts != "" {
				task["lastModified"] = ts
			}
		}
		if c, ok := t["childIds"].([]any); ok {
			task["childItemIds"] = c
		}
		out = append(out, task)
	}
	return out
}

func legacyStatus(v any) string {
	switch s := v.(type) {
	case float64:
		if s != 0 {
			return "completed"
		}
	case string:
		if s == "completed" {
			return s
		}
	}
	return "needsAction"
}

// normalizeLegacyTime accepts "2006-01-02T15:04:05.000+0000" as written by
// the legacy format and returns RFC 3339, or "" when unparseable.
func normalizeLegacyTime(s string) string {
	for _, layout := range []string{time.RFC3339Nano, legacyTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	return ""
}
