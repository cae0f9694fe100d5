package reconcile_test

import (
	"strings"
	"testing"

	"gtasksync/internal/reconcile"
)

func TestNotices(t *testing.T) {
	r := reconcile.Report{Notices: []reconcile.Notice{
		{Kind: reconcile.NoticeConflictOverride, Path: "a.md", Title: "Call bank"},
		{Kind: reconcile.NoticeAuthRequired, Err: authErr},
	}}

	got := reconcile.Notices(r)
	if len(got) != 2 {
		t.Fatalf("Notices = %q", got)
	}
	if !strings.Contains(got[0], "remote version was kept") || !strings.Contains(got[0], "Call bank") {
		t.Errorf("conflict notice = %q", got[0])
	}
	if !strings.Contains(got[1], "gtasksync login") {
		t.Errorf("auth notice = %q", got[1])
	}
}

func TestReport_Changed(t *testing.T) {
	var r reconcile.Report
	if r.Changed() {
		t.Error("empty report reports changes")
	}
	r.Pulled = 1
	if !r.Changed() {
		t.Error("pulled change not reported")
	}
}
