package googletasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"gtasksync/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, service.ErrAuth},
		{"forbidden", &googleapi.Error{Code: 403}, service.ErrAuth},
		{"rate limited 403", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, service.ErrTransient},
		{"not found", &googleapi.Error{Code: 404}, service.ErrNotFound},
		{"gone", &googleapi.Error{Code: 410}, service.ErrNotFound},
		{"too many requests", &googleapi.Error{Code: 429}, service.ErrTransient},
		{"server error", &googleapi.Error{Code: 503}, service.ErrTransient},
		{"bad request", &googleapi.Error{Code: 400}, service.ErrRejected},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), service.ErrTransient},
		{"unknown", errors.New("boom"), service.ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError("op", tt.err)
			if !errors.Is(err, tt.want) {
				t.Errorf("wrapError(%v) = %v, want kind %v", tt.err, err, tt.want)
			}
		})
	}
}

func TestWrapError_Canceled(t *testing.T) {
	if err := wrapError("op", context.Canceled); err != context.Canceled {
		t.Errorf("cancellation must pass through, got %v", err)
	}
	if wrapError("op", nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestListTasksForProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/lists/L1/tasks") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("showCompleted") != "true" {
			t.Errorf("completed tasks not requested: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"id":"a","title":"Buy milk","status":"completed","updated":"2026-01-02T03:04:05.000Z"},
			{"id":"b","title":"Skim","status":"needsAction","parent":"a","updated":"2026-01-02T03:04:06.000Z"}
		]}`)
	}))
	defer srv.Close()

	c, err := NewWithHTTPClient(context.Background(), srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	got, err := c.ListTasksForProject(context.Background(), "L1")
	if err != nil {
		t.Fatalf("ListTasksForProject: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %+v", got)
	}
	if !got[0].Completed() || got[0].ProjectID != "L1" || got[0].Updated.IsZero() {
		t.Errorf("unexpected first task: %+v", got[0])
	}
	if got[1].ParentID != "a" || got[1].Completed() {
		t.Errorf("unexpected second task: %+v", got[1])
	}

	_, err = c.ListTasksForProject(context.Background(), "missing")
	if !service.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
