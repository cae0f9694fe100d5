// Package googletasks implements the service.Service interface using Google Tasks API.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"gtasksync/internal/config"
	"gtasksync/internal/service"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// APITimeout is the timeout for API calls.
	APITimeout = 5 * time.Second

	// OAuth scope for Google Tasks
	tasksScope = "https://www.googleapis.com/auth/tasks"
)

// Client implements service.Service using Google Tasks API.
type Client struct {
	svc *tasks.Service
}

var _ service.Service = (*Client)(nil)

// New creates a new Google Tasks client.
// Requires oauth_client.json and token.json to exist.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(clientJSON, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}

	tokenData, err := os.ReadFile(cfg.TokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}

	// Token source refreshes the access token on demand
	tokenSource := oauthConfig.TokenSource(ctx, &token)
	httpClient := oauth2.NewClient(ctx, tokenSource)

	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewWithHTTPClient creates a client against endpoint with a custom HTTP
// client (for testing). An empty endpoint uses the production API.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, endpoint string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// DefaultProject returns the user's default task list.
func (c *Client) DefaultProject(ctx context.Context) (service.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	list, err := c.svc.Tasklists.Get(DefaultListID).Context(ctx).Do()
	if err != nil {
		return service.Project{}, wrapError("get default list", err)
	}

	return service.Project{
		ID:        DefaultListID,
		Title:     list.Title,
		IsDefault: true,
	}, nil
}

// ListProjects returns all task lists in API order.
func (c *Client) ListProjects(ctx context.Context) ([]service.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	// The default list is reported under its real ID; normalize it to @default
	defaultList, err := c.svc.Tasklists.Get(DefaultListID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("get default list", err)
	}
	defaultRealID := defaultList.Id

	var result []service.Project
	err = c.svc.Tasklists.List().MaxResults(100).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, list := range resp.Items {
			isDefault := list.Id == defaultRealID
			id := list.Id
			if isDefault {
				id = DefaultListID
			}
			result = append(result, service.Project{
				ID:        id,
				Title:     list.Title,
				IsDefault: isDefault,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("list task lists", err)
	}

	return result, nil
}

// ResolveProject finds a list by name (case-insensitive, trimmed).
func (c *Client) ResolveProject(ctx context.Context, name string) (service.Project, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return service.Project{}, err
	}
	return service.MatchProject(projects, name)
}

// ListProjectGroups returns no groups: Google Tasks has no list folders.
func (c *Client) ListProjectGroups(ctx context.Context) ([]service.ProjectGroup, error) {
	return nil, nil
}

// ListTasksForProject returns every task of a list, completed and hidden
// tasks included, following page tokens.
func (c *Client) ListTasksForProject(ctx context.Context, projectID string) ([]service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var result []service.Task
	err := c.svc.Tasks.List(projectID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowDeleted(false).
		ShowHidden(true).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				result = append(result, fromAPI(projectID, t))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError("list tasks", err)
	}
	return result, nil
}

// CreateTask creates a task, as a subtask when attrs.ParentID is set.
func (c *Client) CreateTask(ctx context.Context, projectID, title string, attrs service.TaskAttributes) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	call := c.svc.Tasks.Insert(projectID, &tasks.Task{
		Title:  title,
		Status: statusOrOpen(attrs.Status),
	}).Context(ctx)
	if attrs.ParentID != "" {
		call = call.Parent(attrs.ParentID)
	}
	created, err := call.Do()
	if err != nil {
		return service.Task{}, wrapError("create task", err)
	}
	return fromAPI(projectID, created), nil
}

// UpdateTask patches the title and status of a task.
func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, attrs service.TaskAttributes) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	patch := &tasks.Task{
		Title:  attrs.Title,
		Status: statusOrOpen(attrs.Status),
	}
	if patch.Status == service.StatusOpen {
		// Reopening requires clearing the completion timestamp
		patch.NullFields = []string{"Completed"}
	}
	updated, err := c.svc.Tasks.Patch(projectID, taskID, patch).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError("update task", err)
	}
	return fromAPI(projectID, updated), nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	if err := c.svc.Tasks.Delete(projectID, taskID).Context(ctx).Do(); err != nil {
		return wrapError("delete task", err)
	}
	return nil
}

func fromAPI(projectID string, t *tasks.Task) service.Task {
	updated, _ := time.Parse(time.RFC3339, t.Updated)
	return service.Task{
		ID:        t.Id,
		ProjectID: projectID,
		ParentID:  t.Parent,
		Title:     t.Title,
		Status:    statusOrOpen(t.Status),
		Updated:   updated,
	}
}

func statusOrOpen(s string) string {
	if s == service.StatusCompleted {
		return s
	}
	return service.StatusOpen
}

// wrapError classifies API errors into the service error kinds.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &service.RemoteError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return service.ErrAuth
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusForbidden && isRateLimit(apiErr):
			return service.ErrTransient
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return service.ErrAuth
		case apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone:
			return service.ErrNotFound
		case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return service.ErrTransient
		default:
			return service.ErrRejected
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return service.ErrTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return service.ErrTransient
	}
	return service.ErrRejected
}

func isRateLimit(e *googleapi.Error) bool {
	for _, item := range e.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "ratelimit") {
			return true
		}
	}
	return false
}
