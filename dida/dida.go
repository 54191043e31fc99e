// Package dida implements the dida365 open API client: authenticated task
// and project operations, the interactive authorization flow, and the
// full-replace sync into the local store.
package dida

import (
	"context"
	"errors"

	"github.com/cr8z/taskvoice/store"
)

// ErrValidation marks requests rejected before any network call is made.
var ErrValidation = errors.New("invalid task payload")

// ErrAuth marks calls that failed even after the single re-authorization
// retry.
var ErrAuth = errors.New("authorization failed")

// ProjectData is the remote project bundle: project metadata plus its tasks.
type ProjectData struct {
	Project *store.Project `json:"project"`
	Tasks   []*store.Task  `json:"tasks"`
}

// Service is the task-service contract the assistant consumes. *Client is
// the production implementation; tests substitute fakes.
type Service interface {
	ListProjects(ctx context.Context) ([]*store.Project, error)
	GetTask(ctx context.Context, projectID, taskID string) (*store.Task, error)
	CreateTask(ctx context.Context, t *store.Task) (*store.Task, error)
	UpdateTask(ctx context.Context, taskID, projectID string, t *store.Task) (*store.Task, error)
	Sync(ctx context.Context) (store.SyncReport, error)
}
