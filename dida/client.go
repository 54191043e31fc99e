package dida

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cr8z/taskvoice/config"
	"github.com/cr8z/taskvoice/store"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to the dida365 open API with bearer-token auth. Successful
// create/update responses are mirrored into the local store; the remote
// service remains the source of truth when mirroring fails.
type Client struct {
	cfg    config.DidaConfig
	store  *store.Store
	auth   Authorizer
	http   *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient builds a Client, loading the most recent access token from the
// store. If no token exists yet, the interactive authorization flow runs
// immediately so the first API call does not fail on a missing credential.
func NewClient(cfg config.DidaConfig, st *store.Store, auth Authorizer, logger *slog.Logger) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		store:  st,
		auth:   auth,
		http:   &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger,
	}

	tok, err := st.LoadToken()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		if tok, err = c.reauthorize(context.Background()); err != nil {
			return nil, fmt.Errorf("initial authorization: %w", err)
		}
	}
	c.token = tok
	return c, nil
}

// ListProjects fetches all projects from the remote service.
func (c *Client) ListProjects(ctx context.Context) ([]*store.Project, error) {
	body, err := c.do(ctx, http.MethodGet, "project", nil)
	if err != nil {
		return nil, err
	}

	var projects []*store.Project
	if err := json.Unmarshal(body, &projects); err != nil {
		// The API returns a bare object when there is a single project.
		var one store.Project
		if err2 := json.Unmarshal(body, &one); err2 != nil {
			return nil, fmt.Errorf("parse project list: %w", err)
		}
		projects = []*store.Project{&one}
	}
	return projects, nil
}

// ProjectData fetches a project's bundle: metadata plus all of its tasks.
func (c *Client) ProjectData(ctx context.Context, projectID string) (*ProjectData, error) {
	body, err := c.do(ctx, http.MethodGet, "project/"+projectID+"/data", nil)
	if err != nil {
		return nil, err
	}
	var pd ProjectData
	if err := json.Unmarshal(body, &pd); err != nil {
		return nil, fmt.Errorf("parse project data: %w", err)
	}
	return &pd, nil
}

// GetTask fetches a single task. The remote API requires both IDs.
func (c *Client) GetTask(ctx context.Context, projectID, taskID string) (*store.Task, error) {
	if projectID == "" || taskID == "" {
		return nil, fmt.Errorf("%w: get_task requires projectId and id", ErrValidation)
	}
	body, err := c.do(ctx, http.MethodGet, "project/"+projectID+"/task/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	var t store.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("parse task: %w", err)
	}
	return &t, nil
}

// CreateTask creates a task remotely and mirrors it into the local store.
// A missing title fails before any network call.
func (c *Client) CreateTask(ctx context.Context, t *store.Task) (*store.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	payload := *t
	c.defaultTimeZone(&payload)

	body, err := c.do(ctx, http.MethodPost, "task", &payload)
	if err != nil {
		return nil, err
	}
	var created store.Task
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse created task: %w", err)
	}

	c.mirror(&created)
	return &created, nil
}

// UpdateTask updates a task remotely and mirrors the result. The task and
// project IDs are required; they are set on the wire payload explicitly
// rather than trusted from the caller's task data.
func (c *Client) UpdateTask(ctx context.Context, taskID, projectID string, t *store.Task) (*store.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrValidation)
	}
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrValidation)
	}
	payload := *t
	payload.ID = taskID
	payload.ProjectID = projectID
	c.defaultTimeZone(&payload)

	body, err := c.do(ctx, http.MethodPost, "task/"+taskID, &payload)
	if err != nil {
		return nil, err
	}
	var updated store.Task
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, fmt.Errorf("parse updated task: %w", err)
	}
	if updated.ID == "" {
		updated.ID = taskID
	}
	if updated.ProjectID == "" {
		updated.ProjectID = projectID
	}

	c.mirror(&updated)
	return &updated, nil
}

// Sync refreshes the local cache with a full replace: every project is
// listed, then each project's bundle is fetched and upserted. A project
// whose bundle fetch fails is logged and skipped; sync continues with the
// rest. Rows that vanished remotely are not deleted and persist until
// overwritten.
func (c *Client) Sync(ctx context.Context) (store.SyncReport, error) {
	var report store.SyncReport

	projects, err := c.ListProjects(ctx)
	if err != nil {
		return report, fmt.Errorf("sync: list projects: %w", err)
	}

	for _, p := range projects {
		pd, err := c.ProjectData(ctx, p.ID)
		if err != nil {
			c.logger.Error("sync: skipping project", "project", p.Name, "id", p.ID, "error", err)
			continue
		}
		if err := c.store.UpsertProject(p); err != nil {
			c.logger.Error("sync: upsert project", "id", p.ID, "error", err)
			continue
		}
		report.ProjectCount++
		for _, t := range pd.Tasks {
			if err := c.store.UpsertTask(t); err != nil {
				c.logger.Error("sync: upsert task", "id", t.ID, "error", err)
				continue
			}
			report.TaskCount++
		}
	}

	c.logger.Info("sync complete", "projects", report.ProjectCount, "tasks", report.TaskCount)
	return report, nil
}

// defaultTimeZone fills in the configured zone on payloads that carry a
// date but no zone, before serialization.
func (c *Client) defaultTimeZone(t *store.Task) {
	if t.HasDate() && t.TimeZone == "" {
		t.TimeZone = c.cfg.TimeZone
	}
}

// mirror writes a remote mutation result into the local cache. Failure is
// logged but never undoes the remote mutation.
func (c *Client) mirror(t *store.Task) {
	if err := c.store.UpsertTask(t); err != nil {
		c.logger.Warn("mirror task to local cache", "id", t.ID, "error", err)
	}
}

// do sends one authenticated request. A 401 triggers the interactive
// re-authorization exactly once, followed by a single retry; a second
// failure surfaces as ErrAuth.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		if reqBody, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	status, body, err := c.send(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		tok, err := c.reauthorize(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()

		status, body, err = c.send(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: still unauthorized after re-authorization", ErrAuth)
		}
	}

	if status < 200 || status > 299 {
		return nil, fmt.Errorf("dida API error (status %d): %s", status, excerpt(body))
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.cfg.APIBaseURL, "/") + "/" + endpoint

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("dida request %s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// reauthorize runs the interactive flow and persists the new token in the
// append-only auth history.
func (c *Client) reauthorize(ctx context.Context) (string, error) {
	tok, err := c.auth.Authorize(ctx)
	if err != nil {
		return "", err
	}
	if err := c.store.SaveToken(tok); err != nil {
		c.logger.Warn("persist access token", "error", err)
	}
	return tok, nil
}

func excerpt(body []byte) string {
	const max = 500
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
