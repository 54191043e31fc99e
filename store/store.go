// Package store implements the local SQLite mirror of the remote task
// service: tasks, projects, and the access-token history.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS auth (
	id           INTEGER PRIMARY KEY,
	access_token TEXT NOT NULL,
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	status     INTEGER NOT NULL DEFAULT 0,
	priority   INTEGER NOT NULL DEFAULT 0,
	start_date TEXT NOT NULL DEFAULT '',
	due_date   TEXT NOT NULL DEFAULT '',
	time_zone  TEXT NOT NULL DEFAULT '',
	items      TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	color      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists the local mirror in a SQLite database. The *sql.DB pool is
// shared by all request-handling goroutines; each operation checks out its
// own connection from the pool.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath and ensures the schema
// exists. The caller is responsible for calling Close.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database pool.
func (s *Store) Close() error { return s.db.Close() }

// UpsertTask inserts or replaces a task row keyed by id.
func (s *Store) UpsertTask(t *Task) error {
	if t.ID == "" {
		return fmt.Errorf("upsert task: empty id")
	}
	items, _ := json.Marshal(t.Items)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO tasks
			(id, project_id, title, content, status, priority, start_date, due_date, time_zone, items, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)`,
		t.ID, t.ProjectID, t.Title, t.Content, int(t.Status), t.Priority,
		t.StartDate, t.DueDate, t.TimeZone, string(items),
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

// UpsertProject inserts or replaces a project row keyed by id.
func (s *Store) UpsertProject(p *Project) error {
	if p.ID == "" {
		return fmt.Errorf("upsert project: empty id")
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO projects (id, name, color, updated_at)
		VALUES (?,?,?,CURRENT_TIMESTAMP)`,
		p.ID, p.Name, p.Color,
	)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

// ListTasks returns cached tasks matching the filter, most recently
// updated first. Completed tasks are excluded unless IncludeCompleted.
func (s *Store) ListTasks(filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT id, project_id, title, content, status, priority, start_date, due_date, time_zone, items FROM tasks WHERE 1=1`)
	args := []any{}

	if !filter.IncludeCompleted {
		q.WriteString(" AND status=?")
		args = append(args, int(StatusPending))
	}
	if filter.ProjectID != "" {
		q.WriteString(" AND project_id=?")
		args = append(args, filter.ProjectID)
	}
	q.WriteString(" ORDER BY updated_at DESC")

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if filter.OnDate != "" && !t.OnDate(filter.OnDate) {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListProjects returns all cached projects.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT id, name, color FROM projects ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Color); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// SaveToken appends an access token to the auth history. Tokens are never
// overwritten; LoadToken always reads the most recent row.
func (s *Store) SaveToken(token string) error {
	if _, err := s.db.Exec(`INSERT INTO auth (access_token) VALUES (?)`, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// LoadToken returns the most recently saved access token, or "" if the
// auth history is empty.
func (s *Store) LoadToken() (string, error) {
	var token string
	err := s.db.QueryRow(`SELECT access_token FROM auth ORDER BY id DESC LIMIT 1`).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return token, nil
}

func scanTask(rows *sql.Rows) (*Task, error) {
	var t Task
	var status int
	var itemsJSON string
	err := rows.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Content, &status, &t.Priority,
		&t.StartDate, &t.DueDate, &t.TimeZone, &itemsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = Status(status)
	_ = json.Unmarshal([]byte(itemsJSON), &t.Items)
	return &t, nil
}
