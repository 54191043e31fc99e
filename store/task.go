package store

import "strings"

// Status represents the completion state of a task or checklist item.
type Status int

const (
	StatusPending   Status = 0
	StatusCompleted Status = 1
)

// Task priorities as the remote service defines them.
const (
	PriorityNormal = 0
	PriorityMedium = 1
	PriorityHigh   = 2
	PriorityUrgent = 3
)

// Task is a single task as stored remotely and mirrored locally. The json
// tags match the remote service's field names so the same struct serves
// both the cache and the wire format.
// Dates are ISO-8601 strings with an explicit offset, e.g.
// "2024-03-21T15:30:00+0800"; the remote service's offset format has no
// colon, so they are carried verbatim rather than as time.Time.
type Task struct {
	ID            string          `json:"id,omitempty"`
	ProjectID     string          `json:"projectId,omitempty"`
	Title         string          `json:"title,omitempty"`
	Content       string          `json:"content,omitempty"`
	Desc          string          `json:"desc,omitempty"`
	IsAllDay      bool            `json:"isAllDay,omitempty"`
	StartDate     string          `json:"startDate,omitempty"`
	DueDate       string          `json:"dueDate,omitempty"`
	TimeZone      string          `json:"timeZone,omitempty"`
	Reminders     []string        `json:"reminders,omitempty"`
	RepeatFlag    string          `json:"repeatFlag,omitempty"`
	Priority      int             `json:"priority,omitempty"`
	Status        Status          `json:"status,omitempty"`
	CompletedTime string          `json:"completedTime,omitempty"`
	SortOrder     int64           `json:"sortOrder,omitempty"`
	Items         []ChecklistItem `json:"items,omitempty"`
}

// ChecklistItem is a subtask within a task.
type ChecklistItem struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title,omitempty"`
	Status        Status `json:"status,omitempty"`
	IsAllDay      bool   `json:"isAllDay,omitempty"`
	StartDate     string `json:"startDate,omitempty"`
	TimeZone      string `json:"timeZone,omitempty"`
	SortOrder     int64  `json:"sortOrder,omitempty"`
	CompletedTime string `json:"completedTime,omitempty"`
}

// Project is a task container as stored remotely and mirrored locally.
type Project struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// Filter controls which cached tasks ListTasks returns.
type Filter struct {
	IncludeCompleted bool
	ProjectID        string
	// OnDate matches tasks whose start or due date falls on the given
	// calendar date ("2006-01-02"); time of day is ignored.
	OnDate string
}

// SyncReport summarizes a completed cache refresh.
type SyncReport struct {
	ProjectCount int `json:"project_count"`
	TaskCount    int `json:"task_count"`
}

// OnDate reports whether either of the task's dates falls on the given
// calendar date. Only the date portion of the stored timestamps is compared.
func (t *Task) OnDate(date string) bool {
	return datePortion(t.StartDate) == date || datePortion(t.DueDate) == date
}

// HasDate reports whether the task carries a start or due date.
func (t *Task) HasDate() bool {
	return t.StartDate != "" || t.DueDate != ""
}

func datePortion(ts string) string {
	if ts == "" {
		return ""
	}
	if i := strings.IndexByte(ts, 'T'); i >= 0 {
		return ts[:i]
	}
	return ts
}
