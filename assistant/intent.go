// Package assistant implements the command interpreter and the
// confirmation/execution state machine that sit between the speech
// surface and the remote task service.
package assistant

import (
	"encoding/json"
	"strings"

	"github.com/cr8z/taskvoice/store"
)

// Intent kinds.
const (
	KindQuery  = "query"
	KindMutate = "mutate"
)

// Actions the reasoning service may request.
const (
	ActionCreateTask = "create_task"
	ActionUpdateTask = "update_task"
	ActionGetTask    = "get_task"
)

// TaskData is the task payload carried by a mutate intent. Date is an
// extra query dimension ("2006-01-02") used by get_task to filter a
// project's tasks.
type TaskData struct {
	store.Task
	Date string `json:"date,omitempty"`
}

// Intent is the structured outcome of interpreting a raw command. A query
// intent only carries a spoken reply; a mutate intent also names an action
// and its task payload.
type Intent struct {
	Kind     string
	Action   string
	Task     *TaskData
	Response string
}

// NeedsConfirmation reports whether executing this intent requires the
// user's go-ahead. get_task is read-only and executes immediately; only
// mutations of the remote store are parked for confirmation.
func (i *Intent) NeedsConfirmation() bool {
	return i.Kind == KindMutate && i.Action != ActionGetTask
}

// rawIntent mirrors the JSON shape the reasoning service is prompted to
// produce.
type rawIntent struct {
	Action   string          `json:"action"`
	TaskData json.RawMessage `json:"task_data"`
	Response string          `json:"response"`
}

// ParseIntent turns a reasoning-service reply into an Intent. An optional
// fenced-code wrapper is stripped first; anything that then fails to parse
// as the expected structure becomes a plain query carrying the raw text.
// Parsing never returns an error.
func ParseIntent(reply string) *Intent {
	cleaned := stripFence(reply)

	var raw rawIntent
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return &Intent{Kind: KindQuery, Response: cleaned}
	}

	if raw.Action != "" && len(raw.TaskData) > 0 {
		var td TaskData
		if err := json.Unmarshal(raw.TaskData, &td); err != nil {
			return &Intent{Kind: KindQuery, Response: cleaned}
		}
		return &Intent{
			Kind:     KindMutate,
			Action:   raw.Action,
			Task:     &td,
			Response: raw.Response,
		}
	}

	resp := raw.Response
	if resp == "" {
		resp = cleaned
	}
	return &Intent{Kind: KindQuery, Response: resp}
}

// stripFence removes a leading/trailing triple-backtick wrapper, tolerating
// an optional language tag after the opening marker.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		first := strings.TrimSpace(body[:i])
		if first == "" || !strings.ContainsAny(first, "{}[]\" ") {
			body = body[i+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
