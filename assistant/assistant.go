package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cr8z/taskvoice/dida"
	"github.com/cr8z/taskvoice/provider"
	"github.com/cr8z/taskvoice/store"
)

// ErrSessionExpired marks a confirmation reply citing a session token that
// does not exist (never created, already consumed, or lost on restart).
var ErrSessionExpired = errors.New("session expired")

// maxSpokenChars caps reply length before speech synthesis; longer replies
// are cut to 497 characters plus a continuation marker.
const maxSpokenChars = 500

// Result is the outcome of handling one command.
type Result struct {
	Text              string `json:"text"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
	SessionID         string `json:"session_id,omitempty"`
	Executed          bool   `json:"executed,omitempty"`
	Err               string `json:"error,omitempty"`
}

// Assistant drives the interpret → confirm → execute pipeline. Every
// failure still produces a spoken apology in Result.Text; the typed error
// travels alongside for callers that need it.
type Assistant struct {
	interp   *Interpreter
	reasoner provider.Reasoner
	tasks    dida.Service
	cache    *store.Store
	sessions *Sessions
	logger   *slog.Logger
	loc      *time.Location

	// now is replaceable in tests.
	now func() time.Time
}

// New builds an Assistant. tz names the zone used when rendering the
// current time into prompts; an unknown zone falls back to UTC+8.
func New(reasoner provider.Reasoner, tasks dida.Service, cache *store.Store, logger *slog.Logger, tz string) *Assistant {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn("unknown time zone, using UTC+8", "zone", tz)
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	return &Assistant{
		interp:   NewInterpreter(reasoner),
		reasoner: reasoner,
		tasks:    tasks,
		cache:    cache,
		sessions: NewSessions(),
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// HandleSync refreshes the local cache from the remote service.
func (a *Assistant) HandleSync(ctx context.Context) (store.SyncReport, error) {
	return a.tasks.Sync(ctx)
}

// HandleCommand processes one spoken command. When isConfirmation is set,
// the command is treated as the user's reply to the pending action under
// sessionID. The returned Result always carries speakable text, including
// on failure.
func (a *Assistant) HandleCommand(ctx context.Context, command, sessionID string, isConfirmation bool) (*Result, error) {
	if isConfirmation {
		return a.handleConfirmation(ctx, command, sessionID)
	}

	snap, err := a.snapshot()
	if err != nil {
		return apology("读取本地任务缓存失败", err), err
	}

	intent, err := a.interp.Interpret(ctx, command, snap, a.now().In(a.loc))
	if err != nil {
		return apology("AI服务暂时不可用，请稍后重试", err), err
	}

	switch {
	case intent.Kind == KindQuery:
		return &Result{Text: truncateSpoken(intent.Response)}, nil

	case intent.NeedsConfirmation():
		id := a.sessions.Create(&PendingAction{
			Action:   intent.Action,
			Task:     intent.Task,
			Response: intent.Response,
		})
		a.logger.Info("action parked for confirmation", "session", id, "action", intent.Action)
		return &Result{
			Text:              truncateSpoken(intent.Response),
			NeedsConfirmation: true,
			SessionID:         id,
		}, nil

	default:
		// Read-only actions execute without confirmation.
		msg, err := a.execute(ctx, &PendingAction{Action: intent.Action, Task: intent.Task})
		if err != nil {
			return apology(msg, err), err
		}
		text := intent.Response
		if text == "" {
			text = "好的，" + msg
		}
		return &Result{Text: truncateSpoken(text), Executed: true}, nil
	}
}

// handleConfirmation analyzes the user's reply to a parked action and
// either executes it, re-parks a revised suggestion, or fails with
// ErrSessionExpired for an unknown session token.
func (a *Assistant) handleConfirmation(ctx context.Context, reply, sessionID string) (*Result, error) {
	pending, ok := a.sessions.Lookup(sessionID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
		return apology("会话已过期，请重新发起指令", err), err
	}

	answer, err := a.reasoner.Complete(ctx, confirmationPrompt(pending, reply))
	if err != nil {
		err = fmt.Errorf("analyze confirmation: %w", err)
		return apology("AI服务暂时不可用，请稍后重试", err), err
	}

	var conf confirmationResult
	if jsonErr := json.Unmarshal([]byte(stripFence(answer)), &conf); jsonErr != nil {
		// An unreadable verdict must not mutate anything.
		err = fmt.Errorf("parse confirmation analysis: %w", jsonErr)
		return apology("没有听清您的答复，请再说一次", err), err
	}

	if !conf.Confirmed {
		revised := &PendingAction{
			Action:   pending.Action,
			Task:     pending.Task,
			Response: conf.Response,
		}
		if conf.Action != "" {
			revised.Action = conf.Action
		}
		if len(conf.TaskData) > 0 {
			var td TaskData
			if err := json.Unmarshal(conf.TaskData, &td); err == nil {
				revised.Task = &td
			}
		}
		a.sessions.Repark(sessionID, revised)
		return &Result{
			Text:              truncateSpoken(conf.Response),
			NeedsConfirmation: true,
			SessionID:         sessionID,
		}, nil
	}

	// Confirmed: the session is consumed before execution and stays gone
	// whether or not the call succeeds.
	pending, ok = a.sessions.Consume(sessionID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
		return apology("会话已过期，请重新发起指令", err), err
	}

	msg, err := a.execute(ctx, pending)
	if err != nil {
		return apology(msg, err), err
	}
	return &Result{Text: truncateSpoken("好的，" + msg), Executed: true}, nil
}

// confirmationResult mirrors the JSON shape of the confirmation-analysis
// reply. Action/TaskData carry a revised suggestion when unconfirmed.
type confirmationResult struct {
	Confirmed bool            `json:"confirmed"`
	Response  string          `json:"response"`
	Action    string          `json:"action,omitempty"`
	TaskData  json.RawMessage `json:"task_data,omitempty"`
}

// execute performs one parked action against the task service. On failure
// the returned string is the user-facing phrase; the error carries detail.
func (a *Assistant) execute(ctx context.Context, pa *PendingAction) (string, error) {
	if pa.Task == nil {
		return "缺少任务数据", fmt.Errorf("%w: no task data", dida.ErrValidation)
	}

	switch pa.Action {
	case ActionCreateTask:
		created, err := a.tasks.CreateTask(ctx, &pa.Task.Task)
		if err != nil {
			return "创建任务失败", err
		}
		return fmt.Sprintf("已成功创建任务：%s", created.Title), nil

	case ActionUpdateTask:
		updated, err := a.tasks.UpdateTask(ctx, pa.Task.ID, pa.Task.ProjectID, &pa.Task.Task)
		if err != nil {
			return "更新任务失败", err
		}
		return fmt.Sprintf("已更新任务：%s", updated.Title), nil

	case ActionGetTask:
		return a.executeGet(ctx, pa.Task)

	default:
		return "不支持的操作类型", fmt.Errorf("unsupported action %q", pa.Action)
	}
}

// executeGet fetches one task by id, or lists a project's tasks from the
// local cache when no id was given.
func (a *Assistant) executeGet(ctx context.Context, td *TaskData) (string, error) {
	if td.ID == "" {
		if td.ProjectID == "" && td.Date == "" {
			return "缺少任务ID", fmt.Errorf("%w: get_task requires an id, a projectId or a date", dida.ErrValidation)
		}
		tasks, err := a.cache.ListTasks(store.Filter{ProjectID: td.ProjectID, OnDate: td.Date})
		if err != nil {
			return "查询任务失败", err
		}
		if len(tasks) == 0 {
			if td.Date != "" {
				return "在指定日期没有找到任何任务", fmt.Errorf("no tasks on %s", td.Date)
			}
			return "没有找到任何任务", fmt.Errorf("no tasks in project %s", td.ProjectID)
		}
		var b strings.Builder
		b.WriteString("找到以下任务：")
		for _, t := range tasks {
			b.WriteString("\n- ")
			b.WriteString(t.Title)
		}
		return b.String(), nil
	}

	if td.ProjectID == "" {
		return "缺少项目ID", fmt.Errorf("%w: get_task requires projectId with id", dida.ErrValidation)
	}
	task, err := a.tasks.GetTask(ctx, td.ProjectID, td.ID)
	if err != nil {
		return "获取任务失败", err
	}
	return fmt.Sprintf("已找到任务：%s", task.Title), nil
}

// snapshot reads the interpreter's view of the cache: pending tasks only,
// plus every project.
func (a *Assistant) snapshot() (Snapshot, error) {
	tasks, err := a.cache.ListTasks(store.Filter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot tasks: %w", err)
	}
	projects, err := a.cache.ListProjects()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot projects: %w", err)
	}
	return Snapshot{Tasks: tasks, Projects: projects}, nil
}

// apology wraps a failure into a speakable Result.
func apology(msg string, err error) *Result {
	return &Result{
		Text: truncateSpoken("抱歉，" + msg),
		Err:  err.Error(),
	}
}

// truncateSpoken caps text at maxSpokenChars characters, appending a
// continuation marker when cut.
func truncateSpoken(s string) string {
	if utf8.RuneCountInString(s) <= maxSpokenChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSpokenChars-3]) + "..."
}
