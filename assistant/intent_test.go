package assistant

import (
	"strings"
	"testing"
)

func TestParseIntentBareJSON(t *testing.T) {
	intent := ParseIntent(`{"action":"create_task","task_data":{"title":"买菜"},"response":"我将为您创建任务"}`)
	if intent.Kind != KindMutate {
		t.Fatalf("kind = %q, want mutate", intent.Kind)
	}
	if intent.Action != ActionCreateTask {
		t.Fatalf("action = %q", intent.Action)
	}
	if intent.Task == nil || intent.Task.Title != "买菜" {
		t.Fatalf("task = %+v", intent.Task)
	}
	if !intent.NeedsConfirmation() {
		t.Fatal("create_task should need confirmation")
	}
}

func TestParseIntentFencedJSON(t *testing.T) {
	fenced := "```json\n{\"action\":\"update_task\",\"task_data\":{\"id\":\"t1\",\"projectId\":\"p1\"},\"response\":\"好的\"}\n```"
	bare := `{"action":"update_task","task_data":{"id":"t1","projectId":"p1"},"response":"好的"}`

	a, b := ParseIntent(fenced), ParseIntent(bare)
	if a.Kind != b.Kind || a.Action != b.Action || a.Response != b.Response {
		t.Fatalf("fenced and bare replies parsed differently: %+v vs %+v", a, b)
	}
	if a.Task.ID != "t1" || a.Task.ProjectID != "p1" {
		t.Fatalf("task = %+v", a.Task)
	}
}

func TestParseIntentSingleLineFence(t *testing.T) {
	intent := ParseIntent("```json{\"response\":\"今天没有安排\"}```")
	if intent.Kind != KindQuery {
		t.Fatalf("kind = %q", intent.Kind)
	}
	if intent.Response != "今天没有安排" {
		t.Fatalf("response = %q", intent.Response)
	}
}

func TestParseIntentPlainTextIsQuery(t *testing.T) {
	intent := ParseIntent("今天天气不错，没有待办任务。")
	if intent.Kind != KindQuery {
		t.Fatalf("kind = %q", intent.Kind)
	}
	if intent.Response != "今天天气不错，没有待办任务。" {
		t.Fatalf("response = %q", intent.Response)
	}
	if intent.NeedsConfirmation() {
		t.Fatal("query must not need confirmation")
	}
}

func TestParseIntentBadTaskDataFallsBackToQuery(t *testing.T) {
	intent := ParseIntent(`{"action":"create_task","task_data":"not an object","response":"x"}`)
	if intent.Kind != KindQuery {
		t.Fatalf("kind = %q, want query fallback", intent.Kind)
	}
}

func TestParseIntentGetTaskSkipsConfirmation(t *testing.T) {
	intent := ParseIntent(`{"action":"get_task","task_data":{"projectId":"p1","date":"2025-03-21"},"response":"查一下"}`)
	if intent.Kind != KindMutate || intent.Action != ActionGetTask {
		t.Fatalf("intent = %+v", intent)
	}
	if intent.NeedsConfirmation() {
		t.Fatal("get_task is read-only and must not need confirmation")
	}
	if intent.Task.Date != "2025-03-21" {
		t.Fatalf("date = %q", intent.Task.Date)
	}
}

func TestTruncateSpoken(t *testing.T) {
	short := "好的"
	if got := truncateSpoken(short); got != short {
		t.Fatalf("short text modified: %q", got)
	}

	long := strings.Repeat("长", 600)
	got := truncateSpoken(long)
	runes := []rune(got)
	if len(runes) != maxSpokenChars {
		t.Fatalf("truncated length = %d runes, want %d", len(runes), maxSpokenChars)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("missing continuation marker: %q", got[len(got)-12:])
	}
}
