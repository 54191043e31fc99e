package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cr8z/taskvoice/dida"
	"github.com/cr8z/taskvoice/provider/mock"
	"github.com/cr8z/taskvoice/store"
)

// fakeService records calls instead of reaching the network.
type fakeService struct {
	created []*store.Task
	updated []*store.Task
	got     []string
	syncs   int
	err     error
}

func (f *fakeService) ListProjects(context.Context) ([]*store.Project, error) { return nil, f.err }

func (f *fakeService) GetTask(_ context.Context, projectID, taskID string) (*store.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, taskID)
	return &store.Task{ID: taskID, ProjectID: projectID, Title: "远程任务"}, nil
}

func (f *fakeService) CreateTask(_ context.Context, t *store.Task) (*store.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeService) UpdateTask(_ context.Context, taskID, projectID string, t *store.Task) (*store.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t.ID, t.ProjectID = taskID, projectID
	f.updated = append(f.updated, t)
	return t, nil
}

func (f *fakeService) Sync(context.Context) (store.SyncReport, error) {
	f.syncs++
	return store.SyncReport{ProjectCount: 1, TaskCount: 2}, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "assistant-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	s, err := store.New(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAssistant(t *testing.T, reasoner *mock.Reasoner, svc dida.Service) *Assistant {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(reasoner, svc, newTestStore(t), logger, "Asia/Shanghai")
	a.now = func() time.Time { return time.Date(2025, 3, 21, 15, 0, 0, 0, time.UTC) }
	return a
}

func TestQueryCommandAnswersDirectly(t *testing.T) {
	reasoner := mock.NewReasoner(`{"response":"您今天没有待办任务"}`)
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, err := a.HandleCommand(context.Background(), "今天有什么安排", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "您今天没有待办任务" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.NeedsConfirmation || res.SessionID != "" {
		t.Fatalf("query must not open a session: %+v", res)
	}
	if len(svc.created)+len(svc.updated) != 0 {
		t.Fatal("query must not call the task service")
	}
}

func TestMutateParksThenConfirmedExecutesOnce(t *testing.T) {
	reasoner := mock.NewReasoner(
		`{"action":"create_task","task_data":{"title":"买菜","startDate":"2025-03-22T15:00:00+0800"},"response":"要创建买菜任务吗？"}`,
		`{"confirmed":true,"response":"好的"}`,
	)
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, err := a.HandleCommand(context.Background(), "明天下午三点提醒我买菜", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.NeedsConfirmation || res.SessionID == "" {
		t.Fatalf("expected parked action, got %+v", res)
	}
	if res.Text != "要创建买菜任务吗？" {
		t.Fatalf("text = %q", res.Text)
	}
	if len(svc.created) != 0 {
		t.Fatal("nothing may execute before confirmation")
	}
	if a.sessions.Len() != 1 {
		t.Fatalf("sessions = %d", a.sessions.Len())
	}

	conf, err := a.HandleCommand(context.Background(), "确认", res.SessionID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !conf.Executed {
		t.Fatalf("expected execution, got %+v", conf)
	}
	if !strings.HasPrefix(conf.Text, "好的，") {
		t.Fatalf("text = %q", conf.Text)
	}
	if len(svc.created) != 1 || svc.created[0].Title != "买菜" {
		t.Fatalf("created = %+v", svc.created)
	}
	if a.sessions.Len() != 0 {
		t.Fatal("session must be consumed after execution")
	}
}

func TestUnknownSessionIsExpired(t *testing.T) {
	reasoner := mock.NewReasoner()
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, err := a.HandleCommand(context.Background(), "确认", "no-such-session", true)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if !strings.HasPrefix(res.Text, "抱歉") {
		t.Fatalf("text = %q", res.Text)
	}
	if len(reasoner.Prompts) != 0 {
		t.Fatal("expired session must not reach the reasoner")
	}
	if len(svc.created)+len(svc.updated) != 0 {
		t.Fatal("expired session must not mutate anything")
	}
}

func TestUnconfirmedReplyReparksRevision(t *testing.T) {
	reasoner := mock.NewReasoner(
		`{"action":"create_task","task_data":{"title":"买菜"},"response":"要创建买菜任务吗？"}`,
		`{"confirmed":false,"response":"那改成周日怎么样？","task_data":{"title":"买菜","startDate":"2025-03-23T10:00:00+0800"}}`,
		`{"confirmed":true,"response":"好"}`,
	)
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, _ := a.HandleCommand(context.Background(), "提醒我买菜", "", false)
	id := res.SessionID

	revised, err := a.HandleCommand(context.Background(), "换个时间吧", id, true)
	if err != nil {
		t.Fatal(err)
	}
	if !revised.NeedsConfirmation || revised.SessionID != id {
		t.Fatalf("revision must keep the session open under the same id: %+v", revised)
	}
	if len(svc.created) != 0 {
		t.Fatal("unconfirmed reply must not execute")
	}

	final, err := a.HandleCommand(context.Background(), "好的", id, true)
	if err != nil {
		t.Fatal(err)
	}
	if !final.Executed || len(svc.created) != 1 {
		t.Fatalf("final = %+v, created = %d", final, len(svc.created))
	}
	if svc.created[0].StartDate != "2025-03-23T10:00:00+0800" {
		t.Fatalf("revised payload not applied: %+v", svc.created[0])
	}
}

func TestUnparsableConfirmationDoesNotMutate(t *testing.T) {
	reasoner := mock.NewReasoner(
		`{"action":"update_task","task_data":{"id":"t1","projectId":"p1","title":"新标题"},"response":"确定要更新吗？"}`,
		`嗯，让我想想`,
	)
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, _ := a.HandleCommand(context.Background(), "改一下任务标题", "", false)

	conf, err := a.HandleCommand(context.Background(), "唔", res.SessionID, true)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.HasPrefix(conf.Text, "抱歉") {
		t.Fatalf("text = %q", conf.Text)
	}
	if len(svc.updated) != 0 {
		t.Fatal("an unreadable verdict must not mutate anything")
	}
	if a.sessions.Len() != 1 {
		t.Fatal("session must survive an unreadable verdict")
	}
}

func TestGetTaskExecutesImmediately(t *testing.T) {
	reasoner := mock.NewReasoner(`{"action":"get_task","task_data":{"id":"t9","projectId":"p1"},"response":""}`)
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, err := a.HandleCommand(context.Background(), "查一下那个任务", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsConfirmation {
		t.Fatal("get_task must not wait for confirmation")
	}
	if !res.Executed {
		t.Fatalf("res = %+v", res)
	}
	if len(svc.got) != 1 || svc.got[0] != "t9" {
		t.Fatalf("got = %v", svc.got)
	}
	if !strings.Contains(res.Text, "远程任务") {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestGetTaskListsCacheByDate(t *testing.T) {
	reasoner := mock.NewReasoner(`{"action":"get_task","task_data":{"date":"2025-03-22"},"response":""}`)
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	for _, task := range []*store.Task{
		{ID: "t1", ProjectID: "p1", Title: "买菜", StartDate: "2025-03-22T15:00:00+0800"},
		{ID: "t2", ProjectID: "p1", Title: "开会", StartDate: "2025-03-25T09:00:00+0800"},
	} {
		if err := a.cache.UpsertTask(task); err != nil {
			t.Fatal(err)
		}
	}

	res, err := a.HandleCommand(context.Background(), "周六有什么安排", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "买菜") || strings.Contains(res.Text, "开会") {
		t.Fatalf("text = %q", res.Text)
	}
	if len(svc.got) != 0 {
		t.Fatal("date listing must come from the cache, not the remote service")
	}
}

func TestReasonerFailureSpeaksApology(t *testing.T) {
	reasoner := mock.NewReasoner()
	reasoner.Err = errors.New("upstream down")
	svc := &fakeService{}
	a := newTestAssistant(t, reasoner, svc)

	res, err := a.HandleCommand(context.Background(), "今天有什么安排", "", false)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.HasPrefix(res.Text, "抱歉") {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Err == "" {
		t.Fatal("result must carry the error detail")
	}
}

func TestServiceFailureAfterConfirmation(t *testing.T) {
	reasoner := mock.NewReasoner(
		`{"action":"create_task","task_data":{"title":"买菜"},"response":"要创建吗？"}`,
		`{"confirmed":true,"response":"好"}`,
	)
	svc := &fakeService{err: errors.New("remote unavailable")}
	a := newTestAssistant(t, reasoner, svc)

	res, _ := a.HandleCommand(context.Background(), "提醒我买菜", "", false)

	conf, err := a.HandleCommand(context.Background(), "确认", res.SessionID, true)
	if err == nil {
		t.Fatal("expected the service failure to surface")
	}
	if !strings.HasPrefix(conf.Text, "抱歉，创建任务失败") {
		t.Fatalf("text = %q", conf.Text)
	}
	if a.sessions.Len() != 0 {
		t.Fatal("a confirmed session is consumed even when execution fails")
	}
}

func TestHandleSyncDelegates(t *testing.T) {
	svc := &fakeService{}
	a := newTestAssistant(t, mock.NewReasoner(), svc)

	report, err := a.HandleSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if svc.syncs != 1 {
		t.Fatalf("syncs = %d", svc.syncs)
	}
	if report.ProjectCount != 1 || report.TaskCount != 2 {
		t.Fatalf("report = %+v", report)
	}
}
