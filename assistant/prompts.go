package assistant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cr8z/taskvoice/store"
)

// Snapshot is the cache view handed to the interpreter: pending tasks plus
// all known projects.
type Snapshot struct {
	Tasks    []*store.Task
	Projects []*store.Project
}

const analysisPromptTemplate = `请根据以下信息帮我理解用户想要做什么：

当前时间：%s
用户指令：%s
当前任务列表：%s
可用项目列表：%s

你是一个智能任务助手。请分析用户的指令并理解用户的意图，如果有所疑问，请向用户确认。
你可以根据已有的日程任务给出建议：
- 用户未指定日期的任务，可以根据已有安排建议空闲时间。
- 用户未指定项目的任务，可以建议放在哪个项目里。

你拥有调用清单API的权限。需要操作任务时，请回复以下格式的JSON：
{
    "action": "create_task" | "update_task" | "get_task",
    "task_data": {
        "title": "任务标题（创建时必填）",
        "content": "任务内容（可选）",
        "projectId": "项目ID（可选；更新任务时必填）",
        "id": "任务ID（更新任务时必填）",
        "isAllDay": true/false,
        "startDate": "开始时间，格式：yyyy-MM-dd'T'HH:mm:ssZ，例如 2024-03-21T15:30:00+0800",
        "dueDate": "结束时间，同上格式",
        "timeZone": "Asia/Shanghai",
        "reminders": ["TRIGGER:P0DT9H0M0S"],
        "priority": 0/1/2/3,
        "status": 0/1,
        "date": "查询某天任务时的日期，格式 yyyy-MM-dd",
        "items": [{"title": "子任务标题", "status": 0}]
    },
    "response": "对用户友好且口语化的回复，将会通过语音播放给用户"
}

注意事项：
1. 时间格式必须严格遵循 yyyy-MM-dd'T'HH:mm:ssZ。
2. 提到项目时请使用可用项目列表中对应的ID。
3. 优先级对应关系：普通=0，中等=1，高=2，紧急=3。
4. 所有时间使用 Asia/Shanghai 时区。
5. 更新任务时必须提供任务ID和项目ID，其余只包含要更新的字段。
6. 无法理解指令时，礼貌地请求用户澄清。

如果不需要调用清单API，请只回复：
{
    "response": "对用户友好且口语化的回复"（必填）
}`

const confirmationPromptTemplate = `用户此前请求执行以下任务操作，正在等待确认：

操作类型：%s
任务数据：%s
此前的提示语：%s

用户的答复是：%s

请判断用户是否确认执行该操作，并回复以下格式的JSON：
{
    "confirmed": true/false,
    "response": "对用户友好且口语化的回复",
    "action": "若用户想调整操作，给出新的操作类型（可选）",
    "task_data": { 调整后的任务数据（可选） }
}

如果用户明确同意（如"好的"、"确认"、"没问题"），confirmed 为 true。
如果用户拒绝或要求修改，confirmed 为 false，并在 task_data 中给出你建议的调整。`

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "一",
	time.Tuesday:   "二",
	time.Wednesday: "三",
	time.Thursday:  "四",
	time.Friday:    "五",
	time.Saturday:  "六",
	time.Sunday:    "日",
}

// formatLocalTime renders the current time the way the prompts expect,
// including the weekday, e.g. "2024年03月21日 星期四 15:30".
func formatLocalTime(now time.Time) string {
	return fmt.Sprintf("%s 星期%s %s",
		now.Format("2006年01月02日"),
		weekdayNames[now.Weekday()],
		now.Format("15:04"),
	)
}

// analysisPrompt builds the single interpretation prompt from the current
// time, the raw command, and the cache snapshot.
func analysisPrompt(command string, snap Snapshot, now time.Time) string {
	tasks, _ := json.Marshal(snap.Tasks)
	projects, _ := json.Marshal(snap.Projects)
	return fmt.Sprintf(analysisPromptTemplate, formatLocalTime(now), command, tasks, projects)
}

// confirmationPrompt builds the confirmation-analysis prompt for a parked
// action and the user's follow-up reply.
func confirmationPrompt(pending *PendingAction, reply string) string {
	taskJSON, _ := json.Marshal(pending.Task)
	return fmt.Sprintf(confirmationPromptTemplate, pending.Action, taskJSON, pending.Response, reply)
}
