package echoapi_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/workdesk/apps/api/echo"
	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/testutil"
)

type taskFixture struct {
	env                 *testEnv
	admin, alice, bruno user.User
	adminToken          string
	aliceToken          string
	brunoToken          string
}

func setupTasks(t *testing.T) taskFixture {
	env := setup(t)
	f := taskFixture{
		env:   env,
		admin: testutil.CreateUser(t, env.usrRepo, "admin@test.cd", "", user.RoleAdmin),
		alice: testutil.CreateUser(t, env.usrRepo, "alice@test.cd", "", user.RoleStaff),
		bruno: testutil.CreateUser(t, env.usrRepo, "bruno@test.cd", "", user.RoleStaff),
	}
	f.adminToken = getToken(t, env.conf, f.admin)
	f.aliceToken = getToken(t, env.conf, f.alice)
	f.brunoToken = getToken(t, env.conf, f.bruno)
	return f
}

func Test_taskApi_query(t *testing.T) {
	f := setupTasks(t)
	now := time.Now().UTC().Truncate(time.Second)

	done := testutil.CreateTask(t, f.env.taskRepo, task.Task{
		Title: "done", AssigneeID: f.alice.ID, IsComplete: true, DueDate: testutil.TimePtr(now), CreatedAt: now.Add(-3 * time.Hour),
	})
	later := testutil.CreateTask(t, f.env.taskRepo, task.Task{
		Title: "later", AssigneeID: f.alice.ID, DueDate: testutil.TimePtr(now.Add(48 * time.Hour)), CreatedAt: now.Add(-2 * time.Hour),
	})
	noDue := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "someday", AssigneeID: f.alice.ID, CreatedAt: now.Add(-time.Hour)})
	soon := testutil.CreateTask(t, f.env.taskRepo, task.Task{
		Title: "soon", AssigneeID: f.alice.ID, DueDate: testutil.TimePtr(now.Add(time.Hour)), CreatedBy: f.admin.ID, CreatedAt: now,
	})
	brunos := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "bruno's", AssigneeID: f.bruno.ID, CreatedAt: now.Add(time.Minute)})

	tests := []httpTest{
		{name: "Auth required", path: "/v1/tasks", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "staff: own tasks, incomplete & soonest first", path: "/v1/tasks", token: f.aliceToken,
			wantCode: http.StatusOK, wantData: marchallList(t, soon, later, noDue, done),
		},
		{
			name: "staff: self as assignee", path: "/v1/tasks?assignee=" + f.alice.ID, token: f.aliceToken,
			wantCode: http.StatusOK, wantData: marchallList(t, soon, later, noDue, done),
		},
		{
			name: "staff: someone else's", path: "/v1/tasks?assignee=" + f.alice.ID, token: f.brunoToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin: board, newest first", path: "/v1/tasks", token: f.adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, brunos, soon, noDue, later, done),
		},
		{
			name: "admin: one assignee", path: "/v1/tasks?assignee=" + f.bruno.ID, token: f.adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, brunos),
		},
		{
			name: "admin: ordering", path: "/v1/tasks?ordering=title&assignee=" + f.alice.ID, token: f.adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, done, later, noDue, soon),
		},
		{
			name: "bad ordering", path: "/v1/tasks?ordering=description", token: f.adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"ordering": `cannot order by "description"`}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.env.do(tt))
		})
	}
}

func Test_taskApi_create(t *testing.T) {
	f := setupTasks(t)

	tests := []httpTest{
		{name: "Auth required", body: []byte(`{"title":"x"}`), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "blank title", body: []byte(`{"title":"   "}`), token: f.aliceToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "bad priority", body: []byte(`{"title":"x","priority":"urgent"}`), token: f.aliceToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"priority": "must be one of [low, medium, high]"}),
		},
		{
			name: "staff for someone else", body: marchallObj(t, task.NewTask{Title: "x", AssigneeID: f.bruno.ID}), token: f.aliceToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin for unknown assignee", body: []byte(`{"title":"x","assignee_id":"nobody"}`), token: f.adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"assignee_id": "assignee not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/tasks"
			checkCodeAndData(t, tt, f.env.do(tt))
		})
	}

	t.Run("staff for self", func(t *testing.T) {
		rec := f.env.do(httpTest{method: http.MethodPost, path: "/v1/tasks", token: f.aliceToken, body: []byte(`{"title":" Write report "}`)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var got task.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "Write report", got.Title)
		assert.Equal(t, f.alice.ID, got.AssigneeID)
		assert.Equal(t, f.alice.ID, got.CreatedBy)
		assert.Equal(t, task.PriorityMedium, got.Priority)
		assert.Equal(t, task.KindTask, got.Kind)
	})

	t.Run("admin meeting for staff", func(t *testing.T) {
		body := marchallObj(t, task.NewTask{
			Title: "1:1", AssigneeID: f.bruno.ID, Kind: task.KindMeeting, Priority: task.PriorityHigh,
			MeetingLink: "https://meet.example.com/abc",
		})
		rec := f.env.do(httpTest{method: http.MethodPost, path: "/v1/tasks", token: f.adminToken, body: body})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var got task.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, f.bruno.ID, got.AssigneeID)
		assert.Equal(t, f.admin.ID, got.CreatedBy)
		assert.Equal(t, task.KindMeeting, got.Kind)
		require.NotNil(t, got.MeetingLink)
		assert.Equal(t, "https://meet.example.com/abc", *got.MeetingLink)
	})
}

func Test_taskApi_update(t *testing.T) {
	f := setupTasks(t)
	tsk := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "x", AssigneeID: f.alice.ID, CreatedBy: f.admin.ID})
	path := "/v1/tasks/" + tsk.ID

	completed := tsk
	completed.IsComplete = true

	tests := []httpTest{
		{name: "Auth required", path: path, body: []byte(`{"is_complete":true}`), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "missing is_complete", path: path, body: []byte(`{}`), token: f.aliceToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"is_complete": "this field is required"}),
		},
		{
			name: "not the assignee", path: path, body: []byte(`{"is_complete":true}`), token: f.brunoToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "assignee", path: path, body: []byte(`{"is_complete":true}`), token: f.aliceToken, wantCode: http.StatusOK, wantData: marchallObj(t, completed)},
		{name: "admin", path: path, body: []byte(`{"is_complete":false}`), token: f.adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, tsk)},
		{name: "deleted meanwhile", path: "/v1/tasks/gone", body: []byte(`{"is_complete":true}`), token: f.aliceToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPatch
			checkCodeAndData(t, tt, f.env.do(tt))
		})
	}
}

func Test_taskApi_destroy(t *testing.T) {
	f := setupTasks(t)
	byAdmin := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "assigned", AssigneeID: f.alice.ID, CreatedBy: f.admin.ID})
	byAlice := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "own", AssigneeID: f.alice.ID})
	byBruno := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "bruno's", AssigneeID: f.bruno.ID})

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	tests := []httpTest{
		{name: "Auth required", path: "/v1/tasks/" + byAlice.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "assignee but not creator", path: "/v1/tasks/" + byAdmin.ID, token: f.aliceToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "other staff", path: "/v1/tasks/" + byAlice.ID, token: f.brunoToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "creator", path: "/v1/tasks/" + byAlice.ID, token: f.aliceToken, wantCode: http.StatusNoContent},
		{name: "admin", path: "/v1/tasks/" + byBruno.ID, token: f.adminToken, wantCode: http.StatusNoContent},
		{name: "already deleted", path: "/v1/tasks/" + byBruno.ID, token: f.adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodDelete
			checkCodeAndData(t, tt, f.env.do(tt))
		})
	}

	rec := f.env.do(httpTest{path: "/v1/tasks", token: f.adminToken})
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, byAdmin)}, rec)
}

func Test_taskApi_calendar(t *testing.T) {
	f := setupTasks(t)
	due := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	meeting := testutil.CreateTask(t, f.env.taskRepo, task.Task{
		Title: "Standup", AssigneeID: f.alice.ID, Kind: task.KindMeeting, DueDate: &due,
		MeetingLink: core.StringPtr("https://meet.example.com/standup"),
	})
	undated := testutil.CreateTask(t, f.env.taskRepo, task.Task{Title: "someday", AssigneeID: f.alice.ID})

	tests := []httpTest{
		{
			name: "no due date", path: "/v1/tasks/" + undated.ID + "/calendar", token: f.aliceToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"due_date": "task has no due date"}),
		},
		{
			name: "not visible", path: "/v1/tasks/" + meeting.ID + "/calendar", token: f.brunoToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unknown", path: "/v1/tasks/nope/calendar", token: f.adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.env.do(tt))
		})
	}

	for _, token := range []string{f.aliceToken, f.adminToken} {
		rec := f.env.do(httpTest{path: "/v1/tasks/" + meeting.ID + "/calendar", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.CalendarResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp.URL, "https://calendar.google.com/calendar/render?"), resp.URL)
		assert.Contains(t, resp.URL, "dates=20260302T143000Z%2F20260302T153000Z")
		assert.Contains(t, resp.URL, "text=Standup")
	}
}
