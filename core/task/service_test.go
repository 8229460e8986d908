package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/storage/database/inmem"
	"github.com/trezcool/workdesk/testutil"
)

type fixture struct {
	svc              task.Service
	repo             task.Repository
	admin, bob, carl user.User
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open(nil)
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nil, core.NewTestConfig())
	repo := inmemdb.NewTaskRepository(db)
	return fixture{
		svc:   task.NewService(repo, usrSvc),
		repo:  repo,
		admin: testutil.CreateUser(t, usrRepo, "admin@test.cd", "", user.RoleAdmin),
		bob:   testutil.CreateUser(t, usrRepo, "bob@test.cd", "", user.RoleStaff),
		carl:  testutil.CreateUser(t, usrRepo, "carl@test.cd", "", user.RoleStaff),
	}
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tsk, err := f.svc.Create(ctx, f.bob, task.NewTask{Title: "Report", Priority: task.PriorityHigh, Kind: task.KindTask})
	require.NoError(t, err)
	assert.NotEmpty(t, tsk.ID)
	assert.Equal(t, f.bob.ID, tsk.AssigneeID)
	assert.Equal(t, f.bob.ID, tsk.CreatedBy)
	assert.Nil(t, tsk.Description)

	_, err = f.svc.Create(ctx, f.bob, task.NewTask{Title: "For carl", AssigneeID: f.carl.ID})
	assert.Equal(t, core.ErrForbidden, err)

	tsk, err = f.svc.Create(ctx, f.admin, task.NewTask{Title: "For carl", AssigneeID: f.carl.ID, Description: "  "})
	require.NoError(t, err)
	assert.Equal(t, f.carl.ID, tsk.AssigneeID)
	assert.Equal(t, f.admin.ID, tsk.CreatedBy)
	assert.Nil(t, tsk.Description)

	_, err = f.svc.Create(ctx, f.admin, task.NewTask{Title: "Nobody", AssigneeID: "unknown"})
	assert.True(t, core.IsValidationError(err))
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	b1 := testutil.CreateTask(t, f.repo, task.Task{Title: "b1", AssigneeID: f.bob.ID, CreatedAt: now})
	b2 := testutil.CreateTask(t, f.repo, task.Task{Title: "b2", AssigneeID: f.bob.ID, DueDate: testutil.TimePtr(now.Add(time.Hour)), CreatedAt: now.Add(time.Second)})
	b3 := testutil.CreateTask(t, f.repo, task.Task{Title: "b3", AssigneeID: f.bob.ID, DueDate: testutil.TimePtr(now.Add(time.Minute)), IsComplete: true, CreatedAt: now.Add(2 * time.Second)})
	c1 := testutil.CreateTask(t, f.repo, task.Task{Title: "c1", AssigneeID: f.carl.ID, CreatedAt: now.Add(3 * time.Second)})

	tests := []struct {
		name     string
		actor    user.User
		assignee string
		ords     []core.DBOrdering
		want     []task.Task
		wantErr  error
	}{
		{name: "staff: own tasks, incomplete & soonest first", actor: f.bob, want: []task.Task{b2, b1, b3}},
		{name: "staff: explicit self", actor: f.bob, assignee: f.bob.ID, want: []task.Task{b2, b1, b3}},
		{name: "staff: other's tasks", actor: f.bob, assignee: f.carl.ID, wantErr: core.ErrForbidden},
		{name: "admin: board, newest first", actor: f.admin, want: []task.Task{c1, b3, b2, b1}},
		{name: "admin: one assignee", actor: f.admin, assignee: f.carl.ID, want: []task.Task{c1}},
		{
			name: "admin: custom ordering", actor: f.admin, assignee: f.bob.ID,
			ords: core.ParseOrderings("title"), want: []task.Task{b1, b2, b3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Query(ctx, tt.actor, tt.assignee, tt.ords...)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.svc.Query(ctx, f.admin, "", core.ParseOrderings("-description")...)
	assert.True(t, core.IsValidationError(err))
}

func TestService_SetComplete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tsk := testutil.CreateTask(t, f.repo, task.Task{Title: "t", AssigneeID: f.bob.ID})

	_, _, err := f.svc.SetComplete(ctx, f.carl, tsk.ID, true)
	assert.Equal(t, core.ErrForbidden, err)

	got, ok, err := f.svc.SetComplete(ctx, f.bob, tsk.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.IsComplete)

	got, ok, err = f.svc.SetComplete(ctx, f.admin, tsk.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, got.IsComplete)

	// stale write
	require.NoError(t, f.repo.DeleteTask(ctx, tsk.ID))
	_, ok, err = f.svc.SetComplete(ctx, f.bob, tsk.ID, true)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	byAdmin := testutil.CreateTask(t, f.repo, task.Task{Title: "assigned", AssigneeID: f.bob.ID, CreatedBy: f.admin.ID})
	byBob := testutil.CreateTask(t, f.repo, task.Task{Title: "own", AssigneeID: f.bob.ID})
	byCarl := testutil.CreateTask(t, f.repo, task.Task{Title: "carl's", AssigneeID: f.carl.ID})

	// the assignee cannot delete a task they did not create
	assert.Equal(t, core.ErrForbidden, f.svc.Delete(ctx, f.bob, byAdmin.ID))
	assert.NoError(t, f.svc.Delete(ctx, f.bob, byBob.ID))
	assert.NoError(t, f.svc.Delete(ctx, f.admin, byCarl.ID))
	// deleting twice is a no-op
	assert.NoError(t, f.svc.Delete(ctx, f.admin, byCarl.ID))

	_, err := f.repo.GetTask(ctx, byBob.ID)
	assert.Equal(t, task.ErrNotFound, err)
	_, err = f.repo.GetTask(ctx, byAdmin.ID)
	assert.NoError(t, err)
}

func TestService_View(t *testing.T) {
	f := setup(t)

	c, err := livesync.Tasks(f.bob.ID)
	require.NoError(t, err)
	view, err := f.svc.View(c)
	require.NoError(t, err)
	assert.Equal(t, "tasks", view.Query.Table.Name)
	assert.Equal(t, task.StaffOrdering, view.Query.Orderings)
	assert.NotNil(t, view.Less)

	_, err = f.svc.View(livesync.Broadcast())
	assert.Error(t, err)
}
