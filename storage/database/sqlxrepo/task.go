package sqlxrepo

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/query"
	"github.com/trezcool/workdesk/core/task"
)

var taskColumns = []string{
	"id", "title", "description", "is_complete", "assignee_id", "created_by",
	"priority", "due_date", "type", "meeting_link", "created_at",
}

type taskRepository struct {
	base
}

var _ task.Repository = (*taskRepository)(nil)

// NewTaskRepository returns a task repository. pub may be nil; it is only needed on sqlite.
func NewTaskRepository(db *sqlx.DB, pub livesync.Publisher) task.Repository {
	return &taskRepository{base: newBase(db, pub)}
}

func utcTask(t task.Task) task.Task {
	t.CreatedAt = t.CreatedAt.UTC()
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}
	return t
}

func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	t.ID = uuid.New().String()
	t = utcTask(t)
	stmt, args, err := repo.sb.Insert(query.Tasks.Name).
		Columns(taskColumns...).
		Values(t.ID, t.Title, t.Description, t.IsComplete, t.AssigneeID, t.CreatedBy,
			t.Priority, t.DueDate, t.Kind, t.MeetingLink, t.CreatedAt).
		ToSql()
	if err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	if _, err = repo.db.ExecContext(ctx, stmt, args...); err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	return t, repo.publish(query.Tasks.Name, livesync.OpInsert, t.ID, t)
}

func (repo *taskRepository) GetTask(ctx context.Context, id string) (task.Task, error) {
	if !repo.validID(id) {
		return task.Task{}, task.ErrNotFound
	}
	stmt, args, err := repo.sb.Select(taskColumns...).From(query.Tasks.Name).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return task.Task{}, errors.Wrap(err, "finding task")
	}
	var t task.Task
	if err = repo.db.GetContext(ctx, &t, stmt, args...); err != nil {
		return task.Task{}, trapNoRowsErr(err, "finding task")
	}
	return utcTask(t), nil
}

func (repo *taskRepository) QueryTasks(ctx context.Context, q query.Query) ([]task.Task, error) {
	if q.Table.Name != query.Tasks.Name {
		return nil, errors.Errorf("querying tasks: unexpected table %q", q.Table.Name)
	}
	cols := make([]string, 0, len(taskColumns))
	for _, c := range taskColumns {
		cols = append(cols, "t."+c)
	}
	stmt, args, err := repo.sb.Select(cols...).
		From(query.Tasks.Name + " t").
		Where(q.SQLWhere("t")).
		OrderBy(q.SQLOrderBy("t")...).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]task.Task, 0)
	if err = repo.db.SelectContext(ctx, &tasks, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	for i := range tasks {
		tasks[i] = utcTask(tasks[i])
	}
	return tasks, nil
}

func (repo *taskRepository) SetTaskComplete(ctx context.Context, id string, done bool) (task.Task, error) {
	if !repo.validID(id) {
		return task.Task{}, task.ErrNotFound
	}
	q := repo.sb.Update(query.Tasks.Name).Set("is_complete", done).Where(sq.Eq{"id": id})
	if err := repo.execOne(ctx, q, "updating task"); err != nil {
		return task.Task{}, err
	}
	t, err := repo.GetTask(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	return t, repo.publish(query.Tasks.Name, livesync.OpUpdate, t.ID, t)
}

func (repo *taskRepository) DeleteTask(ctx context.Context, id string) error {
	if !repo.validID(id) {
		return task.ErrNotFound
	}
	var old task.Task
	if repo.pub != nil {
		var err error
		if old, err = repo.GetTask(ctx, id); err != nil {
			return err
		}
	}
	q := repo.sb.Delete(query.Tasks.Name).Where(sq.Eq{"id": id})
	if err := repo.execOne(ctx, q, "deleting task"); err != nil {
		return err
	}
	return repo.publish(query.Tasks.Name, livesync.OpDelete, id, old)
}
