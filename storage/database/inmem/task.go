package inmemdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/query"
	"github.com/trezcool/workdesk/core/task"
)

type taskRepository struct {
	db *DB
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *DB) task.Repository {
	return &taskRepository{db: db}
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.mu.Lock()
	t.ID = uuid.New().String()
	repo.db.tasks[t.ID] = &t
	repo.db.mu.Unlock()

	return t, repo.db.publish(query.Tasks.Name, livesync.OpInsert, t.ID, t)
}

func (repo *taskRepository) GetTask(_ context.Context, id string) (task.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if t, ok := repo.db.tasks[id]; ok {
		return *t, nil
	}
	return task.Task{}, task.ErrNotFound
}

func (repo *taskRepository) QueryTasks(_ context.Context, q query.Query) ([]task.Task, error) {
	if q.Table.Name != query.Tasks.Name {
		return nil, errors.Errorf("querying tasks: unexpected table %q", q.Table.Name)
	}

	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tasks := make([]task.Task, 0)
	for _, t := range repo.db.tasks {
		row, err := toRow(t)
		if err != nil {
			return nil, errors.Wrap(err, "querying tasks")
		}
		if q.Match(row) {
			tasks = append(tasks, *t)
		}
	}
	task.Sort(tasks, q.Orderings)
	return tasks, nil
}

func (repo *taskRepository) SetTaskComplete(_ context.Context, id string, done bool) (task.Task, error) {
	repo.db.mu.Lock()
	t, ok := repo.db.tasks[id]
	if !ok {
		repo.db.mu.Unlock()
		return task.Task{}, task.ErrNotFound
	}
	t.IsComplete = done
	updated := *t
	repo.db.mu.Unlock()

	return updated, repo.db.publish(query.Tasks.Name, livesync.OpUpdate, id, updated)
}

func (repo *taskRepository) DeleteTask(_ context.Context, id string) error {
	repo.db.mu.Lock()
	t, ok := repo.db.tasks[id]
	if !ok {
		repo.db.mu.Unlock()
		return task.ErrNotFound
	}
	delete(repo.db.tasks, id)
	repo.db.mu.Unlock()

	return repo.db.publish(query.Tasks.Name, livesync.OpDelete, id, *t)
}
