package task

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/query"
	"github.com/trezcool/workdesk/core/user"
)

var (
	ErrNotFound = core.ErrNotFound

	errAssigneeNotFound = errors.New("assignee not found")

	// Orderable lists the fields tasks can be ordered by.
	Orderable = map[string]bool{
		"is_complete": true, "due_date": true, "created_at": true, "title": true,
		"priority": true, "type": true, "assignee_id": true,
	}
)

type (
	Repository interface {
		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, id string) (Task, error)
		QueryTasks(ctx context.Context, q query.Query) ([]Task, error)
		// SetTaskComplete returns ErrNotFound if the task does not exist.
		SetTaskComplete(ctx context.Context, id string, done bool) (Task, error)
		// DeleteTask returns ErrNotFound if the task does not exist.
		DeleteTask(ctx context.Context, id string) error
	}

	// UserGetter finds assignees.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		livesync.Gateway[Task]

		Create(ctx context.Context, actor user.User, nt NewTask) (Task, error)
		// Get returns ErrNotFound for tasks the actor cannot see.
		Get(ctx context.Context, actor user.User, id string) (Task, error)
		// Query lists the actor's tasks. Admins may list anyone's (or everyone's, with an empty assignee).
		Query(ctx context.Context, actor user.User, assignee string, orderings ...core.DBOrdering) ([]Task, error)
		// SetComplete is a no-op returning ok=false when the task no longer exists.
		SetComplete(ctx context.Context, actor user.User, id string, done bool) (t Task, ok bool, err error)
		// Delete is allowed to admins and to the task's creator. Deleting a missing task is a no-op.
		Delete(ctx context.Context, actor user.User, id string) error
		// View describes the sync view of a tasks context.
		View(c livesync.Context, orderings ...core.DBOrdering) (livesync.View[Task], error)
	}

	service struct {
		repo  Repository
		users UserGetter
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserGetter) Service {
	return &service{repo: repo, users: users}
}

func canSee(actor user.User, t Task) bool {
	return actor.IsAdmin() || t.AssigneeID == actor.ID
}

func checkOrderings(orderings []core.DBOrdering) error {
	for _, ord := range orderings {
		if !Orderable[ord.Field] {
			return core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: fmt.Sprintf("cannot order by %q", ord.Field)})
		}
	}
	return nil
}

func (svc *service) FetchInitial(ctx context.Context, q query.Query) ([]Task, error) {
	return svc.repo.QueryTasks(ctx, q)
}

func (svc *service) Create(ctx context.Context, actor user.User, nt NewTask) (Task, error) {
	if nt.AssigneeID == "" {
		nt.AssigneeID = actor.ID
	}
	if nt.AssigneeID != actor.ID {
		if !actor.IsAdmin() {
			return Task{}, core.ErrForbidden
		}
		if _, err := svc.users.GetByID(ctx, nt.AssigneeID); err != nil {
			if errors.Cause(err) == core.ErrNotFound {
				return Task{}, core.NewValidationError(errAssigneeNotFound, core.FieldError{Field: "assignee_id", Error: errAssigneeNotFound.Error()})
			}
			return Task{}, errors.Wrap(err, "finding assignee")
		}
	}

	t := Task{
		Title:       nt.Title,
		Description: core.StringPtr(nt.Description),
		AssigneeID:  nt.AssigneeID,
		CreatedBy:   actor.ID,
		Priority:    nt.Priority,
		Kind:        nt.Kind,
		MeetingLink: core.StringPtr(nt.MeetingLink),
		CreatedAt:   time.Now().UTC(),
	}
	if nt.DueDate != nil {
		due := nt.DueDate.UTC()
		t.DueDate = &due
	}
	t, err := svc.repo.CreateTask(ctx, t)
	return t, errors.Wrap(err, "creating task")
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !canSee(actor, t) {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (svc *service) Query(ctx context.Context, actor user.User, assignee string, orderings ...core.DBOrdering) ([]Task, error) {
	if err := checkOrderings(orderings); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if assignee != "" && assignee != actor.ID {
			return nil, core.ErrForbidden
		}
		assignee = actor.ID
	}

	var cond query.Cond
	if assignee != "" {
		c, err := livesync.Tasks(assignee)
		if err != nil {
			return nil, err
		}
		cond = c.Predicate()
	}
	if len(orderings) == 0 {
		if assignee == "" {
			orderings = BoardOrdering
		} else {
			orderings = StaffOrdering
		}
	}
	q, err := query.New(query.Tasks, cond, orderings...)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryTasks(ctx, q)
}

func (svc *service) SetComplete(ctx context.Context, actor user.User, id string, done bool) (Task, bool, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Task{}, false, nil
		}
		return Task{}, false, errors.Wrap(err, "finding task")
	}
	if !canSee(actor, t) {
		return Task{}, false, core.ErrForbidden
	}
	if t, err = svc.repo.SetTaskComplete(ctx, id, done); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Task{}, false, nil
		}
		return Task{}, false, errors.Wrap(err, "updating task")
	}
	return t, true, nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding task")
	}
	if !actor.IsAdmin() && t.CreatedBy != actor.ID {
		return core.ErrForbidden
	}
	if err = svc.repo.DeleteTask(ctx, id); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "deleting task")
	}
	return nil
}

func (svc *service) View(c livesync.Context, orderings ...core.DBOrdering) (livesync.View[Task], error) {
	if c.Kind() != livesync.KindTasks {
		return livesync.View[Task]{}, errors.Errorf("%s is not a tasks context", c)
	}
	if err := checkOrderings(orderings); err != nil {
		return livesync.View[Task]{}, err
	}
	if len(orderings) == 0 {
		orderings = StaffOrdering
	}
	q, err := c.Query(orderings...)
	if err != nil {
		return livesync.View[Task]{}, err
	}
	return livesync.View[Task]{Context: c, Query: q, Less: Less(orderings)}, nil
}
