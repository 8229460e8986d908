package sqlxrepo

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/user"
)

var userColumns = []string{"id", "email", "role", "password_hash", "created_at"}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{base: newBase(db, nil)}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	q := repo.sb.Select("COUNT(*)").From("users").Where(sq.Eq{"email": email})
	if len(excludedIDs) > 0 {
		q = q.Where(sq.NotEq{"id": excludedIDs})
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	var n int
	if err = repo.db.GetContext(ctx, &n, stmt, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	usr.CreatedAt = usr.CreatedAt.UTC()
	stmt, args, err := repo.sb.Insert("users").
		Columns(userColumns...).
		Values(usr.ID, usr.Email, usr.Role, usr.PasswordHash, usr.CreatedAt).
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	if _, err = repo.db.ExecContext(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := repo.sb.Select(userColumns...).From("users")
	switch {
	case filter.ID != "":
		if !repo.validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		q = q.Where(sq.Eq{"email": filter.Email})
	default:
		return user.User{}, user.ErrNotFound
	}

	stmt, args, err := q.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	var usr user.User
	if err = repo.db.GetContext(ctx, &usr, stmt, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, "finding user")
	}
	usr.CreatedAt = usr.CreatedAt.UTC()
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	q := repo.sb.Select(userColumns...).From("users")
	if filter.Role != "" {
		q = q.Where(sq.Eq{"role": filter.Role})
	}
	if filter.Search != "" {
		q = q.Where(sq.Like{"LOWER(email)": "%" + filter.Search + "%"})
	}
	for _, ord := range orderings {
		if user.Orderable[ord.Field] {
			q = q.OrderBy(ord.String())
		}
	}
	q = q.OrderBy("id ASC")

	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0)
	if err = repo.db.SelectContext(ctx, &users, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	for i := range users {
		users[i].CreatedAt = users[i].CreatedAt.UTC()
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !repo.validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	q := repo.sb.Update("users").
		Set("email", usr.Email).
		Set("role", usr.Role).
		Where(sq.Eq{"id": usr.ID})
	if usr.PasswordHash != nil {
		q = q.Set("password_hash", usr.PasswordHash)
	}
	if err := repo.execOne(ctx, q, "updating user"); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, err
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}
