// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/services/logger"
	"github.com/trezcool/workdesk/storage/database"
)

func NewLogger() core.Logger {
	return logsvc.NewDiscardLogger(core.NewTestConfig())
}

// NewValidator returns a validator set up the way the API server does it.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

// OpenSQLite returns a migrated private in-memory sqlite database, closed with the test.
func OpenSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db.DB, database.EngineSQLite); err != nil {
		t.Fatalf("Migrate(): %v", err)
	}
	return db
}

func CreateUser(t *testing.T, repo user.Repository, email, pwd, role string, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Second)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{Email: email, Role: role, CreatedAt: tstamp}
	if pwd == "" {
		pwd = "secret123"
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateTask stores a task created by its assignee unless t.CreatedBy is set.
func CreateTask(t *testing.T, repo task.Repository, tsk task.Task) task.Task {
	t.Helper()
	if tsk.CreatedBy == "" {
		tsk.CreatedBy = tsk.AssigneeID
	}
	if tsk.Priority == "" {
		tsk.Priority = task.PriorityMedium
	}
	if tsk.Kind == "" {
		tsk.Kind = task.KindTask
	}
	if tsk.CreatedAt.IsZero() {
		tsk.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	tsk, err := repo.CreateTask(context.Background(), tsk)
	if err != nil {
		t.Fatalf("CreateTask(): %v", err)
	}
	return tsk
}

func TimePtr(t time.Time) *time.Time { return &t }
