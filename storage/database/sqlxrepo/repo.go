// Package sqlxrepo implements the repositories on postgres and sqlite with sqlx and squirrel.
package sqlxrepo

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
)

type base struct {
	db       *sqlx.DB
	sb       sq.StatementBuilderType
	postgres bool
	// pub receives committed writes on engines without a notification trigger. nil on postgres.
	pub livesync.Publisher
}

func newBase(db *sqlx.DB, pub livesync.Publisher) base {
	b := base{db: db, pub: pub, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if db.DriverName() == "postgres" {
		b.postgres = true
		b.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return b
}

// validID reports whether id can be looked up; postgres rejects malformed uuids.
func (b base) validID(id string) bool {
	if id == "" {
		return false
	}
	if b.postgres {
		_, err := uuid.Parse(id)
		return err == nil
	}
	return true
}

func (b base) publish(table string, op livesync.Op, id string, record interface{}) error {
	return errors.Wrap(livesync.Publish(b.pub, table, op, id, record), "publishing change")
}

// trapNoRowsErr maps "no rows" errors to core.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return core.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// execOne runs a write that must affect one row, returning core.ErrNotFound otherwise.
func (b base) execOne(ctx context.Context, query sq.Sqlizer, msg string) error {
	stmt, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	res, err := b.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case *sqlite.Error:
		code := e.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(e.Error(), "UNIQUE"))
	}
	return false
}
