package sqlxrepo

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/query"
)

// RowLoader reads synchronized rows as notify_change() encodes them. Postgres only.
type RowLoader struct {
	base
}

func NewRowLoader(db *sqlx.DB) *RowLoader {
	return &RowLoader{base: newBase(db, nil)}
}

// LoadRow returns the row of table with id as JSON, or core.ErrNotFound.
func (l *RowLoader) LoadRow(ctx context.Context, table, id string) (json.RawMessage, error) {
	if table != query.Tasks.Name && table != query.Messages.Name {
		return nil, errors.Errorf("loading row: unexpected table %q", table)
	}
	if !l.validID(id) {
		return nil, core.ErrNotFound
	}
	stmt, args, err := l.sb.Select("row_to_json(r)").From(table + " r").Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "loading row")
	}
	var data []byte
	if err = l.db.GetContext(ctx, &data, stmt, args...); err != nil {
		return nil, trapNoRowsErr(err, "loading row")
	}
	return data, nil
}
