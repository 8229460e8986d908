// Package query is a small typed predicate builder shared by the SQL repositories,
// the in-memory store and the change feed filters.
//
// A Query is validated against its Table when built, so a column name never
// reaches SQL unless it is one of the table's known columns.
package query

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/trezcool/workdesk/core"
)

// Row is a record decoded from JSON, keyed by column name.
type Row map[string]interface{}

type Table struct {
	Name    string
	columns map[string]struct{}
}

func NewTable(name string, columns ...string) Table {
	t := Table{Name: name, columns: make(map[string]struct{}, len(columns))}
	for _, c := range columns {
		t.columns[c] = struct{}{}
	}
	return t
}

func (t Table) HasColumn(col string) bool {
	_, ok := t.columns[col]
	return ok
}

func (t Table) Columns() []string {
	cols := make([]string, 0, len(t.columns))
	for c := range t.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

var (
	Tasks = NewTable("tasks",
		"id", "title", "description", "is_complete", "assignee_id", "created_by",
		"priority", "due_date", "type", "meeting_link", "created_at")

	Messages = NewTable("messages",
		"id", "content", "sender_id", "receiver_id", "created_at")
)

// Cond is a predicate over a single table row.
type Cond interface {
	Match(row Row) bool
	sqlizer(alias string) sq.Sqlizer
	columns() []string
}

type (
	eq struct {
		col string
		val interface{}
	}
	isNull struct{ col string }
	and    []Cond
	or     []Cond
)

// Eq matches rows whose column equals v. v must be a string or a bool.
func Eq(col string, v interface{}) Cond { return eq{col: col, val: v} }

func IsNull(col string) Cond { return isNull{col: col} }

func And(conds ...Cond) Cond { return and(conds) }

func Or(conds ...Cond) Cond { return or(conds) }

func (c eq) Match(row Row) bool {
	v, ok := row[c.col]
	if !ok || v == nil {
		return false
	}
	return v == c.val
}

func (c eq) sqlizer(alias string) sq.Sqlizer { return sq.Eq{qualify(alias, c.col): c.val} }
func (c eq) columns() []string               { return []string{c.col} }

func (c isNull) Match(row Row) bool {
	v, ok := row[c.col]
	return !ok || v == nil
}

func (c isNull) sqlizer(alias string) sq.Sqlizer { return sq.Eq{qualify(alias, c.col): nil} }
func (c isNull) columns() []string               { return []string{c.col} }

func (c and) Match(row Row) bool {
	for _, cond := range c {
		if !cond.Match(row) {
			return false
		}
	}
	return true
}

func (c and) sqlizer(alias string) sq.Sqlizer {
	out := make(sq.And, 0, len(c))
	for _, cond := range c {
		out = append(out, cond.sqlizer(alias))
	}
	return out
}

func (c and) columns() []string { return collectColumns(c) }

func (c or) Match(row Row) bool {
	for _, cond := range c {
		if cond.Match(row) {
			return true
		}
	}
	return false
}

func (c or) sqlizer(alias string) sq.Sqlizer {
	out := make(sq.Or, 0, len(c))
	for _, cond := range c {
		out = append(out, cond.sqlizer(alias))
	}
	return out
}

func (c or) columns() []string { return collectColumns(c) }

func collectColumns(conds []Cond) []string {
	var cols []string
	for _, cond := range conds {
		cols = append(cols, cond.columns()...)
	}
	return cols
}

func qualify(alias, col string) string {
	if alias == "" {
		return col
	}
	return alias + "." + col
}

// Query is a validated predicate plus ordering over one table.
type Query struct {
	Table     Table
	Cond      Cond // nil matches every row
	Orderings []core.DBOrdering
}

// New builds a Query, checking every referenced column against the table.
func New(table Table, cond Cond, orderings ...core.DBOrdering) (Query, error) {
	var fldErrs []core.FieldError
	if cond != nil {
		for _, col := range cond.columns() {
			if !table.HasColumn(col) {
				fldErrs = append(fldErrs, core.FieldError{Field: col, Error: fmt.Sprintf("unknown %s column", table.Name)})
			}
		}
		if err := checkValues(cond); err != nil {
			fldErrs = append(fldErrs, *err)
		}
	}
	for _, ord := range orderings {
		if !table.HasColumn(ord.Field) {
			fldErrs = append(fldErrs, core.FieldError{Field: "ordering", Error: fmt.Sprintf("cannot order by %q", ord.Field)})
		}
	}
	if fldErrs != nil {
		return Query{}, core.NewValidationError(nil, fldErrs...)
	}
	return Query{Table: table, Cond: cond, Orderings: orderings}, nil
}

// MustNew is New for queries built from constants.
func MustNew(table Table, cond Cond, orderings ...core.DBOrdering) Query {
	q, err := New(table, cond, orderings...)
	if err != nil {
		panic(err)
	}
	return q
}

func checkValues(cond Cond) *core.FieldError {
	switch c := cond.(type) {
	case eq:
		switch c.val.(type) {
		case string, bool:
			return nil
		}
		return &core.FieldError{Field: c.col, Error: fmt.Sprintf("unsupported value type %T", c.val)}
	case and:
		for _, sub := range c {
			if err := checkValues(sub); err != nil {
				return err
			}
		}
	case or:
		for _, sub := range c {
			if err := checkValues(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// Match reports whether row belongs to the query's result set.
func (q Query) Match(row Row) bool {
	if q.Cond == nil {
		return true
	}
	return q.Cond.Match(row)
}

// SQLWhere returns the condition as a squirrel Sqlizer, columns prefixed with alias.
func (q Query) SQLWhere(alias string) sq.Sqlizer {
	if q.Cond == nil {
		return sq.Expr("1 = 1")
	}
	return q.Cond.sqlizer(alias)
}

// SQLOrderBy returns ORDER BY clauses with nulls placed the postgres way (last when ascending),
// followed by the id as a tie breaker.
func (q Query) SQLOrderBy(alias string) []string {
	clauses := make([]string, 0, len(q.Orderings)+1)
	for _, ord := range q.Orderings {
		nulls := "NULLS FIRST"
		if ord.Ascending {
			nulls = "NULLS LAST"
		}
		clauses = append(clauses, qualify(alias, ord.String())+" "+nulls)
	}
	return append(clauses, qualify(alias, "id")+" ASC")
}
