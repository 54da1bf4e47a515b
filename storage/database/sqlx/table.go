package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// table describes a table whose rows are identified by a UUID `id` column.
type table struct {
	name       string
	columns    []string // id first
	insertOnly []string // columns never rewritten by an update
	notFound   error
}

func (t table) selectColumns() string { return strings.Join(t.columns, ", ") }

func (t table) updateColumns() []string {
	cols := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		if col != "id" && !core.StringInSlice(col, t.insertOnly) {
			cols = append(cols, col)
		}
	}
	return cols
}

func (t table) create(ctx context.Context, db sqlx.ExtContext, row interface{}) error {
	return errors.Wrap(insert(ctx, db, t.name, t.columns, row), "inserting into "+t.name)
}

func (t table) update(ctx context.Context, db sqlx.ExtContext, id string, row interface{}) error {
	if !validID(id) {
		return t.notFound
	}
	err := updateByID(ctx, db, t.name, t.updateColumns(), row, t.notFound)
	if err != nil && err != t.notFound {
		return errors.Wrap(err, "updating "+t.name)
	}
	return err
}

func (t table) delete(ctx context.Context, db *sqlx.DB, id string) error {
	if !validID(id) {
		return t.notFound
	}
	return deleteByID(ctx, db, t.name, id, t.notFound)
}

func getRow[R any](ctx context.Context, db *sqlx.DB, t table, id string) (R, error) {
	var row R
	if !validID(id) {
		return row, t.notFound
	}
	err := getOne(ctx, db, &row, t.notFound, "SELECT "+t.selectColumns()+" FROM "+t.name+" WHERE id = ?", id)
	return row, err
}

func queryRows[R any](ctx context.Context, db *sqlx.DB, t table, w *where, order string, page core.Pagination) ([]R, int, error) {
	rows, total, err := selectPage[R](ctx, db, t.selectColumns(), t.name, w, order, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying "+t.name)
	}
	return rows, total, nil
}

// mapRows converts scanned rows to domain values.
func mapRows[R, T any](rows []R, conv func(R) T) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, conv(row))
	}
	return out
}
