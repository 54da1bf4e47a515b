// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// where accumulates AND-ed conditions written with `?` placeholders.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) eq(col, val string) {
	if val != "" {
		w.add(col+" = ?", val)
	}
}

// in restricts col to vals; empty vals means no restriction.
func (w *where) in(col string, vals []string) {
	if len(vals) > 0 {
		w.add(col+" = ANY(?)", pq.Array(vals))
	}
}

// idEq restricts a UUID column to id when set.
func (w *where) idEq(col, id string) {
	if id == "" {
		return
	}
	if validID(id) {
		w.add(col+" = ?", id)
	} else {
		w.add("FALSE")
	}
}

// inIDs restricts a UUID column to ids; malformed ids can match nothing.
func (w *where) inIDs(col string, ids []string) {
	if len(ids) == 0 {
		return
	}
	if valid := validIDs(ids); len(valid) > 0 {
		w.add(col+" = ANY(?)", pq.Array(valid))
	} else {
		w.add("FALSE")
	}
}

func (w *where) search(val string, cols ...string) {
	if val == "" {
		return
	}
	parts := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	pattern := "%" + escapeLike(val) + "%"
	for _, col := range cols {
		parts = append(parts, col+" ILIKE ?")
		args = append(args, pattern)
	}
	w.add("("+strings.Join(parts, " OR ")+")", args...)
}

// dateRange restricts a DATE column to [from, to]; zero bounds are open.
func (w *where) dateRange(col string, from, to core.Date) {
	if !from.IsZero() {
		w.add(col+" >= ?", from.Time)
	}
	if !to.IsZero() {
		w.add(col+" <= ?", to.Time)
	}
}

// timeRange restricts a TIMESTAMPTZ column to the days [from, to].
func (w *where) timeRange(col string, from, to core.Date) {
	if !from.IsZero() {
		w.add(col+" >= ?", from.Time)
	}
	if !to.IsZero() {
		w.add(col+" < ?", to.AddDays(1).Time)
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// orderBy builds an ORDER BY clause from the allowed orderings, followed by the defaults.
func orderBy(ordering []core.DBOrdering, allowed []string, defaults ...core.DBOrdering) string {
	ords := append(core.Orderings(ordering).Allowed(allowed...), defaults...)
	if len(ords) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ords))
	for _, ord := range ords {
		parts = append(parts, pq.QuoteIdentifier(ord.Field)+" "+strings.TrimPrefix(ord.String(), ord.Field+" "))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func limit(page core.Pagination) string {
	if !page.Enabled() {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", page.PageSize, page.Offset())
}

// selectPage runs the listing query and, when paginated, the matching count query.
func selectPage[T any](ctx context.Context, db *sqlx.DB, cols, from string, w *where, order string, page core.Pagination) ([]T, int, error) {
	rows := make([]T, 0)
	q := db.Rebind("SELECT " + cols + " FROM " + from + w.String() + order + limit(page))
	if err := db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, 0, err
	}
	if !page.Enabled() {
		return rows, len(rows), nil
	}
	var total int
	cq := db.Rebind("SELECT COUNT(*) FROM " + from + w.String())
	if err := db.GetContext(ctx, &total, cq, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting rows")
	}
	return rows, total, nil
}

// insert runs an INSERT of the named columns of row.
func insert(ctx context.Context, db sqlx.ExtContext, table string, cols []string, row interface{}) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)", table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
	_, err := sqlx.NamedExecContext(ctx, db, q, row)
	return err
}

// updateByID runs an UPDATE of the named columns of row, matched on its id; notFound when no row matched.
func updateByID(ctx context.Context, db sqlx.ExtContext, table string, cols []string, row interface{}, notFound error) error {
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		sets = append(sets, col+" = :"+col)
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", table, strings.Join(sets, ", "))
	res, err := sqlx.NamedExecContext(ctx, db, q, row)
	if err != nil {
		return err
	}
	return checkAffected(res, notFound)
}

func deleteByID(ctx context.Context, db *sqlx.DB, table, id string, notFound error) error {
	res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting from "+table)
	}
	return checkAffected(res, notFound)
}

func deleteByIDs(ctx context.Context, db *sqlx.DB, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting from "+table)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// getOne maps sql.ErrNoRows to notFound.
func getOne(ctx context.Context, db *sqlx.DB, dest interface{}, notFound error, query string, args ...interface{}) error {
	err := db.GetContext(ctx, dest, db.Rebind(query), args...)
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, "fetching row")
}

func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullTime(t time.Time) null.Time {
	if t.IsZero() {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func fromNullTime(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// validID guards lookups on UUID columns against malformed ids, which postgres rejects.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// isUniqueViolation reports whether err breaks the named unique constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == constraint
	}
	return false
}

// withTx runs fn in a transaction, committed when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// upsertAll runs the named `INSERT ... ON CONFLICT ... RETURNING` query q for every row, in one transaction.
func upsertAll[R any](ctx context.Context, db *sqlx.DB, q string, rows []R) ([]R, error) {
	out := make([]R, 0, len(rows))
	err := withTx(ctx, db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, q)
		if err != nil {
			return errors.Wrap(err, "preparing upsert")
		}
		defer stmt.Close()

		for _, row := range rows {
			var saved R
			if err := stmt.GetContext(ctx, &saved, row); err != nil {
				return errors.Wrap(err, "upserting row")
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
