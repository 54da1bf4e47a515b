package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

var attendanceTable = table{
	name:       "attendance",
	columns:    []string{"id", "branch_id", "student_id", "date", "status", "remarks", "recorded_by", "created_at", "updated_at"},
	insertOnly: []string{"branch_id", "student_id", "date", "created_at"},
	notFound:   attendance.ErrNotFound,
}

var attendanceUpsert = `INSERT INTO attendance (id, branch_id, student_id, date, status, remarks, recorded_by, created_at, updated_at)
VALUES (:id, :branch_id, :student_id, :date, :status, :remarks, :recorded_by, :created_at, :updated_at)
ON CONFLICT (student_id, date) DO UPDATE SET
	status = EXCLUDED.status, remarks = EXCLUDED.remarks, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceTable.selectColumns()

type attendanceRow struct {
	ID         string      `db:"id"`
	BranchID   string      `db:"branch_id"`
	StudentID  string      `db:"student_id"`
	Date       core.Date   `db:"date"`
	Status     string      `db:"status"`
	Remarks    string      `db:"remarks"`
	RecordedBy null.String `db:"recorded_by"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func toAttendanceRow(r attendance.Record) attendanceRow {
	return attendanceRow{
		ID:         r.ID,
		BranchID:   r.BranchID,
		StudentID:  r.StudentID,
		Date:       r.Date,
		Status:     r.Status,
		Remarks:    r.Remarks,
		RecordedBy: nullString(r.RecordedBy),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:         row.ID,
		BranchID:   row.BranchID,
		StudentID:  row.StudentID,
		Date:       row.Date,
		Status:     row.Status,
		Remarks:    row.Remarks,
		RecordedBy: row.RecordedBy.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertRecords(ctx context.Context, records []attendance.Record) ([]attendance.Record, error) {
	rows, err := upsertAll(ctx, repo.db, attendanceUpsert, mapRows(records, toAttendanceRow))
	if err != nil {
		return nil, err
	}
	return mapRows(rows, attendanceRow.record), nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]attendance.Record, int, error) {
	w := new(where)
	if filter != nil {
		w.idEq("branch_id", filter.BranchID)
		w.idEq("student_id", filter.StudentID)
		w.inIDs("student_id", filter.StudentIDs)
		w.in("status", filter.Statuses)
		w.dateRange("date", filter.DateFrom, filter.DateTo)
	}
	order := orderBy(ordering, attendance.OrderingFields, core.DBOrdering{Field: "date"}, core.DBOrdering{Field: "created_at"})

	rows, total, err := queryRows[attendanceRow](ctx, repo.db, attendanceTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, attendanceRow.record), total, nil
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	row, err := getRow[attendanceRow](ctx, repo.db, attendanceTable, id)
	if err != nil {
		return attendance.Record{}, err
	}
	return row.record(), nil
}

func (repo *attendanceRepository) UpdateRecord(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	row := toAttendanceRow(r)
	if err := attendanceTable.update(ctx, repo.db, r.ID, row); err != nil {
		return attendance.Record{}, err
	}
	return row.record(), nil
}

func (repo *attendanceRepository) DeleteRecordsByID(ctx context.Context, ids ...string) (int, error) {
	return deleteByIDs(ctx, repo.db, attendanceTable.name, validIDs(ids))
}
