package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

type attendanceRepository struct {
	db *table[attendance.Record]
}

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func attendanceField(r attendance.Record, field string) interface{} {
	switch field {
	case "date":
		return r.Date
	case "status":
		return r.Status
	default:
		return r.CreatedAt
	}
}

func (repo *attendanceRepository) UpsertRecords(_ context.Context, records []attendance.Record) ([]attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing := make(map[string]*attendance.Record, len(repo.db.rows))
	for _, r := range repo.db.rows {
		existing[r.StudentID+"/"+r.Date.String()] = r
	}

	out := make([]attendance.Record, 0, len(records))
	for _, r := range records {
		if old, ok := existing[r.StudentID+"/"+r.Date.String()]; ok {
			old.Status = r.Status
			old.Remarks = r.Remarks
			old.RecordedBy = r.RecordedBy
			old.UpdatedAt = r.UpdatedAt
			out = append(out, *old)
			continue
		}
		rec := r
		repo.db.rows[rec.ID] = &rec
		out = append(out, rec)
	}
	return out, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]attendance.Record, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(attendance.QueryFilter)
	}
	records := repo.db.all(func(r attendance.Record) bool {
		return matches(filter.BranchID, r.BranchID) &&
			matches(filter.StudentID, r.StudentID) &&
			inSlice(r.StudentID, filter.StudentIDs) &&
			inSlice(r.Status, filter.Statuses) &&
			withinDate(r.Date, filter.DateFrom, filter.DateTo)
	})
	sortRows(records, attendanceField, ordering, core.DBOrdering{Field: "date"}, core.DBOrdering{Field: "created_at"})
	records, total := paginate(records, page)
	return records, total, nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id string) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.rows[id]; ok {
		return *r, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[r.ID]; !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	repo.db.rows[r.ID] = &r
	return r, nil
}

func (repo *attendanceRepository) DeleteRecordsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.rows[id]; ok {
			delete(repo.db.rows, id)
			n++
		}
	}
	return n, nil
}
