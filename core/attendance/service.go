package attendance

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("attendance record not found")
)

type (
	Repository interface {
		// UpsertRecords inserts the records, or updates the status & remarks of the existing (student, date) ones.
		UpsertRecords(ctx context.Context, records []Record) ([]Record, error)
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Record, int, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		UpdateRecord(ctx context.Context, r Record) (Record, error)
		DeleteRecordsByID(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo     Repository
		students *student.Service
	}
)

func NewService(repo Repository, students *student.Service) *Service {
	return &Service{repo: repo, students: students}
}

// Mark upserts the day's attendance of every entry. Entries of students outside `branchID`
// (when set) are rejected.
func (svc *Service) Mark(ctx context.Context, ma MarkAttendance, branchID, recordedBy string) ([]Record, error) {
	ids := make([]string, 0, len(ma.Entries))
	for _, e := range ma.Entries {
		ids = append(ids, e.StudentID)
	}
	students, err := svc.students.Map(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "finding students")
	}

	now := core.NowFunc()
	records := make([]Record, 0, len(ma.Entries))
	for _, e := range ma.Entries {
		st, ok := students[e.StudentID]
		if !ok || (branchID != "" && st.BranchID != branchID) {
			return nil, core.NewFieldValidationError("entries", "unknown student "+e.StudentID)
		}
		records = append(records, Record{
			ID:         uuid.NewString(),
			BranchID:   st.BranchID,
			StudentID:  st.ID,
			Date:       ma.Date,
			Status:     e.Status,
			Remarks:    e.Remarks,
			RecordedBy: recordedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return svc.repo.UpsertRecords(ctx, records)
}

// resolveClass narrows the filter to the students of QueryFilter.ClassName.
// It returns false when no student can match.
func (svc *Service) resolveClass(ctx context.Context, filter *QueryFilter) (bool, error) {
	if filter.ClassName == "" {
		return true, nil
	}
	ids, err := svc.students.IDs(ctx, &student.QueryFilter{BranchID: filter.BranchID, ClassName: filter.ClassName})
	if err != nil {
		return false, errors.Wrap(err, "finding class students")
	}
	if len(filter.StudentIDs) > 0 {
		ids = intersect(ids, filter.StudentIDs)
	}
	filter.StudentIDs = ids
	filter.ClassName = ""
	return len(ids) > 0, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Record, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	ok, err := svc.resolveClass(ctx, filter)
	if err != nil || !ok {
		return []Record{}, 0, err
	}
	return svc.repo.QueryRecords(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) all(ctx context.Context, filter *QueryFilter) ([]Record, error) {
	records, _, err := svc.Query(ctx, filter, nil, core.Pagination{})
	return records, err
}

func (svc *Service) GetByID(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrNotFound
	}
	return svc.repo.GetRecord(ctx, id)
}

func (svc *Service) Update(ctx context.Context, r Record, ur UpdateRecord, recordedBy string) (Record, error) {
	if ur.Status != nil {
		r.Status = *ur.Status
	}
	if ur.Remarks != nil {
		r.Remarks = core.CleanString(*ur.Remarks)
	}
	r.RecordedBy = recordedBy
	r.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateRecord(ctx, r)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteRecordsByID(ctx, ids...)
	return err
}

func (svc *Service) Stats(ctx context.Context, filter *QueryFilter) (Summary, error) {
	records, err := svc.all(ctx, filter)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying attendance")
	}
	return Summarize(records), nil
}

// StudentSummary is the attendance Summary of one student within [from, to] (zero bounds are open).
func (svc *Service) StudentSummary(ctx context.Context, studentID string, from, to core.Date) (Summary, error) {
	return svc.Stats(ctx, &QueryFilter{StudentID: studentID, DateFrom: from, DateTo: to})
}

// Daily returns one Summary per day having records, oldest first.
func (svc *Service) Daily(ctx context.Context, filter *QueryFilter) ([]DailySummary, error) {
	records, err := svc.all(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}

	byDay := make(map[string][]Record)
	for _, r := range records {
		key := r.Date.String()
		byDay[key] = append(byDay[key], r)
	}
	days := make([]DailySummary, 0, len(byDay))
	for _, recs := range byDay {
		days = append(days, DailySummary{Date: recs[0].Date, Summary: Summarize(recs)})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
