package exam

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/student"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("exam not found")
	ErrResultNotFound   = core.NewNotFoundError("exam result not found")
	ErrNotCompleted     = errors.New("only completed exams can be published")
	ErrPublished        = errors.New("published exams cannot be modified")
	ErrScoreAboveMax    = errors.New("score cannot exceed the exam max score")
	ErrStudentNotInExam = errors.New("student does not belong to the exam's branch")
)

type (
	Repository interface {
		CreateExam(ctx context.Context, e Exam) (Exam, error)
		QueryExams(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Exam, int, error)
		GetExam(ctx context.Context, id string) (Exam, error)
		UpdateExam(ctx context.Context, e Exam) (Exam, error)
		// DeleteExam removes the exam along with its results.
		DeleteExam(ctx context.Context, id string) error

		// UpsertResults inserts the results, or updates score, grade & remarks of the existing (exam, student) ones.
		UpsertResults(ctx context.Context, results []Result) ([]Result, error)
		QueryResults(ctx context.Context, filter ResultFilter) ([]Result, error)
		GetResult(ctx context.Context, id string) (Result, error)
		DeleteResult(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		branches *branch.Service
		students *student.Service
		sheets   core.Spreadsheet
	}
)

func NewService(repo Repository, branches *branch.Service, students *student.Service, sheets core.Spreadsheet) *Service {
	return &Service{repo: repo, branches: branches, students: students, sheets: sheets}
}

func (svc *Service) Create(ctx context.Context, ne NewExam, createdBy string) (Exam, error) {
	ok, err := svc.branches.Exists(ctx, ne.BranchID)
	if err != nil {
		return Exam{}, errors.Wrap(err, "checking branch")
	}
	if !ok {
		return Exam{}, core.NewFieldValidationError("branch_id", "branch does not exist")
	}

	now := core.NowFunc()
	return svc.repo.CreateExam(ctx, Exam{
		ID:           uuid.NewString(),
		BranchID:     ne.BranchID,
		Title:        ne.Title,
		Subject:      ne.Subject,
		ClassName:    ne.ClassName,
		Term:         ne.Term,
		AcademicYear: ne.AcademicYear,
		ExamDate:     ne.ExamDate,
		MaxScore:     ne.MaxScore,
		PassScore:    *ne.PassScore,
		Status:       StatusScheduled,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Exam, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryExams(ctx, filter, ordering, page.Normalize())
}

// All returns every exam matching filter, unpaginated.
func (svc *Service) All(ctx context.Context, filter *QueryFilter) ([]Exam, error) {
	exams, _, err := svc.Query(ctx, filter, nil, core.Pagination{})
	return exams, err
}

func (svc *Service) GetByID(ctx context.Context, id string) (Exam, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Exam{}, ErrNotFound
	}
	return svc.repo.GetExam(ctx, id)
}

// Update re-grades the exam's results when its max score changes.
func (svc *Service) Update(ctx context.Context, e Exam, ue UpdateExam) (Exam, error) {
	if e.Status == StatusPublished {
		return Exam{}, core.NewValidationError(ErrPublished)
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	setStr(&e.Title, ue.Title)
	setStr(&e.Subject, ue.Subject)
	setStr(&e.ClassName, ue.ClassName)
	setStr(&e.Term, ue.Term)
	setStr(&e.AcademicYear, ue.AcademicYear)
	if ue.Status != nil {
		e.Status = *ue.Status
	}
	if ue.ExamDate != nil {
		e.ExamDate = *ue.ExamDate
	}
	if ue.PassScore != nil {
		e.PassScore = *ue.PassScore
	}

	regrade := ue.MaxScore != nil && *ue.MaxScore != e.MaxScore
	if regrade {
		e.MaxScore = *ue.MaxScore
		results, err := svc.Results(ctx, e.ID)
		if err != nil {
			return Exam{}, errors.Wrap(err, "querying results")
		}
		for i := range results {
			if results[i].Score > e.MaxScore {
				return Exam{}, core.NewFieldValidationError("max_score", "existing results exceed this max score")
			}
			results[i].Grade = e.Grade(results[i].Score)
		}
		if len(results) > 0 {
			if _, err = svc.repo.UpsertResults(ctx, results); err != nil {
				return Exam{}, errors.Wrap(err, "re-grading results")
			}
		}
	}

	e.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateExam(ctx, e)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteExam(ctx, id)
}

// Publish makes the results of a completed exam visible to students and parents.
func (svc *Service) Publish(ctx context.Context, e Exam) (Exam, error) {
	if e.Status != StatusCompleted {
		return Exam{}, core.NewValidationError(ErrNotCompleted)
	}
	e.Status = StatusPublished
	e.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateExam(ctx, e)
}

// SaveResults upserts the scores of the exam; every student must belong to the exam's branch.
func (svc *Service) SaveResults(ctx context.Context, e Exam, entries []ResultEntry) ([]Result, error) {
	if e.Status == StatusPublished {
		return nil, core.NewValidationError(ErrPublished)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.StudentID)
	}
	students, err := svc.students.Map(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "finding students")
	}

	results := make([]Result, 0, len(entries))
	for i, entry := range entries {
		if st, ok := students[entry.StudentID]; !ok || st.BranchID != e.BranchID {
			return nil, core.NewFieldValidationError(fmt.Sprintf("results[%d].student_id", i), ErrStudentNotInExam.Error())
		}
		if entry.Score > e.MaxScore {
			return nil, core.NewFieldValidationError(fmt.Sprintf("results[%d].score", i), ErrScoreAboveMax.Error())
		}
		results = append(results, svc.newResult(e, entry))
	}
	return svc.repo.UpsertResults(ctx, results)
}

func (svc *Service) newResult(e Exam, entry ResultEntry) Result {
	now := core.NowFunc()
	return Result{
		ID:        uuid.NewString(),
		ExamID:    e.ID,
		StudentID: entry.StudentID,
		Score:     core.Round2(entry.Score),
		Grade:     e.Grade(entry.Score),
		Remarks:   entry.Remarks,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (svc *Service) Results(ctx context.Context, examID string) ([]Result, error) {
	return svc.repo.QueryResults(ctx, ResultFilter{ExamIDs: []string{examID}})
}

// QueryResults returns the results of several exams and/or students.
func (svc *Service) QueryResults(ctx context.Context, filter ResultFilter) ([]Result, error) {
	return svc.repo.QueryResults(ctx, filter)
}

func (svc *Service) DeleteResult(ctx context.Context, e Exam, resultID string) error {
	if e.Status == StatusPublished {
		return core.NewValidationError(ErrPublished)
	}
	if _, err := uuid.Parse(resultID); err != nil {
		return ErrResultNotFound
	}
	res, err := svc.repo.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	if res.ExamID != e.ID {
		return ErrResultNotFound
	}
	return svc.repo.DeleteResult(ctx, resultID)
}

func (svc *Service) Stats(ctx context.Context, e Exam) (Stats, error) {
	results, err := svc.Results(ctx, e.ID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying results")
	}
	return ComputeStats(e, results), nil
}

var exportHeader = []string{
	"student_id", "admission_no", "student_name", "score", "max_score", "percentage", "grade", "remarks",
}

func (svc *Service) exportRows(ctx context.Context, e Exam) ([][]interface{}, error) {
	results, err := svc.Results(ctx, e.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StudentID)
	}
	students, err := svc.students.Map(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "finding students")
	}
	sortResultsByStudent(results, students)

	rows := make([][]interface{}, 0, len(results))
	for _, r := range results {
		st := students[r.StudentID]
		rows = append(rows, []interface{}{
			r.StudentID, st.AdmissionNo, st.FullName(), r.Score, e.MaxScore, e.Percentage(r.Score), r.Grade, r.Remarks,
		})
	}
	return rows, nil
}

// ExportXLSX writes the exam results to w as a workbook.
func (svc *Service) ExportXLSX(ctx context.Context, e Exam, w io.Writer) error {
	rows, err := svc.exportRows(ctx, e)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.sheets.Write(w, "Results", exportHeader, rows), "writing workbook")
}

// ExportFilename names an export file after the exam.
func ExportFilename(e Exam, ext string) string {
	return fmt.Sprintf("exam-%s-results.%s", e.ID, ext)
}
