package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
)

var (
	examTable = table{
		name: "exams",
		columns: []string{
			"id", "branch_id", "title", "subject", "class_name", "term", "academic_year", "exam_date",
			"max_score", "pass_score", "status", "created_by", "created_at", "updated_at",
		},
		insertOnly: []string{"branch_id", "created_by", "created_at"},
		notFound:   exam.ErrNotFound,
	}
	resultTable = table{
		name:       "exam_results",
		columns:    []string{"id", "exam_id", "student_id", "score", "grade", "remarks", "created_at", "updated_at"},
		insertOnly: []string{"exam_id", "student_id", "created_at"},
		notFound:   exam.ErrResultNotFound,
	}
)

var resultUpsert = `INSERT INTO exam_results (id, exam_id, student_id, score, grade, remarks, created_at, updated_at)
VALUES (:id, :exam_id, :student_id, :score, :grade, :remarks, :created_at, :updated_at)
ON CONFLICT (exam_id, student_id) DO UPDATE SET
	score = EXCLUDED.score, grade = EXCLUDED.grade, remarks = EXCLUDED.remarks, updated_at = EXCLUDED.updated_at
RETURNING ` + resultTable.selectColumns()

type examRow struct {
	ID           string      `db:"id"`
	BranchID     string      `db:"branch_id"`
	Title        string      `db:"title"`
	Subject      string      `db:"subject"`
	ClassName    string      `db:"class_name"`
	Term         string      `db:"term"`
	AcademicYear string      `db:"academic_year"`
	ExamDate     core.Date   `db:"exam_date"`
	MaxScore     float64     `db:"max_score"`
	PassScore    float64     `db:"pass_score"`
	Status       string      `db:"status"`
	CreatedBy    null.String `db:"created_by"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toExamRow(e exam.Exam) examRow {
	return examRow{
		ID:           e.ID,
		BranchID:     e.BranchID,
		Title:        e.Title,
		Subject:      e.Subject,
		ClassName:    e.ClassName,
		Term:         e.Term,
		AcademicYear: e.AcademicYear,
		ExamDate:     e.ExamDate,
		MaxScore:     e.MaxScore,
		PassScore:    e.PassScore,
		Status:       e.Status,
		CreatedBy:    nullString(e.CreatedBy),
		CreatedAt:    e.CreatedAt.UTC(),
		UpdatedAt:    e.UpdatedAt.UTC(),
	}
}

func (row examRow) exam() exam.Exam {
	return exam.Exam{
		ID:           row.ID,
		BranchID:     row.BranchID,
		Title:        row.Title,
		Subject:      row.Subject,
		ClassName:    row.ClassName,
		Term:         row.Term,
		AcademicYear: row.AcademicYear,
		ExamDate:     row.ExamDate,
		MaxScore:     row.MaxScore,
		PassScore:    row.PassScore,
		Status:       row.Status,
		CreatedBy:    row.CreatedBy.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type resultRow struct {
	ID        string    `db:"id"`
	ExamID    string    `db:"exam_id"`
	StudentID string    `db:"student_id"`
	Score     float64   `db:"score"`
	Grade     string    `db:"grade"`
	Remarks   string    `db:"remarks"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func toResultRow(r exam.Result) resultRow {
	return resultRow{
		ID:        r.ID,
		ExamID:    r.ExamID,
		StudentID: r.StudentID,
		Score:     r.Score,
		Grade:     r.Grade,
		Remarks:   r.Remarks,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (row resultRow) result() exam.Result {
	return exam.Result{
		ID:        row.ID,
		ExamID:    row.ExamID,
		StudentID: row.StudentID,
		Score:     row.Score,
		Grade:     row.Grade,
		Remarks:   row.Remarks,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil)

func NewExamRepository(db *sqlx.DB) exam.Repository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	row := toExamRow(e)
	if err := examTable.create(ctx, repo.db, row); err != nil {
		return exam.Exam{}, err
	}
	return row.exam(), nil
}

func (repo *examRepository) QueryExams(ctx context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]exam.Exam, int, error) {
	w := new(where)
	if filter != nil {
		w.search(filter.Search, "title", "subject")
		w.idEq("branch_id", filter.BranchID)
		w.eq("class_name", filter.ClassName)
		w.eq("subject", filter.Subject)
		w.eq("term", filter.Term)
		w.eq("academic_year", filter.AcademicYear)
		w.in("status", filter.Statuses)
		w.inIDs("id", filter.IDs)
	}
	order := orderBy(ordering, exam.OrderingFields, core.DBOrdering{Field: "exam_date"}, core.DBOrdering{Field: "created_at"})

	rows, total, err := queryRows[examRow](ctx, repo.db, examTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, examRow.exam), total, nil
}

func (repo *examRepository) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	row, err := getRow[examRow](ctx, repo.db, examTable, id)
	if err != nil {
		return exam.Exam{}, err
	}
	return row.exam(), nil
}

func (repo *examRepository) UpdateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	row := toExamRow(e)
	if err := examTable.update(ctx, repo.db, e.ID, row); err != nil {
		return exam.Exam{}, err
	}
	return row.exam(), nil
}

// DeleteExam relies on ON DELETE CASCADE to drop the exam's results.
func (repo *examRepository) DeleteExam(ctx context.Context, id string) error {
	return examTable.delete(ctx, repo.db, id)
}

func (repo *examRepository) UpsertResults(ctx context.Context, results []exam.Result) ([]exam.Result, error) {
	rows, err := upsertAll(ctx, repo.db, resultUpsert, mapRows(results, toResultRow))
	if err != nil {
		return nil, errors.Wrap(err, "saving exam results")
	}
	return mapRows(rows, resultRow.result), nil
}

func (repo *examRepository) QueryResults(ctx context.Context, filter exam.ResultFilter) ([]exam.Result, error) {
	w := new(where)
	w.inIDs("exam_id", filter.ExamIDs)
	w.inIDs("student_id", filter.StudentIDs)
	order := orderBy(nil, nil, core.DBOrdering{Field: "score"}, core.DBOrdering{Field: "student_id", Ascending: true})

	rows, _, err := queryRows[resultRow](ctx, repo.db, resultTable, w, order, core.Pagination{})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, resultRow.result), nil
}

func (repo *examRepository) GetResult(ctx context.Context, id string) (exam.Result, error) {
	row, err := getRow[resultRow](ctx, repo.db, resultTable, id)
	if err != nil {
		return exam.Result{}, err
	}
	return row.result(), nil
}

func (repo *examRepository) DeleteResult(ctx context.Context, id string) error {
	return resultTable.delete(ctx, repo.db, id)
}
