package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/homework"
)

var (
	homeworkTable = table{
		name: "homework",
		columns: []string{
			"id", "branch_id", "teacher_id", "title", "description", "subject", "class_name",
			"due_date", "max_score", "created_at", "updated_at",
		},
		insertOnly: []string{"branch_id", "teacher_id", "created_at"},
		notFound:   homework.ErrNotFound,
	}
	submissionTable = table{
		name:       "submissions",
		columns:    []string{"id", "homework_id", "student_id", "content", "submitted_at", "score", "feedback", "graded_at", "graded_by"},
		insertOnly: []string{"homework_id", "student_id"},
		notFound:   homework.ErrSubmissionNotFound,
	}
)

type homeworkRow struct {
	ID          string      `db:"id"`
	BranchID    string      `db:"branch_id"`
	TeacherID   null.String `db:"teacher_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Subject     string      `db:"subject"`
	ClassName   string      `db:"class_name"`
	DueDate     core.Date   `db:"due_date"`
	MaxScore    float64     `db:"max_score"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toHomeworkRow(hw homework.Homework) homeworkRow {
	return homeworkRow{
		ID:          hw.ID,
		BranchID:    hw.BranchID,
		TeacherID:   nullString(hw.TeacherID),
		Title:       hw.Title,
		Description: hw.Description,
		Subject:     hw.Subject,
		ClassName:   hw.ClassName,
		DueDate:     hw.DueDate,
		MaxScore:    hw.MaxScore,
		CreatedAt:   hw.CreatedAt.UTC(),
		UpdatedAt:   hw.UpdatedAt.UTC(),
	}
}

func (row homeworkRow) homework() homework.Homework {
	return homework.Homework{
		ID:          row.ID,
		BranchID:    row.BranchID,
		TeacherID:   row.TeacherID.String,
		Title:       row.Title,
		Description: row.Description,
		Subject:     row.Subject,
		ClassName:   row.ClassName,
		DueDate:     row.DueDate,
		MaxScore:    row.MaxScore,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type submissionRow struct {
	ID          string       `db:"id"`
	HomeworkID  string       `db:"homework_id"`
	StudentID   string       `db:"student_id"`
	Content     string       `db:"content"`
	SubmittedAt time.Time    `db:"submitted_at"`
	Score       null.Float64 `db:"score"`
	Feedback    string       `db:"feedback"`
	GradedAt    null.Time    `db:"graded_at"`
	GradedBy    null.String  `db:"graded_by"`
}

func toSubmissionRow(s homework.Submission) submissionRow {
	return submissionRow{
		ID:          s.ID,
		HomeworkID:  s.HomeworkID,
		StudentID:   s.StudentID,
		Content:     s.Content,
		SubmittedAt: s.SubmittedAt.UTC(),
		Score:       null.Float64FromPtr(s.Score),
		Feedback:    s.Feedback,
		GradedAt:    nullTime(s.GradedAt),
		GradedBy:    nullString(s.GradedBy),
	}
}

func (row submissionRow) submission() homework.Submission {
	return homework.Submission{
		ID:          row.ID,
		HomeworkID:  row.HomeworkID,
		StudentID:   row.StudentID,
		Content:     row.Content,
		SubmittedAt: row.SubmittedAt.UTC(),
		Score:       row.Score.Ptr(),
		Feedback:    row.Feedback,
		GradedAt:    fromNullTime(row.GradedAt),
		GradedBy:    row.GradedBy.String,
	}
}

type homeworkRepository struct {
	db *sqlx.DB
}

var _ homework.Repository = (*homeworkRepository)(nil)

func NewHomeworkRepository(db *sqlx.DB) homework.Repository {
	return &homeworkRepository{db: db}
}

func (repo *homeworkRepository) CreateHomework(ctx context.Context, hw homework.Homework) (homework.Homework, error) {
	row := toHomeworkRow(hw)
	if err := homeworkTable.create(ctx, repo.db, row); err != nil {
		return homework.Homework{}, err
	}
	return row.homework(), nil
}

func (repo *homeworkRepository) QueryHomework(ctx context.Context, filter *homework.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]homework.Homework, int, error) {
	w := new(where)
	if filter != nil {
		w.search(filter.Search, "title", "subject")
		w.idEq("branch_id", filter.BranchID)
		w.idEq("teacher_id", filter.TeacherID)
		w.eq("class_name", filter.ClassName)
		w.eq("subject", filter.Subject)
		w.inIDs("id", filter.HomeworkIDs)
		w.dateRange("due_date", filter.DueFrom, filter.DueTo)
	}
	order := orderBy(ordering, homework.OrderingFields, core.DBOrdering{Field: "due_date"}, core.DBOrdering{Field: "created_at"})

	rows, total, err := queryRows[homeworkRow](ctx, repo.db, homeworkTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, homeworkRow.homework), total, nil
}

func (repo *homeworkRepository) GetHomework(ctx context.Context, id string) (homework.Homework, error) {
	row, err := getRow[homeworkRow](ctx, repo.db, homeworkTable, id)
	if err != nil {
		return homework.Homework{}, err
	}
	return row.homework(), nil
}

func (repo *homeworkRepository) UpdateHomework(ctx context.Context, hw homework.Homework) (homework.Homework, error) {
	row := toHomeworkRow(hw)
	if err := homeworkTable.update(ctx, repo.db, hw.ID, row); err != nil {
		return homework.Homework{}, err
	}
	return row.homework(), nil
}

// DeleteHomework relies on ON DELETE CASCADE to drop the submissions.
func (repo *homeworkRepository) DeleteHomework(ctx context.Context, id string) error {
	return homeworkTable.delete(ctx, repo.db, id)
}

func (repo *homeworkRepository) CreateSubmission(ctx context.Context, s homework.Submission) (homework.Submission, error) {
	row := toSubmissionRow(s)
	if err := submissionTable.create(ctx, repo.db, row); err != nil {
		return homework.Submission{}, err
	}
	return row.submission(), nil
}

func (repo *homeworkRepository) QuerySubmissions(ctx context.Context, filter homework.SubmissionFilter) ([]homework.Submission, error) {
	w := new(where)
	w.inIDs("homework_id", filter.HomeworkIDs)
	w.inIDs("student_id", filter.StudentIDs)
	if filter.Graded != nil {
		if *filter.Graded {
			w.add("graded_at IS NOT NULL")
		} else {
			w.add("graded_at IS NULL")
		}
	}
	order := orderBy(nil, nil, core.DBOrdering{Field: "submitted_at", Ascending: true})

	rows, _, err := queryRows[submissionRow](ctx, repo.db, submissionTable, w, order, core.Pagination{})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, submissionRow.submission), nil
}

func (repo *homeworkRepository) GetSubmission(ctx context.Context, id string) (homework.Submission, error) {
	row, err := getRow[submissionRow](ctx, repo.db, submissionTable, id)
	if err != nil {
		return homework.Submission{}, err
	}
	return row.submission(), nil
}

func (repo *homeworkRepository) GetStudentSubmission(ctx context.Context, homeworkID, studentID string) (homework.Submission, error) {
	if !validID(homeworkID) || !validID(studentID) {
		return homework.Submission{}, homework.ErrSubmissionNotFound
	}
	var row submissionRow
	q := "SELECT " + submissionTable.selectColumns() + " FROM submissions WHERE homework_id = ? AND student_id = ?"
	if err := getOne(ctx, repo.db, &row, homework.ErrSubmissionNotFound, q, homeworkID, studentID); err != nil {
		return homework.Submission{}, err
	}
	return row.submission(), nil
}

func (repo *homeworkRepository) UpdateSubmission(ctx context.Context, s homework.Submission) (homework.Submission, error) {
	row := toSubmissionRow(s)
	if err := submissionTable.update(ctx, repo.db, s.ID, row); err != nil {
		return homework.Submission{}, err
	}
	return row.submission(), nil
}
