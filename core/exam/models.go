package exam

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Statuses
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusPublished = "published"
)

var (
	Statuses = []string{StatusScheduled, StatusCompleted, StatusPublished}

	// OrderingFields are the fields an exam listing can be ordered by.
	OrderingFields = []string{"title", "subject", "class_name", "term", "academic_year", "exam_date", "status", "created_at"}
)

type Exam struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	Title        string    `json:"title"`
	Subject      string    `json:"subject"`
	ClassName    string    `json:"class_name"`
	Term         string    `json:"term"`
	AcademicYear string    `json:"academic_year"`
	ExamDate     core.Date `json:"exam_date"`
	MaxScore     float64   `json:"max_score"`
	PassScore    float64   `json:"pass_score"`
	Status       string    `json:"status"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsFinal reports whether results of the exam count toward report cards.
func (e Exam) IsFinal() bool {
	return e.Status == StatusCompleted || e.Status == StatusPublished
}

func (e Exam) Passed(score float64) bool {
	return score >= e.PassScore
}

func (e Exam) Percentage(score float64) float64 {
	return core.Percent(score, e.MaxScore)
}

// Grade grades the exact percentage of score, not the rounded one.
func (e Exam) Grade(score float64) string {
	if e.MaxScore == 0 {
		return Grade(0)
	}
	return Grade(score / e.MaxScore * 100)
}

type Result struct {
	ID        string    `json:"id"`
	ExamID    string    `json:"exam_id"`
	StudentID string    `json:"student_id"`
	Score     float64   `json:"score"`
	Grade     string    `json:"grade"`
	Remarks   string    `json:"remarks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Grade maps a percentage to a letter grade.
func Grade(percent float64) string {
	switch {
	case percent >= 80:
		return "A"
	case percent >= 70:
		return "B"
	case percent >= 60:
		return "C"
	case percent >= 50:
		return "D"
	case percent >= 40:
		return "E"
	default:
		return "F"
	}
}

// Grades lists every letter grade, best first.
var Grades = []string{"A", "B", "C", "D", "E", "F"}

type NewExam struct {
	BranchID     string    `json:"branch_id" validate:"required,uuid"`
	Title        string    `json:"title" validate:"required,max=128"`
	Subject      string    `json:"subject" validate:"required,max=64"`
	ClassName    string    `json:"class_name" validate:"required,max=32"`
	Term         string    `json:"term" validate:"required,max=32"`
	AcademicYear string    `json:"academic_year" validate:"required,max=16"`
	ExamDate     core.Date `json:"exam_date" validate:"required"`
	MaxScore     float64   `json:"max_score" validate:"gt=0"`
	PassScore    *float64  `json:"pass_score" validate:"omitempty,gte=0"`
}

// Validate defaults PassScore to the configured pass mark of MaxScore.
func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Subject = core.CleanString(ne.Subject)
	ne.ClassName = core.CleanString(ne.ClassName)
	ne.Term = core.CleanString(ne.Term)
	ne.AcademicYear = core.CleanString(ne.AcademicYear)

	if err := validate.Struct(ne); err != nil {
		return err
	}
	if ne.PassScore == nil {
		pass := core.Round2(ne.MaxScore * core.Conf.PassMarkPercent / 100)
		ne.PassScore = &pass
	}
	if *ne.PassScore > ne.MaxScore {
		return core.NewFieldValidationError("pass_score", "pass score cannot exceed max score")
	}
	return nil
}

type UpdateExam struct {
	Title        *string    `json:"title" validate:"omitempty,max=128"`
	Subject      *string    `json:"subject" validate:"omitempty,max=64"`
	ClassName    *string    `json:"class_name" validate:"omitempty,max=32"`
	Term         *string    `json:"term" validate:"omitempty,max=32"`
	AcademicYear *string    `json:"academic_year" validate:"omitempty,max=16"`
	ExamDate     *core.Date `json:"exam_date"`
	MaxScore     *float64   `json:"max_score" validate:"omitempty,gt=0"`
	PassScore    *float64   `json:"pass_score" validate:"omitempty,gte=0"`
	Status       *string    `json:"status" validate:"omitempty,oneof=scheduled completed"`
}

func (ue *UpdateExam) Validate(orig Exam, validate *validator.Validate) error {
	if err := validate.Struct(ue); err != nil {
		return err
	}
	maxScore, passScore := orig.MaxScore, orig.PassScore
	if ue.MaxScore != nil {
		maxScore = *ue.MaxScore
	}
	if ue.PassScore != nil {
		passScore = *ue.PassScore
	}
	if passScore > maxScore {
		return core.NewFieldValidationError("pass_score", "pass score cannot exceed max score")
	}
	return nil
}

// ResultEntry is a score to save for one student.
type ResultEntry struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	Score     float64 `json:"score" validate:"gte=0"`
	Remarks   string  `json:"remarks" validate:"max=255"`
}

type SaveResults struct {
	Results []ResultEntry `json:"results" validate:"required,min=1,dive"`
}

func (sr *SaveResults) Validate(validate *validator.Validate) error {
	for i := range sr.Results {
		sr.Results[i].Remarks = core.CleanString(sr.Results[i].Remarks)
		sr.Results[i].Score = core.Round2(sr.Results[i].Score)
	}
	return validate.Struct(sr)
}

type QueryFilter struct {
	Search       string // title or subject
	BranchID     string
	ClassName    string
	Subject      string
	Term         string
	AcademicYear string
	Statuses     []string
	IDs          []string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassName = core.CleanString(qf.ClassName)
	qf.Subject = core.CleanString(qf.Subject)
	qf.Term = core.CleanString(qf.Term)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
}

type ResultFilter struct {
	ExamIDs    []string
	StudentIDs []string
}

// ImportReport summarizes a results import.
type ImportReport struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

type ImportError struct {
	Row   int    `json:"row"` // 1-based, header included
	Error string `json:"error"`
}
