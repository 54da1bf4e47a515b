package homework

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// OrderingFields are the fields a homework listing can be ordered by.
var OrderingFields = []string{"title", "subject", "class_name", "due_date", "created_at"}

type Homework struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	TeacherID   string    `json:"teacher_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	ClassName   string    `json:"class_name"`
	DueDate     core.Date `json:"due_date"`
	MaxScore    float64   `json:"max_score"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Submission struct {
	ID          string    `json:"id"`
	HomeworkID  string    `json:"homework_id"`
	StudentID   string    `json:"student_id"`
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submitted_at"`
	Score       *float64  `json:"score"`
	Feedback    string    `json:"feedback"`
	GradedAt    time.Time `json:"graded_at"`
	GradedBy    string    `json:"graded_by"`
}

func (s Submission) IsGraded() bool { return !s.GradedAt.IsZero() }

// IsLate reports whether the submission came after the homework's due date.
func (s Submission) IsLate(hw Homework) bool {
	return !hw.DueDate.IsZero() && core.DateOf(s.SubmittedAt).After(hw.DueDate)
}

type NewHomework struct {
	BranchID    string    `json:"branch_id" validate:"required,uuid"`
	Title       string    `json:"title" validate:"required,max=128"`
	Description string    `json:"description" validate:"max=5000"`
	Subject     string    `json:"subject" validate:"required,max=64"`
	ClassName   string    `json:"class_name" validate:"required,max=32"`
	DueDate     core.Date `json:"due_date" validate:"required"`
	MaxScore    float64   `json:"max_score" validate:"gt=0"`
}

func (nh *NewHomework) Validate(validate *validator.Validate) error {
	nh.Title = core.CleanString(nh.Title)
	nh.Description = core.CleanString(nh.Description)
	nh.Subject = core.CleanString(nh.Subject)
	nh.ClassName = core.CleanString(nh.ClassName)
	return validate.Struct(nh)
}

type UpdateHomework struct {
	Title       *string    `json:"title" validate:"omitempty,max=128"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Subject     *string    `json:"subject" validate:"omitempty,max=64"`
	ClassName   *string    `json:"class_name" validate:"omitempty,max=32"`
	DueDate     *core.Date `json:"due_date"`
	MaxScore    *float64   `json:"max_score" validate:"omitempty,gt=0"`
}

func (uh *UpdateHomework) Validate(validate *validator.Validate) error { return validate.Struct(uh) }

type NewSubmission struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Content   string `json:"content" validate:"required,max=20000"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Content = core.CleanString(ns.Content)
	return validate.Struct(ns)
}

type GradeSubmission struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=5000"`
}

func (gs *GradeSubmission) Validate(hw Homework, validate *validator.Validate) error {
	gs.Score = core.Round2(gs.Score)
	gs.Feedback = core.CleanString(gs.Feedback)
	if err := validate.Struct(gs); err != nil {
		return err
	}
	if gs.Score > hw.MaxScore {
		return core.NewFieldValidationError("score", "score cannot exceed the homework max score")
	}
	return nil
}

type QueryFilter struct {
	Search      string // title or subject
	BranchID    string
	TeacherID   string
	ClassName   string
	Subject     string
	DueFrom     core.Date
	DueTo       core.Date
	HomeworkIDs []string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassName = core.CleanString(qf.ClassName)
	qf.Subject = core.CleanString(qf.Subject)
}

type SubmissionFilter struct {
	HomeworkIDs []string
	StudentIDs  []string
	Graded      *bool
}

// GradingStats is a teacher's grading workload.
type GradingStats struct {
	TotalHomework    int     `json:"total_homework"`
	TotalSubmissions int     `json:"total_submissions"`
	Graded           int     `json:"graded"`
	Pending          int     `json:"pending"`
	GradingRate      float64 `json:"grading_rate"`
	AverageScore     float64 `json:"average_score"` // percent of max score
	OverdueUngraded  int     `json:"overdue_ungraded"`
	LateSubmissions  int     `json:"late_submissions"`
}
