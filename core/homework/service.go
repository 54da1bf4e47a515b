package homework

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/student"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("homework not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
	ErrAlreadyGraded      = errors.New("graded submissions cannot be changed")
	ErrWrongClass         = errors.New("student is not in this homework's class")
)

type (
	Repository interface {
		CreateHomework(ctx context.Context, hw Homework) (Homework, error)
		QueryHomework(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Homework, int, error)
		GetHomework(ctx context.Context, id string) (Homework, error)
		UpdateHomework(ctx context.Context, hw Homework) (Homework, error)
		// DeleteHomework removes the homework along with its submissions.
		DeleteHomework(ctx context.Context, id string) error

		CreateSubmission(ctx context.Context, s Submission) (Submission, error)
		QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		// GetStudentSubmission finds the submission of a student for a homework.
		GetStudentSubmission(ctx context.Context, homeworkID, studentID string) (Submission, error)
		UpdateSubmission(ctx context.Context, s Submission) (Submission, error)
	}

	Service struct {
		repo     Repository
		branches *branch.Service
		students *student.Service
	}
)

func NewService(repo Repository, branches *branch.Service, students *student.Service) *Service {
	return &Service{repo: repo, branches: branches, students: students}
}

func (svc *Service) Create(ctx context.Context, nh NewHomework, teacherID string) (Homework, error) {
	ok, err := svc.branches.Exists(ctx, nh.BranchID)
	if err != nil {
		return Homework{}, errors.Wrap(err, "checking branch")
	}
	if !ok {
		return Homework{}, core.NewFieldValidationError("branch_id", "branch does not exist")
	}

	now := core.NowFunc()
	return svc.repo.CreateHomework(ctx, Homework{
		ID:          uuid.NewString(),
		BranchID:    nh.BranchID,
		TeacherID:   teacherID,
		Title:       nh.Title,
		Description: nh.Description,
		Subject:     nh.Subject,
		ClassName:   nh.ClassName,
		DueDate:     nh.DueDate,
		MaxScore:    core.Round2(nh.MaxScore),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Homework, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryHomework(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) GetByID(ctx context.Context, id string) (Homework, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Homework{}, ErrNotFound
	}
	return svc.repo.GetHomework(ctx, id)
}

func (svc *Service) Update(ctx context.Context, hw Homework, uh UpdateHomework) (Homework, error) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	setStr(&hw.Title, uh.Title)
	setStr(&hw.Description, uh.Description)
	setStr(&hw.Subject, uh.Subject)
	setStr(&hw.ClassName, uh.ClassName)
	if uh.DueDate != nil {
		hw.DueDate = *uh.DueDate
	}
	if uh.MaxScore != nil {
		hw.MaxScore = core.Round2(*uh.MaxScore)
	}
	hw.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateHomework(ctx, hw)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteHomework(ctx, id)
}

// Submit records a student's work; re-submitting replaces the content until the work is graded.
func (svc *Service) Submit(ctx context.Context, hw Homework, ns NewSubmission) (Submission, error) {
	st, err := svc.students.GetByID(ctx, ns.StudentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return Submission{}, core.NewFieldValidationError("student_id", "student does not exist")
		}
		return Submission{}, errors.Wrap(err, "finding student")
	}
	if st.BranchID != hw.BranchID || st.ClassName != hw.ClassName {
		return Submission{}, core.NewFieldValidationError("student_id", ErrWrongClass.Error())
	}

	now := core.NowFunc()
	existing, err := svc.repo.GetStudentSubmission(ctx, hw.ID, st.ID)
	switch {
	case err == nil:
		if existing.IsGraded() {
			return Submission{}, core.NewValidationError(ErrAlreadyGraded)
		}
		existing.Content = ns.Content
		existing.SubmittedAt = now
		return svc.repo.UpdateSubmission(ctx, existing)
	case errors.Cause(err) == ErrSubmissionNotFound:
		return svc.repo.CreateSubmission(ctx, Submission{
			ID:          uuid.NewString(),
			HomeworkID:  hw.ID,
			StudentID:   st.ID,
			Content:     ns.Content,
			SubmittedAt: now,
		})
	default:
		return Submission{}, errors.Wrap(err, "finding submission")
	}
}

func (svc *Service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Submission{}, ErrSubmissionNotFound
	}
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *Service) QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter)
}

// Grade scores a submission; grading again overwrites the previous grade.
func (svc *Service) Grade(ctx context.Context, s Submission, gs GradeSubmission, gradedBy string) (Submission, error) {
	score := gs.Score
	s.Score = &score
	s.Feedback = gs.Feedback
	s.GradedAt = core.NowFunc()
	s.GradedBy = gradedBy
	return svc.repo.UpdateSubmission(ctx, s)
}

// TeacherGradingStats summarizes the grading workload of a teacher's homework.
func (svc *Service) TeacherGradingStats(ctx context.Context, teacherID, branchID string) (GradingStats, error) {
	hws, _, err := svc.repo.QueryHomework(ctx, &QueryFilter{TeacherID: teacherID, BranchID: branchID}, nil, core.Pagination{})
	if err != nil {
		return GradingStats{}, errors.Wrap(err, "querying homework")
	}
	stats := GradingStats{TotalHomework: len(hws)}
	if len(hws) == 0 {
		return stats, nil
	}

	byID := make(map[string]Homework, len(hws))
	ids := make([]string, 0, len(hws))
	for _, hw := range hws {
		byID[hw.ID] = hw
		ids = append(ids, hw.ID)
	}
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{HomeworkIDs: ids})
	if err != nil {
		return GradingStats{}, errors.Wrap(err, "querying submissions")
	}

	today := core.Today()
	var pctSum float64
	for _, s := range subs {
		hw := byID[s.HomeworkID]
		stats.TotalSubmissions++
		if s.IsLate(hw) {
			stats.LateSubmissions++
		}
		if s.IsGraded() && s.Score != nil {
			stats.Graded++
			pctSum += *s.Score / hw.MaxScore * 100
		} else {
			stats.Pending++
			if !hw.DueDate.IsZero() && hw.DueDate.Before(today) {
				stats.OverdueUngraded++
			}
		}
	}
	stats.GradingRate = core.Percent(float64(stats.Graded), float64(stats.TotalSubmissions))
	if stats.Graded > 0 {
		stats.AverageScore = core.Round2(pctSum / float64(stats.Graded))
	}
	return stats, nil
}
