package homework_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/homework"
	"github.com/trezcool/shule/core/student"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/testutil"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	validate, _ := core.NewValidator()

	db := inmemdb.Open()
	branchRepo := inmemdb.NewBranchRepository(db)
	studentRepo := inmemdb.NewStudentRepository(db)
	branches := branch.NewService(branchRepo)
	svc := homework.NewService(inmemdb.NewHomeworkRepository(db), branches, student.NewService(studentRepo, branches, nil))

	br := testutil.CreateBranch(t, branchRepo, "Main", "MAIN")
	ada := testutil.CreateStudent(t, studentRepo, br.ID, "M-001", "Ada", "Doe", "P1")
	bob := testutil.CreateStudent(t, studentRepo, br.ID, "M-002", "Bob", "Doe", "P1")
	cy := testutil.CreateStudent(t, studentRepo, br.ID, "M-003", "Cy", "Doe", "P2")

	now := time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })
	today := core.DateOf(now)

	_, err := svc.Create(ctx, homework.NewHomework{BranchID: "c0ffee00-0000-4000-8000-000000000000"}, "teacher")
	assert.Error(t, err)

	current, err := svc.Create(ctx, homework.NewHomework{
		BranchID: br.ID, Title: "Fractions", Subject: "Maths", ClassName: "P1", DueDate: today.AddDays(2), MaxScore: 20,
	}, "teacher")
	require.NoError(t, err)
	past, err := svc.Create(ctx, homework.NewHomework{
		BranchID: br.ID, Title: "Verbs", Subject: "English", ClassName: "P1", DueDate: today.AddDays(-3), MaxScore: 10,
	}, "teacher")
	require.NoError(t, err)

	t.Run("submit", func(t *testing.T) {
		_, err := svc.Submit(ctx, current, homework.NewSubmission{StudentID: cy.ID, Content: "1/2"})
		assert.EqualError(t, err, homework.ErrWrongClass.Error())

		first, err := svc.Submit(ctx, current, homework.NewSubmission{StudentID: ada.ID, Content: "1/2"})
		require.NoError(t, err)
		again, err := svc.Submit(ctx, current, homework.NewSubmission{StudentID: ada.ID, Content: "3/4"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "3/4", again.Content)
		assert.False(t, again.IsLate(current))
	})

	t.Run("grade", func(t *testing.T) {
		sub, err := svc.Submit(ctx, past, homework.NewSubmission{StudentID: ada.ID, Content: "ran"})
		require.NoError(t, err)
		assert.True(t, sub.IsLate(past))

		gs := homework.GradeSubmission{Score: 11}
		assert.Error(t, gs.Validate(past, validate))
		gs = homework.GradeSubmission{Score: 8.456, Feedback: " good "}
		require.NoError(t, gs.Validate(past, validate))

		graded, err := svc.Grade(ctx, sub, gs, "teacher")
		require.NoError(t, err)
		assert.True(t, graded.IsGraded())
		require.NotNil(t, graded.Score)
		assert.Equal(t, 8.46, *graded.Score)
		assert.Equal(t, "good", graded.Feedback)

		_, err = svc.Submit(ctx, past, homework.NewSubmission{StudentID: ada.ID, Content: "run"})
		assert.EqualError(t, err, homework.ErrAlreadyGraded.Error())

		_, err = svc.Submit(ctx, past, homework.NewSubmission{StudentID: bob.ID, Content: "runned"})
		require.NoError(t, err)
	})

	t.Run("grading stats", func(t *testing.T) {
		stats, err := svc.TeacherGradingStats(ctx, "teacher", br.ID)
		require.NoError(t, err)
		assert.Equal(t, homework.GradingStats{
			TotalHomework:    2,
			TotalSubmissions: 3,
			Graded:           1,
			Pending:          2,
			GradingRate:      33.33,
			AverageScore:     84.6,
			OverdueUngraded:  1,
			LateSubmissions:  2,
		}, stats)

		empty, err := svc.TeacherGradingStats(ctx, "someone-else", br.ID)
		require.NoError(t, err)
		assert.Equal(t, homework.GradingStats{}, empty)
	})
}
