package discipline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/student"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/testutil"
)

func TestService_CreateReward(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	branchRepo := inmemdb.NewBranchRepository(db)
	studentRepo := inmemdb.NewStudentRepository(db)
	branches := branch.NewService(branchRepo)
	svc := discipline.NewService(inmemdb.NewDisciplineRepository(db), student.NewService(studentRepo, branches, nil), nil)

	br := testutil.CreateBranch(t, branchRepo, "Main", "MAIN")
	ada := testutil.CreateStudent(t, studentRepo, br.ID, "M-001", "Ada", "Doe", "P1")

	for i := 0; i < 2; i++ {
		_, err := svc.CreatePoint(ctx, discipline.NewBehaviorPoint{StudentID: ada.ID, Points: 100, Reason: "service"}, br.ID, "teacher")
		require.NoError(t, err)
	}

	_, err := svc.CreateReward(ctx, discipline.NewReward{StudentID: ada.ID, Title: "Gold", Type: "prize", PointsCost: 100}, "", "counselor")
	require.NoError(t, err)

	net, err := svc.NetPoints(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, net)

	points, _, err := svc.QueryPoints(ctx, &discipline.QueryFilter{StudentID: ada.ID}, nil, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, points, 3)
	for _, p := range points {
		assert.LessOrEqual(t, p.Points, 100)
		assert.GreaterOrEqual(t, p.Points, -100)
	}

	_, err = svc.CreateReward(ctx, discipline.NewReward{StudentID: ada.ID, Title: "Silver", Type: "prize", PointsCost: 100}, "", "counselor")
	require.NoError(t, err)
	_, err = svc.CreateReward(ctx, discipline.NewReward{StudentID: ada.ID, Title: "Bronze", Type: "prize", PointsCost: 1}, "", "counselor")
	assert.EqualError(t, err, discipline.ErrNotEnoughPoints.Error())
}
