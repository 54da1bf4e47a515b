package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/student"
)

type branchRepository struct {
	db       *table[branch.Branch]
	students *table[student.Student]
}

func NewBranchRepository(db *DB) branch.Repository {
	return &branchRepository{db: db.branch, students: db.student}
}

func branchField(b branch.Branch, field string) interface{} {
	switch field {
	case "name":
		return b.Name
	case "code":
		return b.Code
	case "updated_at":
		return b.UpdatedAt
	default:
		return b.CreatedAt
	}
}

func (repo *branchRepository) CreateBranch(_ context.Context, br branch.Branch) (branch.Branch, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.rows[br.ID] = &br
	return br, nil
}

func (repo *branchRepository) QueryBranches(_ context.Context, filter *branch.QueryFilter, ordering []core.DBOrdering) ([]branch.Branch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(branch.QueryFilter)
	}
	branches := repo.db.all(func(b branch.Branch) bool {
		if filter.Search != "" && !(containsFold(b.Name, filter.Search) || containsFold(b.Code, filter.Search)) {
			return false
		}
		return filter.IsActive == nil || b.IsActive == *filter.IsActive
	})
	sortRows(branches, branchField, ordering, core.DBOrdering{Field: "name", Ascending: true})
	return branches, nil
}

func (repo *branchRepository) GetBranch(_ context.Context, id string) (branch.Branch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if br, ok := repo.db.rows[id]; ok {
		return *br, nil
	}
	return branch.Branch{}, branch.ErrNotFound
}

func (repo *branchRepository) GetBranchByCode(_ context.Context, code string) (branch.Branch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, br := range repo.db.rows {
		if br.Code == code {
			return *br, nil
		}
	}
	return branch.Branch{}, branch.ErrNotFound
}

func (repo *branchRepository) UpdateBranch(_ context.Context, br branch.Branch) (branch.Branch, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[br.ID]; !ok {
		return branch.Branch{}, branch.ErrNotFound
	}
	repo.db.rows[br.ID] = &br
	return br, nil
}

func (repo *branchRepository) DeleteBranch(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return branch.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}

func (repo *branchRepository) CountStudents(_ context.Context, branchID string) (int, error) {
	repo.students.mutex.RLock()
	defer repo.students.mutex.RUnlock()

	var n int
	for _, st := range repo.students.rows {
		if st.BranchID == branchID {
			n++
		}
	}
	return n, nil
}
