package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
)

const branchColumns = "id, name, code, address, phone, email, is_active, created_at, updated_at"

var branchWriteColumns = []string{"name", "code", "address", "phone", "email", "is_active", "updated_at"}

type branchRepository struct {
	db *sqlx.DB
}

var _ branch.Repository = (*branchRepository)(nil)

func NewBranchRepository(db *sqlx.DB) branch.Repository {
	return &branchRepository{db: db}
}

func (repo *branchRepository) writeErr(err error, msg string) error {
	if isUniqueViolation(err, "branches_code_key") {
		return branch.ErrCodeExists
	}
	return errors.Wrap(err, msg)
}

func (repo *branchRepository) CreateBranch(ctx context.Context, br branch.Branch) (branch.Branch, error) {
	br.CreatedAt, br.UpdatedAt = br.CreatedAt.UTC(), br.UpdatedAt.UTC()
	if err := insert(ctx, repo.db, "branches", append([]string{"id", "created_at"}, branchWriteColumns...), br); err != nil {
		return branch.Branch{}, repo.writeErr(err, "inserting branch")
	}
	return br, nil
}

func (repo *branchRepository) QueryBranches(ctx context.Context, filter *branch.QueryFilter, ordering []core.DBOrdering) ([]branch.Branch, error) {
	w := new(where)
	if filter != nil {
		w.search(filter.Search, "name", "code")
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}
	order := orderBy(ordering, branch.OrderingFields, core.DBOrdering{Field: "name", Ascending: true})

	branches, _, err := selectPage[branch.Branch](ctx, repo.db, branchColumns, "branches", w, order, core.Pagination{})
	if err != nil {
		return nil, errors.Wrap(err, "querying branches")
	}
	return branches, nil
}

func (repo *branchRepository) get(ctx context.Context, cond string, arg interface{}) (branch.Branch, error) {
	var br branch.Branch
	if err := getOne(ctx, repo.db, &br, branch.ErrNotFound, "SELECT "+branchColumns+" FROM branches WHERE "+cond, arg); err != nil {
		return branch.Branch{}, err
	}
	return br, nil
}

func (repo *branchRepository) GetBranch(ctx context.Context, id string) (branch.Branch, error) {
	if !validID(id) {
		return branch.Branch{}, branch.ErrNotFound
	}
	return repo.get(ctx, "id = ?", id)
}

func (repo *branchRepository) GetBranchByCode(ctx context.Context, code string) (branch.Branch, error) {
	return repo.get(ctx, "code = ?", code)
}

func (repo *branchRepository) UpdateBranch(ctx context.Context, br branch.Branch) (branch.Branch, error) {
	if !validID(br.ID) {
		return branch.Branch{}, branch.ErrNotFound
	}
	br.UpdatedAt = br.UpdatedAt.UTC()
	if err := updateByID(ctx, repo.db, "branches", branchWriteColumns, br, branch.ErrNotFound); err != nil {
		if err == branch.ErrNotFound {
			return branch.Branch{}, err
		}
		return branch.Branch{}, repo.writeErr(err, "updating branch")
	}
	return br, nil
}

func (repo *branchRepository) DeleteBranch(ctx context.Context, id string) error {
	if !validID(id) {
		return branch.ErrNotFound
	}
	return deleteByID(ctx, repo.db, "branches", id, branch.ErrNotFound)
}

func (repo *branchRepository) CountStudents(ctx context.Context, branchID string) (int, error) {
	if !validID(branchID) {
		return 0, nil
	}
	var n int
	if err := repo.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM students WHERE branch_id = $1", branchID); err != nil {
		return 0, errors.Wrap(err, "counting branch students")
	}
	return n, nil
}
