package branch

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("branch not found")
	ErrCodeExists = errors.New("a branch with this code already exists")
	ErrInUse      = errors.New("this branch still has students")
)

type (
	Repository interface {
		CreateBranch(ctx context.Context, br Branch) (Branch, error)
		// QueryBranches does a case-insensitive match of QueryFilter.Search on Branch.Name or Branch.Code.
		QueryBranches(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Branch, error)
		GetBranch(ctx context.Context, id string) (Branch, error)
		GetBranchByCode(ctx context.Context, code string) (Branch, error)
		UpdateBranch(ctx context.Context, br Branch) (Branch, error)
		DeleteBranch(ctx context.Context, id string) error
		// CountStudents returns the number of students enrolled in the branch, whatever their status.
		CountStudents(ctx context.Context, branchID string) (int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkCodeUniqueness(ctx context.Context, code string) error {
	_, err := svc.repo.GetBranchByCode(ctx, code)
	switch {
	case err == nil:
		return core.NewValidationError(ErrCodeExists, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
	case errors.Cause(err) == ErrNotFound:
		return nil
	default:
		return errors.Wrap(err, "finding branch by code")
	}
}

func (svc *Service) Create(ctx context.Context, nb NewBranch) (Branch, error) {
	now := core.NowFunc()
	return svc.repo.CreateBranch(ctx, Branch{
		ID:        uuid.NewString(),
		Name:      nb.Name,
		Code:      nb.Code,
		Address:   nb.Address,
		Phone:     nb.Phone,
		Email:     nb.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Branch, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryBranches(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Branch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Branch{}, ErrNotFound
	}
	return svc.repo.GetBranch(ctx, id)
}

// Exists reports whether an active or inactive branch with this ID exists.
func (svc *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := svc.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Cause(err) == ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

func (svc *Service) Update(ctx context.Context, br Branch, ub UpdateBranch) (Branch, error) {
	if ub.Name != nil {
		br.Name = *ub.Name
	}
	if ub.Code != nil {
		br.Code = *ub.Code
	}
	if ub.Address != nil {
		br.Address = core.CleanString(*ub.Address)
	}
	if ub.Phone != nil {
		br.Phone = core.CleanString(*ub.Phone)
	}
	if ub.Email != nil {
		br.Email = *ub.Email
	}
	if ub.IsActive != nil {
		br.IsActive = *ub.IsActive
	}
	br.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateBranch(ctx, br)
}

// Delete refuses to remove a branch students still belong to.
func (svc *Service) Delete(ctx context.Context, id string) error {
	n, err := svc.repo.CountStudents(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting branch students")
	}
	if n > 0 {
		return core.NewValidationError(ErrInUse)
	}
	return svc.repo.DeleteBranch(ctx, id)
}
