package branch

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// OrderingFields are the fields a branch listing can be ordered by.
var OrderingFields = []string{"name", "code", "created_at", "updated_at"}

type Branch struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"code"`
	Address   string    `json:"address" db:"address"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewBranch struct {
	Name    string `json:"name" validate:"required,max=128"`
	Code    string `json:"code" validate:"required,max=16,alphanum"`
	Address string `json:"address" validate:"max=255"`
	Phone   string `json:"phone" validate:"max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (nb *NewBranch) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Code = normalizeCode(nb.Code)
	nb.Address = core.CleanString(nb.Address)
	nb.Phone = core.CleanString(nb.Phone)
	nb.Email = core.CleanString(nb.Email, true /* lower */)

	if err := validate.Struct(nb); err != nil {
		return err
	}
	return svc.checkCodeUniqueness(ctx, nb.Code)
}

type UpdateBranch struct {
	Name     *string `json:"name" validate:"omitempty,max=128"`
	Code     *string `json:"code" validate:"omitempty,max=16,alphanum"`
	Address  *string `json:"address" validate:"omitempty,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	Email    *string `json:"email" validate:"omitempty,email"`
	IsActive *bool   `json:"is_active"`
}

func (ub *UpdateBranch) Validate(ctx context.Context, orig Branch, validate *validator.Validate, svc *Service) error {
	if ub.Name != nil {
		name := core.CleanString(*ub.Name)
		if name == "" {
			return core.NewFieldValidationError("name", "this field cannot be blank")
		}
		ub.Name = &name
	}
	if ub.Code != nil {
		code := normalizeCode(*ub.Code)
		ub.Code = &code
	}
	if ub.Email != nil {
		email := core.CleanString(*ub.Email, true /* lower */)
		ub.Email = &email
	}

	if err := validate.Struct(ub); err != nil {
		return err
	}
	if ub.Code != nil && *ub.Code != orig.Code {
		return svc.checkCodeUniqueness(ctx, *ub.Code)
	}
	return nil
}

type QueryFilter struct {
	Search   string
	IsActive *bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// normalizeCode stores branch codes uppercase.
func normalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}
