package student

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Statuses
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusGraduated   = "graduated"
	StatusTransferred = "transferred"
)

// Genders
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

var (
	Statuses = []string{StatusActive, StatusInactive, StatusGraduated, StatusTransferred}

	// OrderingFields are the fields a student listing can be ordered by.
	OrderingFields = []string{
		"admission_no", "first_name", "last_name", "class_name", "status", "date_of_birth", "enrolled_at", "created_at",
	}
)

type Student struct {
	ID             string    `json:"id"`
	BranchID       string    `json:"branch_id"`
	AdmissionNo    string    `json:"admission_no"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Gender         string    `json:"gender"`
	DateOfBirth    core.Date `json:"date_of_birth"`
	ClassName      string    `json:"class_name"`
	GuardianName   string    `json:"guardian_name"`
	GuardianEmail  string    `json:"guardian_email"`
	GuardianPhone  string    `json:"guardian_phone"`
	Status         string    `json:"status"`
	UserID         string    `json:"user_id,omitempty"`          // the student's own portal account
	GuardianUserID string    `json:"guardian_user_id,omitempty"` // the parent's portal account
	EnrolledAt     core.Date `json:"enrolled_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s Student) IsActive() bool { return s.Status == StatusActive }

type NewStudent struct {
	BranchID       string    `json:"branch_id" validate:"required,uuid"`
	AdmissionNo    string    `json:"admission_no" validate:"required,max=32"`
	FirstName      string    `json:"first_name" validate:"required,max=64"`
	LastName       string    `json:"last_name" validate:"required,max=64"`
	Gender         string    `json:"gender" validate:"omitempty,oneof=male female"`
	DateOfBirth    core.Date `json:"date_of_birth" validate:"notfuture"`
	ClassName      string    `json:"class_name" validate:"required,max=32"`
	GuardianName   string    `json:"guardian_name" validate:"max=128"`
	GuardianEmail  string    `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone  string    `json:"guardian_phone" validate:"max=32"`
	UserID         string    `json:"user_id" validate:"omitempty,uuid"`
	GuardianUserID string    `json:"guardian_user_id" validate:"omitempty,uuid"`
	EnrolledAt     core.Date `json:"enrolled_at" validate:"notfuture"`
}

func (ns *NewStudent) clean() {
	ns.AdmissionNo = core.CleanString(ns.AdmissionNo)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	ns.ClassName = core.CleanString(ns.ClassName)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if err := svc.checkBranch(ctx, ns.BranchID); err != nil {
		return err
	}
	return svc.checkAdmissionNo(ctx, ns.BranchID, ns.AdmissionNo)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	AdmissionNo    *string    `json:"admission_no" validate:"omitempty,max=32"`
	FirstName      *string    `json:"first_name" validate:"omitempty,max=64"`
	LastName       *string    `json:"last_name" validate:"omitempty,max=64"`
	Gender         *string    `json:"gender" validate:"omitempty,oneof=male female"`
	DateOfBirth    *core.Date `json:"date_of_birth" validate:"omitempty,notfuture"`
	ClassName      *string    `json:"class_name" validate:"omitempty,max=32"`
	GuardianName   *string    `json:"guardian_name" validate:"omitempty,max=128"`
	GuardianEmail  *string    `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone  *string    `json:"guardian_phone" validate:"omitempty,max=32"`
	Status         *string    `json:"status" validate:"omitempty,oneof=active inactive graduated transferred"`
	UserID         *string    `json:"user_id" validate:"omitempty,uuid|len=0"`
	GuardianUserID *string    `json:"guardian_user_id" validate:"omitempty,uuid|len=0"`
}

func (us *UpdateStudent) Validate(ctx context.Context, orig Student, validate *validator.Validate, svc *Service) error {
	cleanPtr := func(s *string, lower ...bool) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s, lower...)
		return &c
	}
	us.AdmissionNo = cleanPtr(us.AdmissionNo)
	us.FirstName = cleanPtr(us.FirstName)
	us.LastName = cleanPtr(us.LastName)
	us.Gender = cleanPtr(us.Gender, true)
	us.ClassName = cleanPtr(us.ClassName)
	us.GuardianName = cleanPtr(us.GuardianName)
	us.GuardianEmail = cleanPtr(us.GuardianEmail, true)
	us.GuardianPhone = cleanPtr(us.GuardianPhone)
	us.Status = cleanPtr(us.Status, true)

	for fld, val := range map[string]*string{
		"admission_no": us.AdmissionNo, "first_name": us.FirstName, "last_name": us.LastName, "class_name": us.ClassName,
	} {
		if val != nil && *val == "" {
			return core.NewFieldValidationError(fld, "this field cannot be blank")
		}
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.AdmissionNo != nil && !strings.EqualFold(*us.AdmissionNo, orig.AdmissionNo) {
		return svc.checkAdmissionNo(ctx, orig.BranchID, *us.AdmissionNo)
	}
	return nil
}

type QueryFilter struct {
	Search         string // admission no, first or last name
	BranchID       string
	ClassName      string
	Statuses       []string
	IDs            []string
	UserID         string
	GuardianUserID string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassName = core.CleanString(qf.ClassName)
}

// GetFilter selects a single Student; ID wins over (BranchID, AdmissionNo).
type GetFilter struct {
	ID          string
	BranchID    string
	AdmissionNo string
}

// ImportReport summarizes a spreadsheet import.
type ImportReport struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Errors  []ImportError `json:"errors"`
}

type ImportError struct {
	Row   int    `json:"row"` // 1-based, header included
	Error string `json:"error"`
}
