package student

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("student not found")
	ErrAdmissionNoExists  = errors.New("a student with this admission number already exists in this branch")
	ErrBranchDoesNotExist = errors.New("branch does not exist")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student) (Student, error)
		// QueryStudents applies AND operation on available QueryFilter fields and returns the page
		// alongside the total number of matching students.
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Student, int, error)
		CountStudents(ctx context.Context, filter *QueryFilter) (int, error)
		GetStudent(ctx context.Context, filter GetFilter) (Student, error)
		UpdateStudent(ctx context.Context, st Student) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo     Repository
		branches *branch.Service
		sheets   core.Spreadsheet
	}
)

func NewService(repo Repository, branches *branch.Service, sheets core.Spreadsheet) *Service {
	return &Service{repo: repo, branches: branches, sheets: sheets}
}

func (svc *Service) checkBranch(ctx context.Context, branchID string) error {
	ok, err := svc.branches.Exists(ctx, branchID)
	if err != nil {
		return errors.Wrap(err, "checking branch")
	}
	if !ok {
		return core.NewValidationError(ErrBranchDoesNotExist, core.FieldError{Field: "branch_id", Error: ErrBranchDoesNotExist.Error()})
	}
	return nil
}

func (svc *Service) checkAdmissionNo(ctx context.Context, branchID, admissionNo string) error {
	_, err := svc.repo.GetStudent(ctx, GetFilter{BranchID: branchID, AdmissionNo: admissionNo})
	switch {
	case err == nil:
		return core.NewValidationError(ErrAdmissionNoExists, core.FieldError{Field: "admission_no", Error: ErrAdmissionNoExists.Error()})
	case errors.Cause(err) == ErrNotFound:
		return nil
	default:
		return errors.Wrap(err, "finding student by admission number")
	}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := core.NowFunc()
	enrolled := ns.EnrolledAt
	if enrolled.IsZero() {
		enrolled = core.DateOf(now)
	}
	return svc.repo.CreateStudent(ctx, Student{
		ID:             uuid.NewString(),
		BranchID:       ns.BranchID,
		AdmissionNo:    ns.AdmissionNo,
		FirstName:      ns.FirstName,
		LastName:       ns.LastName,
		Gender:         ns.Gender,
		DateOfBirth:    ns.DateOfBirth,
		ClassName:      ns.ClassName,
		GuardianName:   ns.GuardianName,
		GuardianEmail:  ns.GuardianEmail,
		GuardianPhone:  ns.GuardianPhone,
		Status:         StatusActive,
		UserID:         ns.UserID,
		GuardianUserID: ns.GuardianUserID,
		EnrolledAt:     enrolled,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Student, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter, ordering, page.Normalize())
}

// All returns every student matching filter, unpaginated.
func (svc *Service) All(ctx context.Context, filter *QueryFilter) ([]Student, error) {
	students, _, err := svc.Query(ctx, filter, nil, core.Pagination{})
	return students, err
}

// IDs returns the IDs of the students matching filter.
func (svc *Service) IDs(ctx context.Context, filter *QueryFilter) ([]string, error) {
	students, err := svc.All(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return ids, nil
}

// Map returns the students with the provided IDs, keyed by ID.
func (svc *Service) Map(ctx context.Context, ids ...string) (map[string]Student, error) {
	out := make(map[string]Student, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	students, err := svc.All(ctx, &QueryFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	for _, st := range students {
		out[st.ID] = st
	}
	return out, nil
}

func (svc *Service) Count(ctx context.Context, filter *QueryFilter) (int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.CountStudents(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByAdmissionNo(ctx context.Context, branchID, admissionNo string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{BranchID: branchID, AdmissionNo: core.CleanString(admissionNo)})
}

func (svc *Service) Update(ctx context.Context, st Student, us UpdateStudent) (Student, error) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&st.AdmissionNo, us.AdmissionNo)
	setStr(&st.FirstName, us.FirstName)
	setStr(&st.LastName, us.LastName)
	setStr(&st.Gender, us.Gender)
	setStr(&st.ClassName, us.ClassName)
	setStr(&st.GuardianName, us.GuardianName)
	setStr(&st.GuardianEmail, us.GuardianEmail)
	setStr(&st.GuardianPhone, us.GuardianPhone)
	setStr(&st.Status, us.Status)
	setStr(&st.UserID, us.UserID)
	setStr(&st.GuardianUserID, us.GuardianUserID)
	if us.DateOfBirth != nil {
		st.DateOfBirth = *us.DateOfBirth
	}
	st.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateStudent(ctx, st)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteStudentsByID(ctx, ids...)
	return err
}

// ImportColumns are the recognised header cells of a student import sheet (case-insensitive, any order).
var ImportColumns = []string{
	"admission_no", "first_name", "last_name", "class_name", "gender",
	"guardian_name", "guardian_email", "guardian_phone",
}

var importRequired = []string{"admission_no", "first_name", "last_name", "class_name"}

// ImportXLSX creates or updates the branch's students from the first sheet of a workbook.
// Rows missing a required cell, or otherwise invalid, are skipped and reported.
// Students whose admission number already exists in the branch are updated.
func (svc *Service) ImportXLSX(ctx context.Context, branchID string, r io.Reader) (ImportReport, error) {
	report := ImportReport{Errors: []ImportError{}}
	if err := svc.checkBranch(ctx, branchID); err != nil {
		return report, err
	}

	rows, err := svc.sheets.ReadRows(r)
	if err != nil {
		return report, core.NewValidationError(errors.Wrap(err, "invalid spreadsheet"))
	}
	if len(rows) == 0 {
		return report, core.NewValidationError(errors.New("spreadsheet is empty"))
	}

	cols := make(map[string]int)
	for i, cell := range rows[0] {
		name := strings.ReplaceAll(core.CleanString(cell, true /* lower */), " ", "_")
		if core.StringInSlice(name, ImportColumns) {
			cols[name] = i
		}
	}
	for _, col := range importRequired {
		if _, ok := cols[col]; !ok {
			return report, core.NewValidationError(errors.Errorf("missing column %q", col))
		}
	}

	cell := func(row []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return core.CleanString(row[i])
	}
	skip := func(rowNo int, msg string) {
		report.Skipped++
		report.Errors = append(report.Errors, ImportError{Row: rowNo, Error: msg})
	}

	for i, row := range rows[1:] {
		rowNo := i + 2
		ns := NewStudent{
			BranchID:      branchID,
			AdmissionNo:   cell(row, "admission_no"),
			FirstName:     cell(row, "first_name"),
			LastName:      cell(row, "last_name"),
			ClassName:     cell(row, "class_name"),
			Gender:        cell(row, "gender"),
			GuardianName:  cell(row, "guardian_name"),
			GuardianEmail: cell(row, "guardian_email"),
			GuardianPhone: cell(row, "guardian_phone"),
		}
		ns.clean()

		var missing []string
		for _, col := range importRequired {
			if cell(row, col) == "" {
				missing = append(missing, col)
			}
		}
		if len(missing) == len(importRequired) {
			continue // blank line
		}
		if len(missing) > 0 {
			skip(rowNo, fmt.Sprintf("missing %s", strings.Join(missing, ", ")))
			continue
		}
		if ns.Gender != "" && ns.Gender != GenderMale && ns.Gender != GenderFemale {
			skip(rowNo, fmt.Sprintf("invalid gender %q", ns.Gender))
			continue
		}
		if ns.GuardianEmail != "" && !strings.Contains(ns.GuardianEmail, "@") {
			skip(rowNo, fmt.Sprintf("invalid guardian email %q", ns.GuardianEmail))
			continue
		}

		existing, err := svc.GetByAdmissionNo(ctx, branchID, ns.AdmissionNo)
		switch {
		case err == nil:
			gender := ns.Gender
			us := UpdateStudent{
				FirstName: &ns.FirstName, LastName: &ns.LastName, ClassName: &ns.ClassName, Gender: &gender,
				GuardianName: &ns.GuardianName, GuardianEmail: &ns.GuardianEmail, GuardianPhone: &ns.GuardianPhone,
			}
			if _, err = svc.Update(ctx, existing, us); err != nil {
				return report, errors.Wrapf(err, "updating student on row %d", rowNo)
			}
			report.Updated++
		case errors.Cause(err) == ErrNotFound:
			if _, err = svc.Create(ctx, ns); err != nil {
				return report, errors.Wrapf(err, "creating student on row %d", rowNo)
			}
			report.Created++
		default:
			return report, errors.Wrap(err, "finding student by admission number")
		}
	}
	return report, nil
}
