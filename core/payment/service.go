package payment

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("payment not found")
	ErrCancelled      = errors.New("this payment is cancelled")
	ErrAlreadyPaid    = errors.New("this payment is already paid")
	ErrExceedsBalance = errors.New("amount exceeds the outstanding balance")
	ErrBelowPaid      = errors.New("amount cannot be less than the amount already paid")
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		// QueryPayments filters on the status derived as of QueryFilter.Today.
		QueryPayments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Payment, int, error)
		GetPayment(ctx context.Context, id string) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment) (Payment, error)
		DeletePaymentsByID(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo     Repository
		students *student.Service
		sheets   core.Spreadsheet
	}
)

func NewService(repo Repository, students *student.Service, sheets core.Spreadsheet) *Service {
	return &Service{repo: repo, students: students, sheets: sheets}
}

func (svc *Service) withStatus(p Payment) Payment {
	p.Status = p.DeriveStatus(core.Today())
	return p
}

func (svc *Service) Create(ctx context.Context, np NewPayment, recordedBy string) (Payment, error) {
	st, err := svc.students.GetByID(ctx, np.StudentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return Payment{}, core.NewFieldValidationError("student_id", "student does not exist")
		}
		return Payment{}, errors.Wrap(err, "finding student")
	}

	now := core.NowFunc()
	p := Payment{
		ID:          uuid.NewString(),
		BranchID:    st.BranchID,
		StudentID:   st.ID,
		FeeType:     np.FeeType,
		Description: np.Description,
		Amount:      np.Amount,
		PaidAmount:  np.PaidAmount,
		Method:      np.Method,
		DueDate:     np.DueDate,
		Reference:   np.Reference,
		RecordedBy:  recordedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.PaidAmount > 0 {
		p.PaidAt = now
	}
	p = svc.withStatus(p)
	return svc.repo.CreatePayment(ctx, p)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Payment, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	filter.Today = core.Today()
	payments, total, err := svc.repo.QueryPayments(ctx, filter, ordering, page.Normalize())
	if err != nil {
		return nil, 0, err
	}
	for i := range payments {
		payments[i] = svc.withStatus(payments[i])
	}
	return payments, total, nil
}

// All returns every payment matching filter, unpaginated.
func (svc *Service) All(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Payment, error) {
	payments, _, err := svc.Query(ctx, filter, ordering, core.Pagination{})
	return payments, err
}

// RegistrationPayments lists registration fees only, whatever fee types the filter asked for.
func (svc *Service) RegistrationPayments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Payment, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.FeeTypes = []string{FeeRegistration}
	return svc.Query(ctx, filter, ordering, page)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Payment{}, ErrNotFound
	}
	p, err := svc.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	return svc.withStatus(p), nil
}

func (svc *Service) Update(ctx context.Context, p Payment, up UpdatePayment) (Payment, error) {
	if up.FeeType != nil {
		p.FeeType = *up.FeeType
	}
	if up.Description != nil {
		p.Description = core.CleanString(*up.Description)
	}
	if up.Amount != nil {
		p.Amount = *up.Amount
	}
	if up.Method != nil {
		p.Method = *up.Method
	}
	if up.DueDate != nil {
		p.DueDate = *up.DueDate
	}
	if up.Reference != nil {
		p.Reference = core.CleanString(*up.Reference)
	}
	p.UpdatedAt = core.NowFunc()
	p = svc.withStatus(p)
	return svc.repo.UpdatePayment(ctx, p)
}

// RecordPayment adds an installment to the payment and recomputes its status.
func (svc *Service) RecordPayment(ctx context.Context, p Payment, rp RecordPayment, recordedBy string) (Payment, error) {
	if p.Status == StatusCancelled {
		return Payment{}, core.NewValidationError(ErrCancelled)
	}
	if p.Balance() == 0 {
		return Payment{}, core.NewValidationError(ErrAlreadyPaid)
	}
	if rp.Amount <= 0 || rp.Amount > p.Balance() {
		return Payment{}, core.NewFieldValidationError("amount", ErrExceedsBalance.Error())
	}

	now := core.NowFunc()
	p.PaidAmount = core.Round2(p.PaidAmount + rp.Amount)
	p.PaidAt = now
	p.Method = rp.Method
	if rp.Reference != "" {
		p.Reference = rp.Reference
	}
	p.RecordedBy = recordedBy
	p.UpdatedAt = now
	p = svc.withStatus(p)
	return svc.repo.UpdatePayment(ctx, p)
}

func (svc *Service) Cancel(ctx context.Context, p Payment) (Payment, error) {
	if p.Status == StatusCancelled {
		return p, nil
	}
	p.Status = StatusCancelled
	p.UpdatedAt = core.NowFunc()
	return svc.repo.UpdatePayment(ctx, p)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeletePaymentsByID(ctx, ids...)
	return err
}

var exportHeader = []string{
	"Reference", "Admission No", "Student", "Class", "Fee Type", "Description",
	"Amount", "Paid", "Balance", "Status", "Method", "Due Date", "Paid At",
}

// ExportXLSX writes the payments matching filter to w as a workbook.
func (svc *Service) ExportXLSX(ctx context.Context, w io.Writer, filter *QueryFilter, ordering []core.DBOrdering) error {
	payments, err := svc.All(ctx, filter, ordering...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.StudentID)
	}
	students, err := svc.students.Map(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "finding students")
	}

	rows := make([][]interface{}, 0, len(payments))
	for _, p := range payments {
		st := students[p.StudentID]
		var paidAt string
		if !p.PaidAt.IsZero() {
			paidAt = p.PaidAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []interface{}{
			p.Reference, st.AdmissionNo, st.FullName(), st.ClassName, p.FeeType, p.Description,
			p.Amount, p.PaidAmount, p.Balance(), p.Status, p.Method, p.DueDate.String(), paidAt,
		})
	}
	return errors.Wrap(svc.sheets.Write(w, "Payments", exportHeader, rows), "writing workbook")
}

// ExportFilename names an export file after the current date.
func ExportFilename() string {
	return fmt.Sprintf("payments-%s.xlsx", core.Today())
}
