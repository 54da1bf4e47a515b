package payment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Fee types
const (
	FeeRegistration = "registration"
	FeeTuition      = "tuition"
	FeeTransport    = "transport"
	FeeExam         = "exam"
	FeeUniform      = "uniform"
	FeeOther        = "other"
)

// Methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodMobileMoney  = "mobile_money"
	MethodCard         = "card"
	MethodCheque       = "cheque"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusPartial   = "partial"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

var (
	FeeTypes = []string{FeeRegistration, FeeTuition, FeeTransport, FeeExam, FeeUniform, FeeOther}
	Methods  = []string{MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCard, MethodCheque}
	Statuses = []string{StatusPending, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled}

	// OrderingFields are the fields a payment listing can be ordered by.
	OrderingFields = []string{"amount", "paid_amount", "due_date", "paid_at", "fee_type", "status", "created_at"}
)

type Payment struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	StudentID   string    `json:"student_id"`
	FeeType     string    `json:"fee_type"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	PaidAmount  float64   `json:"paid_amount"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	DueDate     core.Date `json:"due_date"`
	PaidAt      time.Time `json:"paid_at"`
	Reference   string    `json:"reference"`
	RecordedBy  string    `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Balance is what remains to be paid; never negative.
func (p Payment) Balance() float64 {
	if p.PaidAmount >= p.Amount {
		return 0
	}
	return core.Round2(p.Amount - p.PaidAmount)
}

// DeriveStatus computes the payment status as of `today`. Cancelled payments stay cancelled.
func (p Payment) DeriveStatus(today core.Date) string {
	switch {
	case p.Status == StatusCancelled:
		return StatusCancelled
	case p.PaidAmount >= p.Amount:
		return StatusPaid
	case !p.DueDate.IsZero() && p.DueDate.Before(today):
		return StatusOverdue
	case p.PaidAmount > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

type NewPayment struct {
	StudentID   string    `json:"student_id" validate:"required,uuid"`
	FeeType     string    `json:"fee_type" validate:"required,oneof=registration tuition transport exam uniform other"`
	Description string    `json:"description" validate:"max=255"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	PaidAmount  float64   `json:"paid_amount" validate:"gte=0,ltefield=Amount"`
	Method      string    `json:"method" validate:"omitempty,oneof=cash bank_transfer mobile_money card cheque"`
	DueDate     core.Date `json:"due_date"`
	Reference   string    `json:"reference" validate:"max=64"`
}

func (np *NewPayment) Validate(ctx context.Context, validate *validator.Validate) error {
	np.Description = core.CleanString(np.Description)
	np.Reference = core.CleanString(np.Reference)
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.FeeType = core.CleanString(np.FeeType, true /* lower */)
	np.Amount = core.Round2(np.Amount)
	np.PaidAmount = core.Round2(np.PaidAmount)
	if err := validate.Struct(np); err != nil {
		return err
	}
	if np.PaidAmount > 0 && np.Method == "" {
		return core.NewFieldValidationError("method", "this field is required")
	}
	return nil
}

type UpdatePayment struct {
	FeeType     *string    `json:"fee_type" validate:"omitempty,oneof=registration tuition transport exam uniform other"`
	Description *string    `json:"description" validate:"omitempty,max=255"`
	Amount      *float64   `json:"amount" validate:"omitempty,gt=0"`
	Method      *string    `json:"method" validate:"omitempty,oneof=cash bank_transfer mobile_money card cheque"`
	DueDate     *core.Date `json:"due_date"`
	Reference   *string    `json:"reference" validate:"omitempty,max=64"`
}

func (up *UpdatePayment) Validate(orig Payment, validate *validator.Validate) error {
	if orig.Status == StatusCancelled {
		return core.NewValidationError(ErrCancelled)
	}
	if up.Amount != nil {
		amount := core.Round2(*up.Amount)
		up.Amount = &amount
	}
	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Amount != nil && *up.Amount < orig.PaidAmount {
		return core.NewFieldValidationError("amount", ErrBelowPaid.Error())
	}
	return nil
}

// RecordPayment is an installment paid against a Payment.
type RecordPayment struct {
	Amount    float64 `json:"amount" validate:"gt=0"`
	Method    string  `json:"method" validate:"required,oneof=cash bank_transfer mobile_money card cheque"`
	Reference string  `json:"reference" validate:"max=64"`
}

func (rp *RecordPayment) Validate(orig Payment, validate *validator.Validate) error {
	rp.Amount = core.Round2(rp.Amount)
	rp.Method = core.CleanString(rp.Method, true /* lower */)
	rp.Reference = core.CleanString(rp.Reference)
	if err := validate.Struct(rp); err != nil {
		return err
	}
	if orig.Status == StatusCancelled {
		return core.NewValidationError(ErrCancelled)
	}
	if rp.Amount > orig.Balance() {
		return core.NewFieldValidationError("amount", ErrExceedsBalance.Error())
	}
	return nil
}

type QueryFilter struct {
	Search     string // reference or description
	BranchID   string
	StudentID  string
	StudentIDs []string
	FeeTypes   []string
	Statuses   []string
	Method     string
	DueFrom    core.Date
	DueTo      core.Date
	PaidFrom   core.Date
	PaidTo     core.Date

	// Today is the reference date for derived statuses; set by the Service.
	Today core.Date
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Method = core.CleanString(qf.Method, true /* lower */)
}
