package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payment"
)

const paymentColumns = "id, branch_id, student_id, fee_type, description, amount, paid_amount, method, status, " +
	"due_date, paid_at, reference, recorded_by, created_at, updated_at"

var paymentWriteColumns = []string{
	"branch_id", "student_id", "fee_type", "description", "amount", "paid_amount", "method", "status",
	"due_date", "paid_at", "reference", "recorded_by", "updated_at",
}

// paymentStatusExpr mirrors payment.Payment.DeriveStatus; its single placeholder is the reference date.
const paymentStatusExpr = `CASE
	WHEN status = 'cancelled' THEN 'cancelled'
	WHEN paid_amount >= amount THEN 'paid'
	WHEN due_date IS NOT NULL AND due_date < ? THEN 'overdue'
	WHEN paid_amount > 0 THEN 'partial'
	ELSE 'pending' END`

type paymentRow struct {
	ID          string      `db:"id"`
	BranchID    string      `db:"branch_id"`
	StudentID   string      `db:"student_id"`
	FeeType     string      `db:"fee_type"`
	Description string      `db:"description"`
	Amount      float64     `db:"amount"`
	PaidAmount  float64     `db:"paid_amount"`
	Method      string      `db:"method"`
	Status      string      `db:"status"`
	DueDate     core.Date   `db:"due_date"`
	PaidAt      null.Time   `db:"paid_at"`
	Reference   string      `db:"reference"`
	RecordedBy  null.String `db:"recorded_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:          p.ID,
		BranchID:    p.BranchID,
		StudentID:   p.StudentID,
		FeeType:     p.FeeType,
		Description: p.Description,
		Amount:      p.Amount,
		PaidAmount:  p.PaidAmount,
		Method:      p.Method,
		Status:      p.Status,
		DueDate:     p.DueDate,
		PaidAt:      nullTime(p.PaidAt),
		Reference:   p.Reference,
		RecordedBy:  nullString(p.RecordedBy),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (row paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:          row.ID,
		BranchID:    row.BranchID,
		StudentID:   row.StudentID,
		FeeType:     row.FeeType,
		Description: row.Description,
		Amount:      row.Amount,
		PaidAmount:  row.PaidAmount,
		Method:      row.Method,
		Status:      row.Status,
		DueDate:     row.DueDate,
		PaidAt:      fromNullTime(row.PaidAt),
		Reference:   row.Reference,
		RecordedBy:  row.RecordedBy.String,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	row := toPaymentRow(p)
	if err := insert(ctx, repo.db, "payments", append([]string{"id", "created_at"}, paymentWriteColumns...), row); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return row.payment(), nil
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]payment.Payment, int, error) {
	if filter == nil {
		filter = new(payment.QueryFilter)
	}
	today := filter.Today
	if today.IsZero() {
		today = core.Today()
	}

	w := new(where)
	w.search(filter.Search, "reference", "description")
	w.idEq("branch_id", filter.BranchID)
	w.idEq("student_id", filter.StudentID)
	w.inIDs("student_id", filter.StudentIDs)
	w.in("fee_type", filter.FeeTypes)
	w.eq("method", filter.Method)
	w.dateRange("due_date", filter.DueFrom, filter.DueTo)
	w.timeRange("paid_at", filter.PaidFrom, filter.PaidTo)
	if len(filter.Statuses) > 0 {
		w.add("("+paymentStatusExpr+") = ANY(?)", today.Time, pq.Array(filter.Statuses))
	}
	order := orderBy(ordering, payment.OrderingFields, core.DBOrdering{Field: "created_at"})

	rows, total, err := selectPage[paymentRow](ctx, repo.db, paymentColumns, "payments", w, order, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.payment())
	}
	return payments, total, nil
}

func (repo *paymentRepository) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	if !validID(id) {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	if err := getOne(ctx, repo.db, &row, payment.ErrNotFound, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id); err != nil {
		return payment.Payment{}, err
	}
	return row.payment(), nil
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	if !validID(p.ID) {
		return payment.Payment{}, payment.ErrNotFound
	}
	row := toPaymentRow(p)
	if err := updateByID(ctx, repo.db, "payments", paymentWriteColumns, row, payment.ErrNotFound); err != nil {
		if err == payment.ErrNotFound {
			return payment.Payment{}, err
		}
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}
	return row.payment(), nil
}

func (repo *paymentRepository) DeletePaymentsByID(ctx context.Context, ids ...string) (int, error) {
	return deleteByIDs(ctx, repo.db, "payments", validIDs(ids))
}
