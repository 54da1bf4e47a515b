package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payment"
)

type paymentRepository struct {
	db *table[payment.Payment]
}

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.payment}
}

func paymentField(p payment.Payment, field string) interface{} {
	switch field {
	case "amount":
		return p.Amount
	case "paid_amount":
		return p.PaidAmount
	case "due_date":
		return p.DueDate
	case "paid_at":
		return p.PaidAt
	case "fee_type":
		return p.FeeType
	case "status":
		return p.Status
	case "updated_at":
		return p.UpdatedAt
	default:
		return p.CreatedAt
	}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.rows[p.ID] = &p
	return p, nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]payment.Payment, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(payment.QueryFilter)
	}
	today := filter.Today
	if today.IsZero() {
		today = core.Today()
	}
	payments := repo.db.all(func(p payment.Payment) bool {
		if filter.Search != "" && !(containsFold(p.Reference, filter.Search) || containsFold(p.Description, filter.Search)) {
			return false
		}
		if !withinDate(p.DueDate, filter.DueFrom, filter.DueTo) || !withinTime(p.PaidAt, filter.PaidFrom, filter.PaidTo) {
			return false
		}
		return matches(filter.BranchID, p.BranchID) &&
			matches(filter.StudentID, p.StudentID) &&
			matches(filter.Method, p.Method) &&
			inSlice(p.StudentID, filter.StudentIDs) &&
			inSlice(p.FeeType, filter.FeeTypes) &&
			inSlice(p.DeriveStatus(today), filter.Statuses)
	})
	sortRows(payments, paymentField, ordering, core.DBOrdering{Field: "created_at"})
	payments, total := paginate(payments, page)
	return payments, total, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.rows[id]; ok {
		return *p, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[p.ID]; !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	repo.db.rows[p.ID] = &p
	return p, nil
}

func (repo *paymentRepository) DeletePaymentsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.rows[id]; ok {
			delete(repo.db.rows, id)
			n++
		}
	}
	return n, nil
}
