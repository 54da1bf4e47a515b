package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func TestPayment_DeriveStatus(t *testing.T) {
	today := core.NewDate(2024, time.March, 15)
	yesterday, tomorrow := today.AddDays(-1), today.AddDays(1)

	tests := []struct {
		name string
		p    Payment
		want string
	}{
		{name: "nothing paid", p: Payment{Amount: 100, DueDate: tomorrow}, want: StatusPending},
		{name: "no due date", p: Payment{Amount: 100}, want: StatusPending},
		{name: "due today", p: Payment{Amount: 100, DueDate: today}, want: StatusPending},
		{name: "partially paid", p: Payment{Amount: 100, PaidAmount: 40, DueDate: tomorrow}, want: StatusPartial},
		{name: "fully paid", p: Payment{Amount: 100, PaidAmount: 100, DueDate: yesterday}, want: StatusPaid},
		{name: "overdue", p: Payment{Amount: 100, DueDate: yesterday}, want: StatusOverdue},
		{name: "partial & overdue", p: Payment{Amount: 100, PaidAmount: 40, DueDate: yesterday}, want: StatusOverdue},
		{name: "cancelled", p: Payment{Amount: 100, PaidAmount: 100, Status: StatusCancelled}, want: StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.DeriveStatus(today))
		})
	}
}

func TestPayment_Balance(t *testing.T) {
	assert.Equal(t, 59.9, Payment{Amount: 100, PaidAmount: 40.1}.Balance())
	assert.Equal(t, 0.0, Payment{Amount: 100, PaidAmount: 100}.Balance())
	assert.Equal(t, 0.0, Payment{Amount: 100, PaidAmount: 120}.Balance())
}

func TestAggregate(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		d := Aggregate(nil, now, 0)
		assert.Zero(t, d.Count)
		assert.Zero(t, d.CollectionRate)
		assert.Len(t, d.Monthly, DefaultStatsMonths)
		assert.Equal(t, "2023-10", d.Monthly[0].Month)
		assert.Equal(t, "2024-03", d.Monthly[DefaultStatsMonths-1].Month)
		assert.Empty(t, d.Recent)
		for _, st := range Statuses {
			assert.Contains(t, d.CountByStatus, st)
		}
	})

	t.Run("months are capped", func(t *testing.T) {
		assert.Len(t, Aggregate(nil, now, 100).Monthly, maxStatsMonths)
		assert.Len(t, Aggregate(nil, now, 2).Monthly, 2)
	})

	t.Run("totals", func(t *testing.T) {
		payments := []Payment{
			{FeeType: FeeTuition, Amount: 100, PaidAmount: 100, Method: MethodCash, Status: StatusPaid, PaidAt: now.AddDate(0, 0, -1)},
			{FeeType: FeeTuition, Amount: 100, PaidAmount: 50, Method: MethodMobileMoney, Status: StatusPartial, PaidAt: now.AddDate(0, -1, 0)},
			{FeeType: FeeTransport, Amount: 30.5, Status: StatusOverdue},
			{FeeType: FeeExam, Amount: 20, Status: StatusPending},
			{FeeType: FeeUniform, Amount: 500, PaidAmount: 500, Method: MethodCard, Status: StatusCancelled, PaidAt: now},
			{FeeType: FeeOther, Amount: 10, PaidAmount: 10, Method: MethodCheque, Status: StatusPaid, PaidAt: now.AddDate(-2, 0, 0)},
		}
		d := Aggregate(payments, now, 3)

		assert.Equal(t, 6, d.Count)
		assert.Equal(t, 260.5, d.TotalExpected)
		assert.Equal(t, 160.0, d.TotalCollected)
		assert.Equal(t, 100.5, d.Outstanding)
		assert.Equal(t, 61.42, d.CollectionRate)
		assert.Equal(t, map[string]int{
			StatusPending: 1, StatusPartial: 1, StatusPaid: 2, StatusOverdue: 1, StatusCancelled: 1,
		}, d.CountByStatus)
		assert.Equal(t, map[string]float64{MethodCash: 100, MethodMobileMoney: 50, MethodCheque: 10}, d.CollectedByMeth)
		assert.Equal(t, FeeTotals{Expected: 200, Collected: 150}, d.ByFeeType[FeeTuition])
		assert.NotContains(t, d.ByFeeType, FeeUniform)
		assert.Equal(t, 1, d.OverdueCount)
		assert.Equal(t, 30.5, d.OverdueAmount)
		assert.Equal(t, []MonthTotal{
			{Month: "2024-01", Collected: 0},
			{Month: "2024-02", Collected: 50},
			{Month: "2024-03", Collected: 100},
		}, d.Monthly)

		require.Len(t, d.Recent, 3)
		assert.Equal(t, MethodCash, d.Recent[0].Method)
		assert.Equal(t, MethodMobileMoney, d.Recent[1].Method)
		assert.Equal(t, MethodCheque, d.Recent[2].Method)
	})

	t.Run("recent is capped", func(t *testing.T) {
		payments := make([]Payment, 0, 8)
		for i := 0; i < 8; i++ {
			payments = append(payments, Payment{Amount: 10, PaidAmount: 10, Status: StatusPaid, Method: MethodCash, PaidAt: now.AddDate(0, 0, -i)})
		}
		d := Aggregate(payments, now, 1)
		require.Len(t, d.Recent, recentPaymentsSize)
		assert.Equal(t, now, d.Recent[0].PaidAt)
		assert.Equal(t, 100.0, d.CollectionRate)
	})
}

func TestUpdatePayment_Validate(t *testing.T) {
	validate, _ := core.NewValidator()
	orig := Payment{Amount: 100, PaidAmount: 80, Status: StatusPartial}
	amount := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		amount  float64
		wantErr bool
	}{
		{name: "below paid", amount: 10, wantErr: true},
		{name: "rounds below paid", amount: 79.994, wantErr: true},
		{name: "equal to paid", amount: 80},
		{name: "above paid", amount: 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := UpdatePayment{Amount: amount(tt.amount)}
			err := up.Validate(orig, validate)
			if tt.wantErr {
				var verr *core.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, []core.FieldError{{Field: "amount", Error: ErrBelowPaid.Error()}}, verr.Fields)
				return
			}
			assert.NoError(t, err)
		})
	}

	cancelled := orig
	cancelled.Status = StatusCancelled
	assert.Error(t, (&UpdatePayment{Amount: amount(100)}).Validate(cancelled, validate))
}
