package payment

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const (
	DefaultStatsMonths = 6
	maxStatsMonths     = 24
	recentPaymentsSize = 5
)

type (
	// Dashboard is the payment-dashboard aggregation.
	Dashboard struct {
		TotalExpected   float64              `json:"total_expected"`
		TotalCollected  float64              `json:"total_collected"`
		Outstanding     float64              `json:"outstanding"`
		CollectionRate  float64              `json:"collection_rate"`
		Count           int                  `json:"count"`
		CountByStatus   map[string]int       `json:"count_by_status"`
		CollectedByMeth map[string]float64   `json:"collected_by_method"`
		ByFeeType       map[string]FeeTotals `json:"by_fee_type"`
		Monthly         []MonthTotal         `json:"monthly"`
		OverdueCount    int                  `json:"overdue_count"`
		OverdueAmount   float64              `json:"overdue_amount"`
		Recent          []Payment            `json:"recent"`
	}

	FeeTotals struct {
		Expected  float64 `json:"expected"`
		Collected float64 `json:"collected"`
	}

	MonthTotal struct {
		Month     string  `json:"month"` // YYYY-MM
		Collected float64 `json:"collected"`
	}
)

// Stats aggregates the payments matching filter. Cancelled payments count in CountByStatus only.
// Monthly covers the last `months` months ending with the current one, zero-filled.
func (svc *Service) Stats(ctx context.Context, filter *QueryFilter, months int) (Dashboard, error) {
	payments, err := svc.All(ctx, filter)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying payments")
	}
	return Aggregate(payments, core.NowFunc(), months), nil
}

// Aggregate builds the Dashboard of already derived payments, as of now.
func Aggregate(payments []Payment, now time.Time, months int) Dashboard {
	if months <= 0 {
		months = DefaultStatsMonths
	} else if months > maxStatsMonths {
		months = maxStatsMonths
	}

	d := Dashboard{
		Count:           len(payments),
		CountByStatus:   make(map[string]int, len(Statuses)),
		CollectedByMeth: make(map[string]float64, len(Methods)),
		ByFeeType:       make(map[string]FeeTotals, len(FeeTypes)),
		Monthly:         make([]MonthTotal, 0, months),
		Recent:          []Payment{},
	}
	for _, st := range Statuses {
		d.CountByStatus[st] = 0
	}

	// zero-filled month buckets, oldest first
	now = now.UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthIdx := make(map[string]int, months)
	for i := months - 1; i >= 0; i-- {
		key := firstOfMonth.AddDate(0, -i, 0).Format("2006-01")
		monthIdx[key] = len(d.Monthly)
		d.Monthly = append(d.Monthly, MonthTotal{Month: key})
	}

	paid := make([]Payment, 0, len(payments))
	for _, p := range payments {
		d.CountByStatus[p.Status]++
		if p.Status == StatusCancelled {
			continue
		}

		d.TotalExpected += p.Amount
		d.TotalCollected += p.PaidAmount

		ft := d.ByFeeType[p.FeeType]
		ft.Expected += p.Amount
		ft.Collected += p.PaidAmount
		d.ByFeeType[p.FeeType] = ft

		if p.PaidAmount > 0 {
			if p.Method != "" {
				d.CollectedByMeth[p.Method] += p.PaidAmount
			}
			if !p.PaidAt.IsZero() {
				if i, ok := monthIdx[p.PaidAt.UTC().Format("2006-01")]; ok {
					d.Monthly[i].Collected += p.PaidAmount
				}
				paid = append(paid, p)
			}
		}

		if p.Status == StatusOverdue {
			d.OverdueCount++
			d.OverdueAmount += p.Balance()
		}
	}

	d.TotalExpected = core.Round2(d.TotalExpected)
	d.TotalCollected = core.Round2(d.TotalCollected)
	d.Outstanding = core.Round2(d.TotalExpected - d.TotalCollected)
	if d.Outstanding < 0 {
		d.Outstanding = 0
	}
	d.CollectionRate = core.Percent(d.TotalCollected, d.TotalExpected)
	d.OverdueAmount = core.Round2(d.OverdueAmount)
	for m, v := range d.CollectedByMeth {
		d.CollectedByMeth[m] = core.Round2(v)
	}
	for k, v := range d.ByFeeType {
		d.ByFeeType[k] = FeeTotals{Expected: core.Round2(v.Expected), Collected: core.Round2(v.Collected)}
	}
	for i := range d.Monthly {
		d.Monthly[i].Collected = core.Round2(d.Monthly[i].Collected)
	}

	sort.SliceStable(paid, func(i, j int) bool { return paid[i].PaidAt.After(paid[j].PaidAt) })
	if len(paid) > recentPaymentsSize {
		paid = paid[:recentPaymentsSize]
	}
	d.Recent = append(d.Recent, paid...)
	return d
}
