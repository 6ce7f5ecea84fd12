package ledger

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Distribution is the outcome of a dividend run before it is persisted.
type Distribution struct {
	Dividend models.Dividend
	Payments []models.DividendPayment
}

// Allocated is the sum of the rounded member allocations. It may differ from
// the pool by at most one cent per member.
func (d Distribution) Allocated() decimal.Decimal {
	total := decimal.Zero
	for _, p := range d.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Drift is |allocated - pool|, measured against the unrounded pool.
func (d Distribution) Drift() decimal.Decimal {
	return d.Allocated().Sub(d.Dividend.Pool).Abs()
}

// DividendPool is profit * rate/100. It is not rounded; only the member
// allocations are.
func DividendPool(profit, rate decimal.Decimal) (decimal.Decimal, error) {
	if profit.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: profit must not be negative, got %s", ErrInvalidInput, profit)
	}
	if !rate.IsPositive() || rate.GreaterThan(money.Hundred) {
		return decimal.Zero, fmt.Errorf("%w: dividend rate must be in (0, 100], got %s", ErrInvalidInput, rate)
	}
	return profit.Mul(rate).Div(money.Hundred), nil
}

// Distribute splits the dividend pool across the active members in proportion
// to their assets as of asOf. Each allocation is rounded half-to-even on its
// own; the rounded total is not forced back onto the pool.
//
// With no active members the dividend is still returned with its pool and an
// empty allocation list, together with ErrInsufficientData.
func Distribute(profit, rate decimal.Decimal, asOf time.Time, members []models.Member, v Valuer) (Distribution, error) {
	if !money.ValidDate(asOf) {
		return Distribution{}, fmt.Errorf("%w: as-of date is required", ErrInvalidInput)
	}
	pool, err := DividendPool(profit, rate)
	if err != nil {
		return Distribution{}, err
	}

	cutoff := money.Date(asOf)
	active := make([]models.Member, 0, len(members))
	var totalShares int64
	for _, m := range members {
		if m.Status != models.MemberStatusActive {
			continue
		}
		active = append(active, m)
		totalShares += m.Shares
	}

	dividend := models.Dividend{
		ID:              uuid.New(),
		QuarterEndDate:  cutoff,
		TotalShares:     totalShares,
		ProfitAmount:    profit,
		DividendRate:    rate,
		Pool:            pool,
		CalculationDate: cutoff,
	}
	dist := Distribution{Dividend: dividend, Payments: []models.DividendPayment{}}

	if len(active) == 0 {
		return dist, ErrInsufficientData
	}

	orgTotal := v.OrganizationAssets(cutoff)
	payments := make([]models.DividendPayment, len(active))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range active {
		i, m := i, m
		g.Go(func() error {
			share := proportion(v.MemberAssets(m.ID, cutoff), orgTotal)
			payments[i] = models.DividendPayment{
				ID:         uuid.New(),
				DividendID: dividend.ID,
				MemberID:   m.ID,
				Date:       cutoff,
				Shares:     m.Shares,
				Proportion: share,
				Amount:     money.Round(share.Mul(pool)),
				Status:     models.DividendPaymentPending,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Distribution{}, err
	}

	dist.Payments = payments
	return dist, nil
}
