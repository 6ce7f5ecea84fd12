package ledger

import (
	"fmt"
	"time"

	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	daysInYear     = decimal.NewFromInt(365)
	monthsInYear   = decimal.NewFromInt(12)
	daysInMonth    = decimal.NewFromInt(30) // nominal month used by the monthly policy
	dailyDivisor   = money.Hundred.Mul(daysInYear)
	monthlyDivisor = money.Hundred.Mul(monthsInYear).Mul(daysInMonth)
)

// AccruedInterest returns the interest owed on loan as of asOf: the carried
// UnpaidInterest plus whatever has accrued since the interest watermark.
//
// Daily loans accrue balance * rate/100/365 per day. Monthly loans accrue
// balance * rate/100/12 per 30 elapsed days, whatever the calendar month length.
// Calling it again for an earlier or equal date returns UnpaidInterest.
func AccruedInterest(loan models.Loan, asOf time.Time) (decimal.Decimal, error) {
	if err := validateLoan(loan); err != nil {
		return decimal.Zero, err
	}
	if !money.ValidDate(asOf) {
		return decimal.Zero, fmt.Errorf("%w: as-of date is required", ErrInvalidInput)
	}

	days := money.DaysBetween(loan.InterestWatermark(), asOf)
	if days <= 0 {
		return loan.UnpaidInterest, nil
	}

	return loan.UnpaidInterest.Add(newlyAccrued(loan, days)), nil
}

func newlyAccrued(loan models.Loan, days int) decimal.Decimal {
	// Multiply first and divide once to keep the full precision of the quotient.
	numerator := loan.Balance.Mul(loan.InterestRate).Mul(decimal.NewFromInt(int64(days)))
	divisor := monthlyDivisor
	if loan.DailyInterest {
		divisor = dailyDivisor
	}
	return money.Round(numerator.Div(divisor))
}

func validateLoan(loan models.Loan) error {
	if !loan.InterestRate.IsPositive() {
		return fmt.Errorf("%w: interest rate must be positive, got %s", ErrInvalidInput, loan.InterestRate)
	}
	if loan.Balance.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative, got %s", ErrInvalidInput, loan.Balance)
	}
	if loan.UnpaidInterest.IsNegative() {
		return fmt.Errorf("%w: unpaid interest must not be negative, got %s", ErrInvalidInput, loan.UnpaidInterest)
	}
	if !money.ValidDate(loan.StartDate) {
		return fmt.Errorf("%w: loan start date is required", ErrInvalidInput)
	}
	return nil
}
