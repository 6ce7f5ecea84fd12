package ledger

import (
	"fmt"

	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/shopspring/decimal"
)

// Settlement describes how the interest part of a payment was applied.
type Settlement struct {
	InterestDue     decimal.Decimal // owed on the payment date, before the payment
	InterestApplied decimal.Decimal
	InterestCarried decimal.Decimal // shortfall left in UnpaidInterest
	ExcessInterest  decimal.Decimal // paid beyond what was owed; not credited anywhere
}

// ApplyPayment returns loan as it stands after payment. The input loan is never
// modified; on error it is returned as-is.
func ApplyPayment(loan models.Loan, payment models.Payment) (models.Loan, error) {
	updated, _, err := SettlePayment(loan, payment)
	return updated, err
}

// SettlePayment is ApplyPayment that also reports how the interest was settled.
//
// Principal reduces the balance. A payment carrying interest retires the
// interest owed on its date, keeps any shortfall as UnpaidInterest and moves
// the interest watermark to the payment date. A principal-only payment leaves
// both untouched.
func SettlePayment(loan models.Loan, payment models.Payment) (models.Loan, Settlement, error) {
	var s Settlement

	if err := validatePayment(payment); err != nil {
		return loan, s, err
	}
	if err := validateLoan(loan); err != nil {
		return loan, s, err
	}
	if loan.Status == models.LoanStatusCompleted {
		return loan, s, fmt.Errorf("%w: loan %s is %s", ErrLoanNotActive, loan.ID, loan.Status)
	}
	if payment.PrincipalAmount.GreaterThan(loan.Balance) {
		return loan, s, fmt.Errorf("%w: paying %s against a balance of %s", ErrOverpayment, payment.PrincipalAmount, loan.Balance)
	}
	watermark := loan.InterestWatermark()
	if money.DaysBetween(watermark, payment.Date) < 0 {
		return loan, s, fmt.Errorf("%w: payment on %s, interest settled to %s", ErrInvalidDate, money.FormatDate(payment.Date), money.FormatDate(watermark))
	}

	updated := loan

	if payment.InterestAmount.IsPositive() {
		due, err := AccruedInterest(loan, payment.Date)
		if err != nil {
			return loan, Settlement{}, err
		}
		s.InterestDue = due
		s.InterestApplied = decimal.Min(payment.InterestAmount, due)
		s.InterestCarried = due.Sub(s.InterestApplied)
		s.ExcessInterest = payment.InterestAmount.Sub(s.InterestApplied)

		paidOn := money.Date(payment.Date)
		updated.LastInterestPaidDate = &paidOn
		updated.UnpaidInterest = s.InterestCarried
	}

	updated.Balance = loan.Balance.Sub(payment.PrincipalAmount)
	if updated.Balance.IsZero() {
		updated.Status = models.LoanStatusCompleted
	}

	return updated, s, nil
}

func validatePayment(p models.Payment) error {
	if p.PrincipalAmount.IsNegative() || p.InterestAmount.IsNegative() {
		return fmt.Errorf("%w: payment amounts must not be negative", ErrInvalidInput)
	}
	if !p.PrincipalAmount.IsPositive() && !p.InterestAmount.IsPositive() {
		return fmt.Errorf("%w: payment must include principal or interest", ErrInvalidInput)
	}
	if !money.ValidDate(p.Date) {
		return fmt.Errorf("%w: payment date is required", ErrInvalidInput)
	}
	return nil
}
