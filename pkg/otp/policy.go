package otp

import "github.com/mcclellann/fredWelfare/pkg/models"

// Operation names an action that can be protected by a verification code.
type Operation string

const (
	OpLoanDisbursement     Operation = "loan_disbursement"
	OpDividendDistribution Operation = "dividend_distribution"
	OpDividendPayout       Operation = "dividend_payout"
	OpExpense              Operation = "expense"
)

var operations = map[Operation]bool{
	OpLoanDisbursement:     true,
	OpDividendDistribution: true,
	OpDividendPayout:       true,
	OpExpense:              true,
}

func (o Operation) Valid() bool {
	return operations[o]
}

// Policy maps cashbook categories to the operation that must be verified
// before an entry of that category is written. Categories not listed need no
// verification.
type Policy map[models.EntryCategory]Operation

// DefaultPolicy protects cash leaving the society.
func DefaultPolicy() Policy {
	return Policy{
		models.CategoryLoanDisbursement: OpLoanDisbursement,
		models.CategoryDividendPayout:   OpDividendPayout,
		models.CategoryExpense:          OpExpense,
	}
}

// ForCategory returns the operation guarding c, if any.
func (p Policy) ForCategory(c models.EntryCategory) (Operation, bool) {
	op, ok := p[c]
	return op, ok
}
