package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

type Loan struct {
	ID                   uuid.UUID       `json:"id"`
	MemberID             uuid.UUID       `json:"member_id"`
	Principal            decimal.Decimal `json:"principal"`
	Balance              decimal.Decimal `json:"balance"`       // Outstanding principal
	InterestRate         decimal.Decimal `json:"interest_rate"` // Nominal annual percentage, e.g. 5 for 5%
	DailyInterest        bool            `json:"daily_interest"`
	StartDate            time.Time       `json:"start_date"`
	LastInterestPaidDate *time.Time      `json:"last_interest_paid_date,omitempty"` // nil until the first payment with interest
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
	Status               LoanStatus      `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// InterestWatermark is the date interest has been settled up to.
func (l *Loan) InterestWatermark() time.Time {
	if l.LastInterestPaidDate != nil {
		return *l.LastInterestPaidDate
	}
	return l.StartDate
}

type Payment struct {
	ID              uuid.UUID       `json:"id"`
	LoanID          uuid.UUID       `json:"loan_id"`
	Date            time.Time       `json:"date"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	InterestAmount  decimal.Decimal `json:"interest_amount"`
	InterestDue     decimal.Decimal `json:"interest_due"`    // Interest owed on Date before this payment
	ExcessInterest  decimal.Decimal `json:"excess_interest"` // Interest paid beyond what was owed
	CreatedAt       time.Time       `json:"created_at"`
}

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

type Member struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Phone     string       `json:"phone,omitempty"`
	Shares    int64        `json:"shares"`
	Status    MemberStatus `json:"status"`
	JoinedAt  time.Time    `json:"joined_at"`
	CreatedAt time.Time    `json:"created_at"`
}

// EntryCategory classifies a cashbook entry.
type EntryCategory string

const (
	CategoryShareContribution EntryCategory = "share_contribution"
	CategorySavings           EntryCategory = "savings"
	CategoryLoanDisbursement  EntryCategory = "loan_disbursement"
	CategoryLoanRepayment     EntryCategory = "loan_repayment"
	CategoryInterestIncome    EntryCategory = "interest_income"
	CategoryDividendPayout    EntryCategory = "dividend_payout"
	CategoryExpense           EntryCategory = "expense"
	CategoryOtherIncome       EntryCategory = "other_income"
)

var EntryCategories = []EntryCategory{
	CategoryShareContribution,
	CategorySavings,
	CategoryLoanDisbursement,
	CategoryLoanRepayment,
	CategoryInterestIncome,
	CategoryDividendPayout,
	CategoryExpense,
	CategoryOtherIncome,
}

func (c EntryCategory) Valid() bool {
	for _, known := range EntryCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CashbookEntry is a single cash movement. Amount is signed: receipts are
// positive, disbursements negative.
type CashbookEntry struct {
	ID          uuid.UUID       `json:"id"`
	MemberID    *uuid.UUID      `json:"member_id,omitempty"`
	Date        time.Time       `json:"date"`
	Category    EntryCategory   `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type BankAccount struct {
	ID            uuid.UUID `json:"id"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
}

// BankTransaction moves the balance of a bank account. Deposits are positive.
type BankTransaction struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Dividend struct {
	ID              uuid.UUID       `json:"id"`
	QuarterEndDate  time.Time       `json:"quarter_end_date"`
	TotalShares     int64           `json:"total_shares"`
	ProfitAmount    decimal.Decimal `json:"profit_amount"`
	DividendRate    decimal.Decimal `json:"dividend_rate"`
	Pool            decimal.Decimal `json:"pool"`
	CalculationDate time.Time       `json:"calculation_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

type DividendPaymentStatus string

const (
	DividendPaymentPending DividendPaymentStatus = "pending"
	DividendPaymentPaid    DividendPaymentStatus = "paid"
)

type DividendPayment struct {
	ID         uuid.UUID             `json:"id"`
	DividendID uuid.UUID             `json:"dividend_id"`
	MemberID   uuid.UUID             `json:"member_id"`
	Date       time.Time             `json:"date"` // Quarter end of the owning dividend
	Shares     int64                 `json:"shares"`
	Proportion decimal.Decimal       `json:"proportion"`
	Amount     decimal.Decimal       `json:"amount"`
	Status     DividendPaymentStatus `json:"status"`
	PaidAt     *time.Time            `json:"paid_at,omitempty"`
}
