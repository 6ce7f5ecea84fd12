package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
)

var ErrNotFound = errors.New("not found")

// EntryFilter narrows a cashbook query. Zero values mean "no bound".
type EntryFilter struct {
	MemberID *uuid.UUID
	From     *time.Time
	To       *time.Time
}

// LoanChange is the new state of a loan together with the rows written
// alongside it. Payment and Cash are optional.
type LoanChange struct {
	Loan    models.Loan
	Payment *models.Payment
	Cash    []*models.CashbookEntry
}

// Storage defines the persistence operations the ledger relies on.
// Methods that take cashbook entries write them in the same transaction as
// the main row; nil or empty means none.
type Storage interface {
	CreateLoan(loan *models.Loan, disbursement *models.CashbookEntry) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(id uuid.UUID, apply func(models.Loan) (LoanChange, error)) error
	GetAllLoans() ([]*models.Loan, error)
	GetOpenLoans() ([]*models.Loan, error)

	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)
	GetLoanPayments(asOf time.Time) ([]*models.Payment, error)

	CreateMember(member *models.Member) error
	GetMember(id uuid.UUID) (*models.Member, error)
	SetMemberStatus(id uuid.UUID, status models.MemberStatus) error
	GetAllMembers() ([]*models.Member, error)
	GetActiveMembers() ([]*models.Member, error)

	CreateCashbookEntry(entry *models.CashbookEntry) error
	GetCashbookEntries(filter EntryFilter) ([]*models.CashbookEntry, error)

	CreateBankAccount(account *models.BankAccount) error
	GetBankAccount(id uuid.UUID) (*models.BankAccount, error)
	GetBankAccounts() ([]*models.BankAccount, error)
	CreateBankTransaction(tx *models.BankTransaction) error
	GetBankTransactions(asOf time.Time) ([]*models.BankTransaction, error)

	SaveDividend(dividend *models.Dividend, payments []*models.DividendPayment) error
	GetDividend(id uuid.UUID) (*models.Dividend, error)
	GetDividends() ([]*models.Dividend, error)
	GetDividendPayment(id uuid.UUID) (*models.DividendPayment, error)
	GetDividendPayments(dividendID uuid.UUID) ([]*models.DividendPayment, error)
	GetMemberDividendPayments(asOf time.Time) ([]*models.DividendPayment, error)
	MarkDividendPaymentPaid(id uuid.UUID, paidAt time.Time, payout *models.CashbookEntry) error

	Close() error
}
