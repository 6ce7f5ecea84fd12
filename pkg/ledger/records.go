package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/mcclellann/fredWelfare/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type MemberRequest struct {
	Name     string
	Phone    string
	Shares   int64
	JoinedAt time.Time
}

func (l *Ledger) CreateMember(req MemberRequest) (*models.Member, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrInvalidInput)
	}
	if req.Shares < 0 {
		return nil, fmt.Errorf("%w: shares must not be negative", ErrInvalidInput)
	}
	now := l.now()
	joined := money.Date(now)
	if money.ValidDate(req.JoinedAt) {
		joined = money.Date(req.JoinedAt)
	}

	member := &models.Member{
		ID:        uuid.New(),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Shares:    req.Shares,
		Status:    models.MemberStatusActive,
		JoinedAt:  joined,
		CreatedAt: now,
	}
	if err := l.storage.CreateMember(member); err != nil {
		return nil, fmt.Errorf("failed to store member: %w", err)
	}
	l.logger.WithFields(logrus.Fields{"member_id": member.ID, "shares": member.Shares}).Info("member registered")
	return member, nil
}

func (l *Ledger) GetMember(id uuid.UUID) (*models.Member, error) {
	return l.storage.GetMember(id)
}

// SetMemberStatus activates or retires a member. Inactive members keep their
// history but take no part in dividend runs and cannot borrow.
func (l *Ledger) SetMemberStatus(id uuid.UUID, status models.MemberStatus) (*models.Member, error) {
	if status != models.MemberStatusActive && status != models.MemberStatusInactive {
		return nil, fmt.Errorf("%w: unknown member status %q", ErrInvalidInput, status)
	}
	if err := l.storage.SetMemberStatus(id, status); err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{"member_id": id, "status": status}).Info("member status changed")
	return l.storage.GetMember(id)
}

func (l *Ledger) GetMembers() ([]*models.Member, error) {
	return l.storage.GetAllMembers()
}

type EntryRequest struct {
	MemberID    *uuid.UUID
	Date        time.Time
	Category    models.EntryCategory
	Amount      decimal.Decimal
	Description string
}

// AddCashbookEntry records a manual cash movement. Entries tied to a member
// must reference an existing member.
func (l *Ledger) AddCashbookEntry(req EntryRequest) (*models.CashbookEntry, error) {
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, req.Category)
	}
	if req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must not be zero", ErrInvalidInput)
	}
	if !money.ValidDate(req.Date) {
		return nil, fmt.Errorf("%w: entry date is required", ErrInvalidInput)
	}
	if req.MemberID != nil {
		if _, err := l.storage.GetMember(*req.MemberID); err != nil {
			return nil, err
		}
	}

	entry := &models.CashbookEntry{
		ID:          uuid.New(),
		MemberID:    req.MemberID,
		Date:        money.Date(req.Date),
		Category:    req.Category,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   l.now(),
	}
	if err := l.storage.CreateCashbookEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to store cashbook entry: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"category": entry.Category,
		"amount":   entry.Amount.StringFixed(2),
	}).Info("cashbook entry recorded")
	return entry, nil
}

func (l *Ledger) GetCashbookEntries(filter store.EntryFilter) ([]*models.CashbookEntry, error) {
	return l.storage.GetCashbookEntries(filter)
}

func (l *Ledger) CreateBankAccount(bankName, accountNumber string) (*models.BankAccount, error) {
	bankName = strings.TrimSpace(bankName)
	accountNumber = strings.TrimSpace(accountNumber)
	if bankName == "" || accountNumber == "" {
		return nil, fmt.Errorf("%w: bank name and account number are required", ErrInvalidInput)
	}
	account := &models.BankAccount{
		ID:            uuid.New(),
		BankName:      bankName,
		AccountNumber: accountNumber,
		CreatedAt:     l.now(),
	}
	if err := l.storage.CreateBankAccount(account); err != nil {
		return nil, fmt.Errorf("failed to store bank account: %w", err)
	}
	return account, nil
}

func (l *Ledger) GetBankAccounts() ([]*models.BankAccount, error) {
	return l.storage.GetBankAccounts()
}

type BankTransactionRequest struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
}

func (l *Ledger) AddBankTransaction(accountID uuid.UUID, req BankTransactionRequest) (*models.BankTransaction, error) {
	if req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must not be zero", ErrInvalidInput)
	}
	if !money.ValidDate(req.Date) {
		return nil, fmt.Errorf("%w: transaction date is required", ErrInvalidInput)
	}
	if _, err := l.storage.GetBankAccount(accountID); err != nil {
		return nil, err
	}

	t := &models.BankTransaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Date:        money.Date(req.Date),
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   l.now(),
	}
	if err := l.storage.CreateBankTransaction(t); err != nil {
		return nil, fmt.Errorf("failed to store bank transaction: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"amount":     t.Amount.StringFixed(2),
	}).Info("bank transaction recorded")
	return t, nil
}

func (l *Ledger) GetDividends() ([]*models.Dividend, error) {
	return l.storage.GetDividends()
}

// GetDividend returns a dividend together with its member allotments.
func (l *Ledger) GetDividend(id uuid.UUID) (*models.Dividend, []*models.DividendPayment, error) {
	d, err := l.storage.GetDividend(id)
	if err != nil {
		return nil, nil, err
	}
	payments, err := l.storage.GetDividendPayments(id)
	if err != nil {
		return nil, nil, err
	}
	return d, payments, nil
}
