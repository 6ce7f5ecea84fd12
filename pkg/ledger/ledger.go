package ledger

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/metrics"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/mcclellann/fredWelfare/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Ledger loads state from storage, runs the pure calculations over it and
// writes the results back.
type Ledger struct {
	storage store.Storage
	logger  *logrus.Logger
	now     func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *logrus.Logger) *Ledger {
	return &Ledger{
		storage: s,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces time.Now, for tests and replays.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) today() time.Time {
	return money.Date(l.now())
}

type LoanRequest struct {
	MemberID      uuid.UUID
	Principal     decimal.Decimal
	InterestRate  decimal.Decimal
	DailyInterest bool
	StartDate     time.Time
}

// CreateLoan issues a loan to an active member and books the disbursement.
func (l *Ledger) CreateLoan(req LoanRequest) (*models.Loan, error) {
	if !req.Principal.IsPositive() {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if !req.InterestRate.IsPositive() {
		return nil, fmt.Errorf("%w: interest rate must be positive", ErrInvalidInput)
	}
	if !money.ValidDate(req.StartDate) {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	member, err := l.storage.GetMember(req.MemberID)
	if err != nil {
		return nil, err
	}
	if member.Status != models.MemberStatusActive {
		return nil, fmt.Errorf("%w: member %s is %s", ErrInvalidInput, member.ID, member.Status)
	}

	now := l.now()
	loan := &models.Loan{
		ID:             uuid.New(),
		MemberID:       member.ID,
		Principal:      req.Principal,
		Balance:        req.Principal,
		InterestRate:   req.InterestRate,
		DailyInterest:  req.DailyInterest,
		StartDate:      money.Date(req.StartDate),
		UnpaidInterest: decimal.Zero,
		Status:         models.LoanStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	disbursement := &models.CashbookEntry{
		ID:          uuid.New(),
		Date:        loan.StartDate,
		Category:    models.CategoryLoanDisbursement,
		Amount:      req.Principal.Neg(),
		Description: fmt.Sprintf("Loan %s to %s", loan.ID, member.Name),
		CreatedAt:   now,
	}

	if err := l.storage.CreateLoan(loan, disbursement); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"member_id": member.ID,
		"principal": loan.Principal.StringFixed(2),
		"daily":     loan.DailyInterest,
	}).Info("loan issued")
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// SetLoanStatus moves a loan between active and defaulted. Completed loans
// are final.
func (l *Ledger) SetLoanStatus(loanID uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	if status != models.LoanStatusActive && status != models.LoanStatusDefaulted {
		return nil, fmt.Errorf("%w: loan status must be active or defaulted", ErrInvalidInput)
	}
	var updated models.Loan
	err := l.storage.UpdateLoan(loanID, func(loan models.Loan) (store.LoanChange, error) {
		if loan.Status == models.LoanStatusCompleted {
			return store.LoanChange{}, ErrLoanNotActive
		}
		if loan.Status != status {
			loan.Status = status
			loan.UpdatedAt = l.now()
		}
		updated = loan
		return store.LoanChange{Loan: loan}, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{"loan_id": loanID, "status": status}).Info("loan status set")
	return &updated, nil
}

func (l *Ledger) GetPayments(loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetPaymentsForLoan(loanID)
}

type PaymentRequest struct {
	Date            time.Time
	PrincipalAmount decimal.Decimal
	InterestAmount  decimal.Decimal
}

// RecordPayment applies a payment to a loan and persists the new loan state,
// the payment and the cash received as one write. The loan is read inside
// that write, so concurrent payments on one loan are settled one at a time.
func (l *Ledger) RecordPayment(loanID uuid.UUID, req PaymentRequest) (*models.Payment, *models.Loan, error) {
	var (
		payment    models.Payment
		updated    models.Loan
		settlement Settlement
		rejected   bool
	)
	err := l.storage.UpdateLoan(loanID, func(loan models.Loan) (store.LoanChange, error) {
		payment = models.Payment{
			ID:              uuid.New(),
			LoanID:          loan.ID,
			Date:            money.Date(req.Date),
			PrincipalAmount: req.PrincipalAmount,
			InterestAmount:  req.InterestAmount,
		}

		var err error
		updated, settlement, err = SettlePayment(loan, payment)
		if err != nil {
			rejected = true
			return store.LoanChange{}, err
		}

		now := l.now()
		updated.UpdatedAt = now
		payment.InterestDue = settlement.InterestDue
		payment.ExcessInterest = settlement.ExcessInterest
		payment.CreatedAt = now
		return store.LoanChange{Loan: updated, Payment: &payment, Cash: receipts(payment, now)}, nil
	})
	if rejected {
		metrics.PaymentsRejected.WithLabelValues(rejectionReason(err)).Inc()
		l.logger.WithFields(logrus.Fields{"loan_id": loanID}).WithError(err).Warn("payment rejected")
		return nil, nil, err
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store payment: %w", err)
	}

	metrics.PaymentsApplied.Inc()
	metrics.InterestCollected.Add(settlement.InterestApplied.InexactFloat64())

	entry := l.logger.WithFields(logrus.Fields{
		"loan_id":          loanID,
		"principal":        payment.PrincipalAmount.StringFixed(2),
		"interest":         payment.InterestAmount.StringFixed(2),
		"interest_carried": settlement.InterestCarried.StringFixed(2),
		"balance":          updated.Balance.StringFixed(2),
	})
	if settlement.ExcessInterest.IsPositive() {
		entry = entry.WithField("excess_interest", settlement.ExcessInterest.StringFixed(2))
	}
	entry.Info("payment applied")
	if updated.Status == models.LoanStatusCompleted {
		l.logger.WithField("loan_id", loanID).Info("loan completed")
	}

	return &payment, &updated, nil
}

// receipts are the cashbook entries for the cash a payment brings in.
func receipts(payment models.Payment, now time.Time) []*models.CashbookEntry {
	var cash []*models.CashbookEntry
	if payment.PrincipalAmount.IsPositive() {
		cash = append(cash, &models.CashbookEntry{
			ID:          uuid.New(),
			Date:        payment.Date,
			Category:    models.CategoryLoanRepayment,
			Amount:      payment.PrincipalAmount,
			Description: fmt.Sprintf("Principal on loan %s", payment.LoanID),
			CreatedAt:   now,
		})
	}
	if payment.InterestAmount.IsPositive() {
		cash = append(cash, &models.CashbookEntry{
			ID:          uuid.New(),
			Date:        payment.Date,
			Category:    models.CategoryInterestIncome,
			Amount:      payment.InterestAmount,
			Description: fmt.Sprintf("Interest on loan %s", payment.LoanID),
			CreatedAt:   now,
		})
	}
	return cash
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrOverpayment):
		return "overpayment"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrLoanNotActive):
		return "not_active"
	default:
		return "invalid_input"
	}
}

// InterestDue is the interest owed on a loan as of asOf.
func (l *Ledger) InterestDue(loanID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return AccruedInterest(*loan, asOf)
}

type InterestLine struct {
	LoanID   uuid.UUID         `json:"loan_id"`
	MemberID uuid.UUID         `json:"member_id"`
	Status   models.LoanStatus `json:"status"`
	Balance  decimal.Decimal   `json:"balance"`
	Accrued  decimal.Decimal   `json:"accrued_interest"`
}

// InterestStatement computes the interest owed as of asOf on every loan that
// is not completed. Defaulted loans keep accruing and are listed too.
func (l *Ledger) InterestStatement(asOf time.Time) ([]InterestLine, error) {
	loans, err := l.storage.GetOpenLoans()
	if err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}

	lines := make([]InterestLine, len(loans))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, loan := range loans {
		i, loan := i, loan
		g.Go(func() error {
			accrued, err := AccruedInterest(*loan, asOf)
			if err != nil {
				return fmt.Errorf("loan %s: %w", loan.ID, err)
			}
			lines[i] = InterestLine{LoanID: loan.ID, MemberID: loan.MemberID, Status: loan.Status, Balance: loan.Balance, Accrued: accrued}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Snapshot loads the ledger state needed to value assets as of asOf.
func (l *Ledger) Snapshot(asOf time.Time) (Snapshot, error) {
	cutoff := money.Date(asOf)

	entries, err := l.storage.GetCashbookEntries(store.EntryFilter{To: &cutoff})
	if err != nil {
		return Snapshot{}, err
	}
	dividends, err := l.storage.GetMemberDividendPayments(cutoff)
	if err != nil {
		return Snapshot{}, err
	}
	bank, err := l.storage.GetBankTransactions(cutoff)
	if err != nil {
		return Snapshot{}, err
	}
	loans, err := l.storage.GetAllLoans()
	if err != nil {
		return Snapshot{}, err
	}
	payments, err := l.storage.GetLoanPayments(cutoff)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Entries:          values(entries),
		DividendPayments: values(dividends),
		BankTransactions: values(bank),
		Loans:            values(loans),
		LoanPayments:     values(payments),
	}, nil
}

func values[T any](ptrs []*T) []T {
	out := make([]T, 0, len(ptrs))
	for _, p := range ptrs {
		out = append(out, *p)
	}
	return out
}

func (l *Ledger) valuation(asOf time.Time) (*Valuation, error) {
	if !money.ValidDate(asOf) {
		return nil, fmt.Errorf("%w: as-of date is required", ErrInvalidInput)
	}
	snap, err := l.Snapshot(asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	return NewValuation(snap), nil
}

type MemberAssetSummary struct {
	MemberID   uuid.UUID       `json:"member_id"`
	AsOf       time.Time       `json:"as_of"`
	Assets     decimal.Decimal `json:"assets"`
	Proportion decimal.Decimal `json:"proportion"`
}

func (l *Ledger) MemberAssets(memberID uuid.UUID, asOf time.Time) (*MemberAssetSummary, error) {
	if _, err := l.storage.GetMember(memberID); err != nil {
		return nil, err
	}
	v, err := l.valuation(asOf)
	if err != nil {
		return nil, err
	}
	cutoff := money.Date(asOf)
	return &MemberAssetSummary{
		MemberID:   memberID,
		AsOf:       cutoff,
		Assets:     v.MemberAssets(memberID, cutoff),
		Proportion: Proportion(v, memberID, cutoff),
	}, nil
}

type AssetSummary struct {
	AsOf             time.Time       `json:"as_of"`
	Cash             decimal.Decimal `json:"cash"`
	Bank             decimal.Decimal `json:"bank"`
	LoansOutstanding decimal.Decimal `json:"loans_outstanding"`
	Total            decimal.Decimal `json:"total"`
}

func (l *Ledger) OrganizationAssets(asOf time.Time) (*AssetSummary, error) {
	v, err := l.valuation(asOf)
	if err != nil {
		return nil, err
	}
	cutoff := money.Date(asOf)
	return &AssetSummary{
		AsOf:             cutoff,
		Cash:             v.CashTotal(cutoff),
		Bank:             v.BankTotal(cutoff),
		LoansOutstanding: v.LoansOutstanding(cutoff),
		Total:            v.OrganizationAssets(cutoff),
	}, nil
}

// DistributeDividend allocates a quarter's dividend across the active members
// and stores the dividend with its pending payments.
//
// With no active members nothing is stored; the computed distribution is
// still returned alongside ErrInsufficientData.
func (l *Ledger) DistributeDividend(quarterEnd time.Time, profit, rate decimal.Decimal) (*Distribution, error) {
	members, err := l.storage.GetActiveMembers()
	if err != nil {
		return nil, fmt.Errorf("failed to get active members: %w", err)
	}
	v, err := l.valuation(quarterEnd)
	if err != nil {
		return nil, err
	}

	dist, err := Distribute(profit, rate, quarterEnd, values(members), v)
	if errors.Is(err, ErrInsufficientData) {
		metrics.DividendRuns.WithLabelValues("no_members").Inc()
		l.logger.WithFields(logrus.Fields{
			"quarter_end": money.FormatDate(quarterEnd),
			"pool":        dist.Dividend.Pool.StringFixed(2),
		}).Warn("dividend not distributed: no active members")
		return &dist, err
	}
	if err != nil {
		metrics.DividendRuns.WithLabelValues("rejected").Inc()
		return nil, err
	}

	now := l.now()
	dist.Dividend.CalculationDate = money.Date(now)
	dist.Dividend.CreatedAt = now

	payments := make([]*models.DividendPayment, len(dist.Payments))
	for i := range dist.Payments {
		payments[i] = &dist.Payments[i]
	}
	if err := l.storage.SaveDividend(&dist.Dividend, payments); err != nil {
		metrics.DividendRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to store dividend: %w", err)
	}

	drift := dist.Drift()
	metrics.DividendRuns.WithLabelValues("distributed").Inc()
	metrics.RoundingDrift.Set(drift.InexactFloat64())
	for _, p := range dist.Payments {
		metrics.DividendAllocation.Observe(p.Amount.InexactFloat64())
	}

	l.logger.WithFields(logrus.Fields{
		"dividend_id": dist.Dividend.ID,
		"quarter_end": money.FormatDate(dist.Dividend.QuarterEndDate),
		"pool":        dist.Dividend.Pool.StringFixed(2),
		"allocated":   dist.Allocated().StringFixed(2),
		"members":     len(dist.Payments),
	}).Info("dividend distributed")
	return &dist, nil
}

// MarkDividendPaid pays out a pending dividend allotment in cash.
func (l *Ledger) MarkDividendPaid(dividendID, paymentID uuid.UUID) (*models.DividendPayment, error) {
	p, err := l.storage.GetDividendPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if p.DividendID != dividendID {
		return nil, fmt.Errorf("dividend payment %s: %w", paymentID, store.ErrNotFound)
	}
	if p.Status != models.DividendPaymentPending {
		return nil, fmt.Errorf("dividend payment %s: %w", paymentID, store.ErrAlreadyPaid)
	}

	now := l.now()
	memberID := p.MemberID
	payout := &models.CashbookEntry{
		ID:          uuid.New(),
		MemberID:    &memberID,
		Date:        money.Date(now),
		Category:    models.CategoryDividendPayout,
		Amount:      p.Amount.Neg(),
		Description: fmt.Sprintf("Dividend %s", p.DividendID),
		CreatedAt:   now,
	}
	if err := l.storage.MarkDividendPaymentPaid(p.ID, now, payout); err != nil {
		return nil, err
	}

	p.Status = models.DividendPaymentPaid
	p.PaidAt = &now
	l.logger.WithFields(logrus.Fields{
		"dividend_id": p.DividendID,
		"member_id":   p.MemberID,
		"amount":      p.Amount.StringFixed(2),
	}).Info("dividend paid")
	return p, nil
}
