package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/shopspring/decimal"
)

// Snapshot is the ledger state a valuation is computed from.
type Snapshot struct {
	Entries          []models.CashbookEntry
	DividendPayments []models.DividendPayment
	BankTransactions []models.BankTransaction
	Loans            []models.Loan
	LoanPayments     []models.Payment
}

// Valuer answers point-in-time asset questions.
type Valuer interface {
	MemberAssets(memberID uuid.UUID, asOf time.Time) decimal.Decimal
	OrganizationAssets(asOf time.Time) decimal.Decimal
}

// Valuation computes assets over a fixed Snapshot. It is read-only after
// construction and safe for concurrent use.
type Valuation struct {
	snap            Snapshot
	entriesByMember map[uuid.UUID][]models.CashbookEntry
	paidByMember    map[uuid.UUID][]models.DividendPayment
	principalByLoan map[uuid.UUID][]models.Payment
}

func NewValuation(snap Snapshot) *Valuation {
	v := &Valuation{
		snap:            snap,
		entriesByMember: make(map[uuid.UUID][]models.CashbookEntry),
		paidByMember:    make(map[uuid.UUID][]models.DividendPayment),
		principalByLoan: make(map[uuid.UUID][]models.Payment),
	}
	for _, e := range snap.Entries {
		if e.MemberID != nil {
			v.entriesByMember[*e.MemberID] = append(v.entriesByMember[*e.MemberID], e)
		}
	}
	for _, p := range snap.DividendPayments {
		v.paidByMember[p.MemberID] = append(v.paidByMember[p.MemberID], p)
	}
	for _, p := range snap.LoanPayments {
		if p.PrincipalAmount.IsPositive() {
			v.principalByLoan[p.LoanID] = append(v.principalByLoan[p.LoanID], p)
		}
	}
	return v
}

// MemberAssets is the member's cashbook total plus the dividends allotted to
// them, both counted up to and including asOf.
func (v *Valuation) MemberAssets(memberID uuid.UUID, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range v.entriesByMember[memberID] {
		if onOrBefore(e.Date, asOf) {
			total = total.Add(e.Amount)
		}
	}
	for _, p := range v.paidByMember[memberID] {
		if onOrBefore(p.Date, asOf) {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// OrganizationAssets is cash on hand, bank balances and outstanding loan
// principal as of asOf.
func (v *Valuation) OrganizationAssets(asOf time.Time) decimal.Decimal {
	return money.Sum(v.CashTotal(asOf), v.BankTotal(asOf), v.LoansOutstanding(asOf))
}

func (v *Valuation) CashTotal(asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range v.snap.Entries {
		if onOrBefore(e.Date, asOf) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

func (v *Valuation) BankTotal(asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, t := range v.snap.BankTransactions {
		if onOrBefore(t.Date, asOf) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// LoansOutstanding rebuilds each loan's balance at asOf from its principal and
// the principal repaid by then, so it does not depend on the live balance.
func (v *Valuation) LoansOutstanding(asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, loan := range v.snap.Loans {
		if !onOrBefore(loan.StartDate, asOf) {
			continue
		}
		outstanding := loan.Principal
		for _, p := range v.principalByLoan[loan.ID] {
			if onOrBefore(p.Date, asOf) {
				outstanding = outstanding.Sub(p.PrincipalAmount)
			}
		}
		if outstanding.IsPositive() {
			total = total.Add(outstanding)
		}
	}
	return total
}

// Proportion is the member's share of organisation assets, in [0, 1] for a
// consistent ledger. It is zero when the organisation holds nothing, and a
// member with a negative position gets zero rather than a negative share.
func Proportion(v Valuer, memberID uuid.UUID, asOf time.Time) decimal.Decimal {
	return proportion(v.MemberAssets(memberID, asOf), v.OrganizationAssets(asOf))
}

func proportion(member, org decimal.Decimal) decimal.Decimal {
	if !org.IsPositive() || !member.IsPositive() {
		return decimal.Zero
	}
	return member.Div(org)
}

func onOrBefore(d, asOf time.Time) bool {
	return money.DaysBetween(d, asOf) >= 0
}
