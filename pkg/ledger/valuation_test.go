package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func memberEntry(memberID uuid.UUID, d string, amount string, cat models.EntryCategory) models.CashbookEntry {
	id := memberID
	return models.CashbookEntry{ID: uuid.New(), MemberID: &id, Date: mustDate(d), Category: cat, Amount: dec(amount)}
}

func cashEntry(d string, amount string, cat models.EntryCategory) models.CashbookEntry {
	return models.CashbookEntry{ID: uuid.New(), Date: mustDate(d), Category: cat, Amount: dec(amount)}
}

func mustDate(s string) time.Time {
	t, err := money.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestValuationMemberAssets(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	v := NewValuation(Snapshot{
		Entries: []models.CashbookEntry{
			memberEntry(alice, "2023-01-05", "1000", models.CategoryShareContribution),
			memberEntry(alice, "2023-02-05", "500", models.CategorySavings),
			memberEntry(alice, "2023-04-05", "700", models.CategorySavings),
			memberEntry(bob, "2023-01-05", "2000", models.CategoryShareContribution),
			cashEntry("2023-01-10", "-300", models.CategoryExpense),
		},
		DividendPayments: []models.DividendPayment{
			{ID: uuid.New(), MemberID: alice, Date: mustDate("2023-03-31"), Amount: dec("25.50")},
		},
	})

	assertAmount(t, "1000", v.MemberAssets(alice, mustDate("2023-01-31")))
	assertAmount(t, "1525.50", v.MemberAssets(alice, mustDate("2023-03-31")))
	assertAmount(t, "2225.50", v.MemberAssets(alice, mustDate("2023-04-05")))
	assertAmount(t, "2000", v.MemberAssets(bob, mustDate("2023-12-31")))
	assertAmount(t, "0", v.MemberAssets(uuid.New(), mustDate("2023-12-31")))
}

func TestValuationOrganizationAssets(t *testing.T) {
	member := uuid.New()
	loan := models.Loan{
		ID:        uuid.New(),
		MemberID:  member,
		Principal: dec("5000"),
		Balance:   dec("2000"), // live balance is ignored
		StartDate: mustDate("2023-02-01"),
	}
	v := NewValuation(Snapshot{
		Entries: []models.CashbookEntry{
			memberEntry(member, "2023-01-05", "10000", models.CategoryShareContribution),
			cashEntry("2023-02-01", "-5000", models.CategoryLoanDisbursement),
			cashEntry("2023-03-01", "1000", models.CategoryLoanRepayment),
			cashEntry("2023-05-01", "2000", models.CategoryLoanRepayment),
		},
		BankTransactions: []models.BankTransaction{
			{ID: uuid.New(), Date: mustDate("2023-01-20"), Amount: dec("3000")},
			{ID: uuid.New(), Date: mustDate("2023-06-20"), Amount: dec("-500")},
		},
		Loans: []models.Loan{loan},
		LoanPayments: []models.Payment{
			{ID: uuid.New(), LoanID: loan.ID, Date: mustDate("2023-03-01"), PrincipalAmount: dec("1000")},
			{ID: uuid.New(), LoanID: loan.ID, Date: mustDate("2023-04-01"), InterestAmount: dec("40")},
			{ID: uuid.New(), LoanID: loan.ID, Date: mustDate("2023-05-01"), PrincipalAmount: dec("2000")},
		},
	})

	tests := []struct {
		asOf  string
		cash  string
		bank  string
		loans string
		total string
	}{
		{"2023-01-31", "10000", "3000", "0", "13000"},
		{"2023-02-01", "5000", "3000", "5000", "13000"},
		{"2023-03-15", "6000", "3000", "4000", "13000"},
		{"2023-12-31", "8000", "2500", "2000", "12500"},
	}
	for _, tt := range tests {
		t.Run(tt.asOf, func(t *testing.T) {
			asOf := mustDate(tt.asOf)
			assertAmount(t, tt.cash, v.CashTotal(asOf))
			assertAmount(t, tt.bank, v.BankTotal(asOf))
			assertAmount(t, tt.loans, v.LoansOutstanding(asOf))
			assertAmount(t, tt.total, v.OrganizationAssets(asOf))
		})
	}
}

func TestProportion(t *testing.T) {
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	v := NewValuation(Snapshot{
		Entries: []models.CashbookEntry{
			memberEntry(alice, "2023-01-01", "300", models.CategoryShareContribution),
			memberEntry(bob, "2023-01-01", "700", models.CategoryShareContribution),
			memberEntry(carol, "2023-01-01", "100", models.CategoryShareContribution),
			memberEntry(carol, "2023-01-02", "-150", models.CategoryOtherIncome),
			cashEntry("2023-01-03", "50", models.CategoryOtherIncome),
		},
	})
	asOf := mustDate("2023-03-31")

	assertAmount(t, "0.3", Proportion(v, alice, asOf))
	assertAmount(t, "0.7", Proportion(v, bob, asOf))
	assertAmount(t, "0", Proportion(v, carol, asOf))

	sum := decimal.Zero
	for _, id := range []uuid.UUID{alice, bob, carol} {
		p := Proportion(v, id, asOf)
		assert.False(t, p.IsNegative())
		sum = sum.Add(p)
	}
	assert.True(t, sum.LessThanOrEqual(decimal.NewFromInt(1)), "sum %s", sum)
}

func TestProportionEmptyOrganization(t *testing.T) {
	v := NewValuation(Snapshot{})
	assertAmount(t, "0", Proportion(v, uuid.New(), mustDate("2023-03-31")))

	// members hold assets but the organisation nets to nothing
	alice := uuid.New()
	v = NewValuation(Snapshot{
		Entries: []models.CashbookEntry{
			memberEntry(alice, "2023-01-01", "500", models.CategoryShareContribution),
			cashEntry("2023-01-02", "-500", models.CategoryExpense),
		},
	})
	assertAmount(t, "0", Proportion(v, alice, mustDate("2023-03-31")))
}
