package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedValuer reports preset asset figures.
type fixedValuer struct {
	members map[uuid.UUID]decimal.Decimal
	org     decimal.Decimal
}

func (f fixedValuer) MemberAssets(id uuid.UUID, _ time.Time) decimal.Decimal {
	return f.members[id]
}

func (f fixedValuer) OrganizationAssets(time.Time) decimal.Decimal {
	return f.org
}

func activeMember(shares int64) models.Member {
	return models.Member{ID: uuid.New(), Name: "member", Shares: shares, Status: models.MemberStatusActive}
}

func TestDividendPool(t *testing.T) {
	pool, err := DividendPool(dec("100000"), dec("10"))
	require.NoError(t, err)
	assertAmount(t, "10000", pool)

	pool, err = DividendPool(dec("1234.56"), dec("7.5"))
	require.NoError(t, err)
	assertAmount(t, "92.592", pool)

	pool, err = DividendPool(decimal.Zero, dec("100"))
	require.NoError(t, err)
	assertAmount(t, "0", pool)

	for _, tt := range []struct{ profit, rate string }{
		{"-1", "10"},
		{"100", "0"},
		{"100", "-5"},
		{"100", "100.01"},
	} {
		_, err := DividendPool(dec(tt.profit), dec(tt.rate))
		assert.True(t, errors.Is(err, ErrInvalidInput), "profit %s rate %s: %v", tt.profit, tt.rate, err)
	}
}

func TestDistributeByAssets(t *testing.T) {
	a, b := activeMember(30), activeMember(70)
	v := fixedValuer{
		members: map[uuid.UUID]decimal.Decimal{a.ID: dec("300000"), b.ID: dec("700000")},
		org:     dec("1000000"),
	}

	dist, err := Distribute(dec("100000"), dec("10"), date(2023, 3, 31), []models.Member{a, b}, v)
	require.NoError(t, err)

	assertAmount(t, "10000", dist.Dividend.Pool)
	assert.Equal(t, int64(100), dist.Dividend.TotalShares)
	assert.Equal(t, date(2023, 3, 31), dist.Dividend.QuarterEndDate)
	require.Len(t, dist.Payments, 2)

	byMember := map[uuid.UUID]models.DividendPayment{}
	for _, p := range dist.Payments {
		assert.Equal(t, dist.Dividend.ID, p.DividendID)
		assert.Equal(t, models.DividendPaymentPending, p.Status)
		assert.Equal(t, date(2023, 3, 31), p.Date)
		byMember[p.MemberID] = p
	}
	assertAmount(t, "3000", byMember[a.ID].Amount)
	assertAmount(t, "7000", byMember[b.ID].Amount)
	assertAmount(t, "0.3", byMember[a.ID].Proportion)
	assert.Equal(t, int64(70), byMember[b.ID].Shares)
	assertAmount(t, "10000", dist.Allocated())
}

func TestDistributeWithEmptyOrganization(t *testing.T) {
	members := []models.Member{activeMember(1), activeMember(2), activeMember(3)}
	v := fixedValuer{members: map[uuid.UUID]decimal.Decimal{}, org: decimal.Zero}

	dist, err := Distribute(dec("50000"), dec("10"), date(2023, 6, 30), members, v)
	require.NoError(t, err)

	require.Len(t, dist.Payments, 3)
	for _, p := range dist.Payments {
		assert.True(t, p.Proportion.IsZero())
		assert.True(t, p.Amount.IsZero())
	}
}

func TestDistributeWithoutMembers(t *testing.T) {
	inactive := activeMember(10)
	inactive.Status = models.MemberStatusInactive

	dist, err := Distribute(dec("100000"), dec("10"), date(2023, 3, 31), []models.Member{inactive}, fixedValuer{org: dec("1")})
	assert.True(t, errors.Is(err, ErrInsufficientData), "got %v", err)
	assertAmount(t, "10000", dist.Dividend.Pool)
	assert.NotNil(t, dist.Payments)
	assert.Empty(t, dist.Payments)
}

func TestDistributeSkipsInactiveMembers(t *testing.T) {
	a := activeMember(10)
	gone := activeMember(10)
	gone.Status = models.MemberStatusInactive
	v := fixedValuer{
		members: map[uuid.UUID]decimal.Decimal{a.ID: dec("500"), gone.ID: dec("500")},
		org:     dec("1000"),
	}

	dist, err := Distribute(dec("1000"), dec("50"), date(2023, 3, 31), []models.Member{a, gone}, v)
	require.NoError(t, err)
	require.Len(t, dist.Payments, 1)
	assert.Equal(t, a.ID, dist.Payments[0].MemberID)
	assertAmount(t, "250", dist.Payments[0].Amount)
	assert.Equal(t, int64(10), dist.Dividend.TotalShares)
}

func TestDistributeRoundingDrift(t *testing.T) {
	members := make([]models.Member, 7)
	assets := map[uuid.UUID]decimal.Decimal{}
	for i := range members {
		members[i] = activeMember(1)
		assets[members[i].ID] = decimal.NewFromInt(1)
	}
	v := fixedValuer{members: assets, org: decimal.NewFromInt(7)}

	dist, err := Distribute(dec("1000"), dec("10"), date(2023, 9, 30), members, v)
	require.NoError(t, err)

	// 100 / 7 = 14.2857... rounds to 14.29 each
	for _, p := range dist.Payments {
		assertAmount(t, "14.29", p.Amount)
	}
	drift := dist.Drift()
	bound := decimal.New(1, -2).Mul(decimal.NewFromInt(int64(len(members))))
	assert.True(t, drift.LessThanOrEqual(bound), "drift %s exceeds %s", drift, bound)
	assertAmount(t, "100.03", dist.Allocated())
	assertAmount(t, "0.03", drift)
}

func TestDistributeDriftAgainstExactPool(t *testing.T) {
	a, b := activeMember(1), activeMember(1)
	v := fixedValuer{
		members: map[uuid.UUID]decimal.Decimal{a.ID: dec("1"), b.ID: dec("1")},
		org:     dec("2"),
	}

	// 1234.56 * 7.5% = 92.592, half each is 46.296
	dist, err := Distribute(dec("1234.56"), dec("7.5"), date(2023, 9, 30), []models.Member{a, b}, v)
	require.NoError(t, err)
	assertAmount(t, "92.592", dist.Dividend.Pool)
	for _, p := range dist.Payments {
		assertAmount(t, "46.3", p.Amount)
	}
	assertAmount(t, "92.6", dist.Allocated())
	assertAmount(t, "0.008", dist.Drift())
}

func TestDistributeInvalidInput(t *testing.T) {
	members := []models.Member{activeMember(1)}
	v := fixedValuer{org: dec("1")}

	_, err := Distribute(dec("-1"), dec("10"), date(2023, 3, 31), members, v)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Distribute(dec("1"), dec("101"), date(2023, 3, 31), members, v)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Distribute(dec("1"), dec("10"), time.Time{}, members, v)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
