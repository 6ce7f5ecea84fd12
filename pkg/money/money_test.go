package money

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfEven(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"424.6575", "424.66"},
		{"0.125", "0.12"},
		{"0.135", "0.14"},
		{"-0.125", "-0.12"},
		{"3000", "3000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 31, DaysBetween(start, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysBetween(start, start))
	assert.Equal(t, -1, DaysBetween(start, time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)))

	// time-of-day is ignored
	assert.Equal(t, 1, DaysBetween(time.Date(2023, 1, 1, 23, 59, 0, 0, time.UTC), time.Date(2023, 1, 2, 0, 1, 0, 0, time.UTC)))

	// calendar fields survive a non-UTC zone
	colombo := time.FixedZone("IST", 5*3600+1800)
	assert.Equal(t, 1, DaysBetween(start, time.Date(2023, 1, 2, 1, 0, 0, 0, colombo)))

	// spans longer than time.Duration can hold
	assert.Equal(t, 137696, DaysBetween(start, time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -137696, DaysBetween(time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC), start))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2023-02-01")
	require.NoError(t, err)
	assert.Equal(t, "2023-02-01", FormatDate(d))

	_, err = ParseDate("2023-02-30")
	assert.Error(t, err)

	_, err = ParseDate("yesterday")
	assert.Error(t, err)
}

func TestValidDate(t *testing.T) {
	assert.False(t, ValidDate(time.Time{}))
	assert.True(t, ValidDate(time.Now()))
}

func TestSum(t *testing.T) {
	got := Sum(decimal.NewFromInt(1), decimal.RequireFromString("2.50"), decimal.NewFromInt(-1))
	assert.True(t, got.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, Sum().IsZero())
}
