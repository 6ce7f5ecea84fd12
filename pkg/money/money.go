// Package money holds the decimal and calendar helpers shared by the ledger.
package money

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date format used on the wire and in the database.
const DateLayout = "2006-01-02"

// MinorUnits is the number of decimal places kept for stored amounts.
const MinorUnits = 2

var (
	Hundred = decimal.NewFromInt(100)
	Cent    = decimal.New(1, -MinorUnits)
)

// Round rounds an amount to the minor currency unit using round-half-to-even.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MinorUnits)
}

// Date truncates t to a calendar date at midnight UTC. The calendar fields of t
// are kept as-is, so 2023-01-31 23:30 in Asia/Colombo stays 2023-01-31.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidDate reports whether t carries a usable calendar date.
func ValidDate(t time.Time) bool {
	return !t.IsZero()
}

// DaysBetween returns the number of whole calendar days from `from` to `to`.
// The result is negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	const secondsPerDay = 24 * 60 * 60
	return int((Date(to).Unix() - Date(from).Unix()) / secondsPerDay)
}

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return Date(t).Format(DateLayout)
}

// Sum adds amounts together.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
