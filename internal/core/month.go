package core

import (
	"fmt"
	"strconv"
	"time"
)

// Month identifies a calendar month as "YYYY-MM". The format sorts
// chronologically, so ordinary string comparison is chronological
// comparison. All month math in the engine goes through this type.
type Month string

// MonthOf returns the Month containing t.
func MonthOf(t time.Time) Month {
	return Month(t.Format("2006-01"))
}

// NewMonth builds a Month from a year and a 1-based month number.
func NewMonth(year, month int) Month {
	return Month(fmt.Sprintf("%04d-%02d", year, month))
}

// ParseMonth validates s and returns it as a Month.
func ParseMonth(s string) (Month, error) {
	m := Month(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return m, nil
}

// Valid reports whether the month is a well-formed "YYYY-MM" string.
// The engine's comparisons silently misbehave on malformed input, so
// anything that crosses a process boundary gets validated first.
func (m Month) Valid() bool {
	if len(m) != 7 || m[4] != '-' {
		return false
	}
	for i, r := range m {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	mo := int(m[5]-'0')*10 + int(m[6]-'0')
	return mo >= 1 && mo <= 12
}

// Year returns the calendar year.
func (m Month) Year() int {
	y, _ := strconv.Atoi(string(m[:4]))
	return y
}

// MonthOfYear returns the 1-based month number.
func (m Month) MonthOfYear() int {
	n, _ := strconv.Atoi(string(m[5:]))
	return n
}

// AddMonths returns the month n months later (earlier for negative n),
// rolling over year boundaries: "2024-12".AddMonths(1) == "2025-01".
func (m Month) AddMonths(n int) Month {
	total := m.Year()*12 + m.MonthOfYear() - 1 + n
	return NewMonth(total/12, total%12+1)
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	return m.AddMonths(1)
}

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool {
	return m < other
}

// After reports whether m is strictly later than other.
func (m Month) After(other Month) bool {
	return m > other
}

// Time returns midnight UTC on the first day of the month.
func (m Month) Time() time.Time {
	return time.Date(m.Year(), time.Month(m.MonthOfYear()), 1, 0, 0, 0, 0, time.UTC)
}

// BillingMonthFor returns the month a card purchase made on the given
// date is billed to. Purchases always bill to the following calendar
// month; closing/due days on the card are informational only.
func BillingMonthFor(purchaseDate time.Time) Month {
	return MonthOf(purchaseDate).Next()
}
