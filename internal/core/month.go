package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AllMonths is the selector sentinel meaning "every record".
const AllMonths MonthSelector = "All"

// ISOLayout matches the millisecond ISO-8601 form used for range bounds.
// Record timestamps are compared against bounds as plain strings.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// MonthSelector is either AllMonths or an English month name.
type MonthSelector string

// MonthNames lists the selectable month names in calendar order.
var MonthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// ParseMonthSelector accepts "All" or a month name (case-insensitive).
func ParseMonthSelector(s string) (MonthSelector, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(AllMonths)) {
		return AllMonths, nil
	}
	for _, name := range MonthNames {
		if strings.EqualFold(s, name) {
			return MonthSelector(name), nil
		}
	}
	return AllMonths, ErrUnknownMonth
}

// IsAll reports whether the selector covers every record.
func (m MonthSelector) IsAll() bool {
	return m == AllMonths
}

// Month returns the calendar month named by the selector. ok is false for
// AllMonths or an unknown name.
func (m MonthSelector) Month() (month time.Month, ok bool) {
	for i, name := range MonthNames {
		if string(m) == name {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

func (m MonthSelector) String() string {
	return string(m)
}

// Period is a half-open [Start, End) range of ISO timestamp strings.
type Period struct {
	Start string
	End   string
}

// Contains reports whether ts falls inside the period under string ordering.
func (p Period) Contains(ts string) bool {
	return ts >= p.Start && ts < p.End
}

// MonthPeriod returns [UTC midnight of day 1 of m, UTC midnight of day 1 of m+1).
func MonthPeriod(year int, m time.Month) Period {
	start := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, m+1, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start.Format(ISOLayout),
		End:   end.Format(ISOLayout),
	}
}

// PreviousMonth returns the month before m. January wraps to December of
// the same year; callers pass the same year to MonthPeriod.
func PreviousMonth(m time.Month) time.Month {
	if m == time.January {
		return time.December
	}
	return m - 1
}

var monthLayouts = []string{time.RFC3339Nano, "2006-01-02", "2006-01"}

// NormalizeMonth parses an RFC 3339 timestamp, a date or a year-month and
// formats it with ISOLayout in UTC, so stored months compare lexically.
func NormalizeMonth(s string) (string, error) {
	if s == "" {
		return "", errors.New("month is required")
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(ISOLayout), nil
		}
	}
	return "", fmt.Errorf("invalid month %q", s)
}
