package util

import (
	"fmt"
	"time"

	"powerview/internal/domain"
)

// ParseDate parses a YYYY-MM-DD string as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t's UTC calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(domain.DateLayout)
}

// DaysInclusive returns the number of calendar days in [from, to]. It is
// zero or negative when from is after to.
func DaysInclusive(from, to time.Time) int {
	from, to = domain.TruncateDay(from), domain.TruncateDay(to)
	return int(to.Sub(from).Hours()/24) + 1
}

// AddDays shifts a calendar date by n days.
func AddDays(t time.Time, n int) time.Time {
	return domain.TruncateDay(t).AddDate(0, 0, n)
}
