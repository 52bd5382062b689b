package schedule

import "time"

// AddDays returns d shifted by n calendar days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// AddWeeks returns d shifted by n weeks.
func AddWeeks(d time.Time, n int) time.Time {
	return AddDays(d, 7*n)
}

// AddMonths returns d shifted by n calendar months. When the day of month
// does not exist in the target month it is clamped to the month's last day,
// so Jan 31 + 1 month is Feb 28 (or 29), not Mar 3.
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	hh, mm, ss := d.Clock()
	return time.Date(first.Year(), first.Month(), day, hh, mm, ss, d.Nanosecond(), d.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date builds a calendar date at midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
