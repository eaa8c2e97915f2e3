package util

import "time"

// DateLayout is the wire format for calendar dates (session anchor dates,
// report dates, range bounds).
const DateLayout = "2006-01-02"

// ParseDate parses a yyyy-mm-dd calendar date as UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DayFloor truncates an instant to its UTC calendar date (midnight).
func DayFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// AlignFromTo truncates both ends of a range to the interval's bar
// boundary, so a fetch starts on a complete bar.
func AlignFromTo(from, to time.Time, interval string) (time.Time, time.Time) {
	if interval == "1d" {
		return DayFloor(from), DayFloor(to)
	}
	step := time.Minute
	switch interval {
	case "5m":
		step = 5 * time.Minute
	case "15m":
		step = 15 * time.Minute
	case "30m":
		step = 30 * time.Minute
	case "60m", "1h":
		step = time.Hour
	}
	return from.Truncate(step), to.Truncate(step)
}
