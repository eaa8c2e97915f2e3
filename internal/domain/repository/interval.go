package repository

// Interval represents candle resolution buckets, matching the granularities
// the chart API serves.
type Interval string

const (
	I1m  Interval = "1m"
	I5m  Interval = "5m"
	I15m Interval = "15m"
	I30m Interval = "30m"
	I60m Interval = "60m"
	I1h  Interval = "1h"
	I1d  Interval = "1d"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case I1m, I5m, I15m, I30m, I60m, I1h, I1d:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval for fetches and reports.
func DefaultInterval() Interval { return I1d }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}
