package models

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day with no date component.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses "15:04" or "15:04:05".
func ParseClock(s string) (ClockTime, error) {
	var c ClockTime
	switch n, err := fmt.Sscanf(s, "%d:%d:%d", &c.Hour, &c.Minute, &c.Second); {
	case n == 3 && err == nil:
	case n == 2:
		c.Second = 0
	default:
		return ClockTime{}, fmt.Errorf("invalid clock time '%s'", s)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return ClockTime{}, fmt.Errorf("clock time out of range '%s'", s)
	}
	return c, nil
}

// Before reports lexicographic order of two times of day.
func (c ClockTime) Before(o ClockTime) bool {
	if c.Hour != o.Hour {
		return c.Hour < o.Hour
	}
	if c.Minute != o.Minute {
		return c.Minute < o.Minute
	}
	return c.Second < o.Second
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// SessionDefinition describes one recurring exchange trading session in local
// wall-clock terms. Immutable after construction; build only through
// NewSessionDefinition so an unknown timezone fails before any resolution
// happens.
type SessionDefinition struct {
	Name        string
	Timezone    string
	LocalStart  ClockTime
	LocalEnd    ClockTime
	Description string

	loc *time.Location
}

// NewSessionDefinition validates the timezone identifier eagerly.
func NewSessionDefinition(name, timezone string, start, end ClockTime, description string) (SessionDefinition, error) {
	if name == "" {
		return SessionDefinition{}, fmt.Errorf("session name is required")
	}
	// Equal open and close would collapse the window to a single instant and
	// break the start < end guarantee resolvers give their callers.
	if start == end {
		return SessionDefinition{}, fmt.Errorf("session '%s': open and close are both %s", name, start)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return SessionDefinition{}, fmt.Errorf("session '%s': unknown timezone '%s': %w", name, timezone, err)
	}
	return SessionDefinition{
		Name:        name,
		Timezone:    timezone,
		LocalStart:  start,
		LocalEnd:    end,
		Description: description,
		loc:         loc,
	}, nil
}

// Location returns the exchange zone. Definitions built through the
// constructor carry it pre-resolved; a zero-built definition falls back to a
// fresh lookup so the error surfaces at resolve time instead of silently
// picking UTC.
func (d SessionDefinition) Location() (*time.Location, error) {
	if d.loc != nil {
		return d.loc, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session '%s': unknown timezone '%s': %w", d.Name, d.Timezone, err)
	}
	return loc, nil
}

// CrossesMidnight reports whether the session's local window wraps past
// midnight. Recomputed from the two fields every time, never cached.
func (d SessionDefinition) CrossesMidnight() bool {
	return d.LocalEnd.Before(d.LocalStart)
}

// ResolvedSessionWindow is one calendar date's occurrence of a session as
// absolute UTC instants. AnchorDate is the date the resolution was asked for;
// for midnight-crossing sessions EndUTC lands on the following calendar date
// but the window still belongs to AnchorDate.
type ResolvedSessionWindow struct {
	SessionName string
	AnchorDate  time.Time
	StartUTC    time.Time
	EndUTC      time.Time
}

// Contains reports whether t lies inside the closed interval
// [StartUTC, EndUTC].
func (w ResolvedSessionWindow) Contains(t time.Time) bool {
	return !t.Before(w.StartUTC) && !t.After(w.EndUTC)
}

// SessionDaySlice pairs a resolved window with the rows that fell inside it.
type SessionDaySlice struct {
	Window ResolvedSessionWindow
	Rows   Series
}

// Trend classifies a session day by last close vs first open.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendFlat    Trend = "flat"
)

// DailySessionRecord aggregates one calendar day's session window. Days with
// zero rows inside the window produce no record at all.
type DailySessionRecord struct {
	Date         time.Time
	SessionName  string
	Symbol       string
	Trend        Trend
	Open         float64
	Close        float64
	High         float64
	Low          float64
	BullishCount int
	BearishCount int
	NeutralCount int
	TotalVolume  float64
}
