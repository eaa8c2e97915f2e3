package service

import (
	"time"

	"SessionScope/internal/domain/models"
)

// BoundaryResolver turns (session definition, calendar date) into the UTC
// window for that date's occurrence. It fails with a DST conflict error when
// the local open or close falls into a repeated or skipped hour; it never
// guesses an offset.
type BoundaryResolver interface {
	Resolve(def models.SessionDefinition, date time.Time) (models.ResolvedSessionWindow, error)
}

// WindowExtractor slices a series down to rows inside each day's resolved
// session window over a date range. Dates whose resolution fails are skipped,
// not fatal. ExtractByDay keeps per-window grouping so a midnight-crossing
// session stays attached to its anchor date instead of being split across
// two UTC calendar dates.
type WindowExtractor interface {
	Extract(series models.Series, def models.SessionDefinition, startDate, endDate time.Time) (models.Series, error)
	ExtractByDay(series models.Series, def models.SessionDefinition, startDate, endDate time.Time) ([]models.SessionDaySlice, error)
}

// SessionAggregator collapses one day's windowed rows into a daily record.
// The boolean is false when the day holds no rows; callers drop such days.
type SessionAggregator interface {
	Aggregate(dayRows models.Series) (models.DailySessionRecord, bool)
}
