package sessions

import (
	"errors"
	"sort"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	"SessionScope/internal/domain/service"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/util"
)

// Extractor filters candle series down to per-day session windows. The series
// is normalized to UTC and sorted once, then each day's window is located with
// two binary searches instead of rescanning the whole series per date.
type Extractor struct {
	resolver service.BoundaryResolver
	l        *applogger.Logger
	m        domrepo.Metrics
}

func NewExtractor(resolver service.BoundaryResolver) *Extractor {
	return &Extractor{resolver: resolver}
}

// SetLogger injects a structured logger.
func (e *Extractor) SetLogger(l *applogger.Logger) { e.l = l }

// SetMetrics injects skip counters.
func (e *Extractor) SetMetrics(m domrepo.Metrics) { e.m = m }

var _ service.WindowExtractor = (*Extractor)(nil)

// Extract returns the rows of series that fall inside the session's window for
// some date in [startDate, endDate], sorted ascending by timestamp. Dates the
// resolver rejects with a DST conflict contribute no rows; any other resolver
// error aborts, since it means the definition itself is broken.
func (e *Extractor) Extract(series models.Series, def models.SessionDefinition, startDate, endDate time.Time) (models.Series, error) {
	days, err := e.ExtractByDay(series, def, startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make(models.Series, 0, len(series))
	for _, d := range days {
		out = append(out, d.Rows...)
	}
	return out, nil
}

// ExtractByDay is Extract with per-window grouping preserved. Only days whose
// window holds at least one row are returned, in ascending anchor-date order.
func (e *Extractor) ExtractByDay(series models.Series, def models.SessionDefinition, startDate, endDate time.Time) ([]models.SessionDaySlice, error) {
	norm := normalizeUTC(series)

	out := make([]models.SessionDaySlice, 0, 8)
	first := util.DayFloor(startDate)
	last := util.DayFloor(endDate)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		w, err := e.resolver.Resolve(def, d)
		if err != nil {
			if !IsDstConflict(err) {
				return nil, err
			}
			e.skipDay(def.Name, d, err)
			continue
		}
		lo := sort.Search(len(norm), func(i int) bool { return !norm[i].Bucket.Before(w.StartUTC) })
		hi := sort.Search(len(norm), func(i int) bool { return norm[i].Bucket.After(w.EndUTC) })
		if lo < hi {
			out = append(out, models.SessionDaySlice{Window: w, Rows: norm[lo:hi]})
		}
	}
	return out, nil
}

func (e *Extractor) skipDay(session string, date time.Time, err error) {
	if e.l != nil {
		e.l.Warn("session day skipped",
			applogger.String("session", session),
			applogger.Date("date", date),
			applogger.String("reason", skipReason(err)),
			applogger.Error(err),
		)
	}
	if e.m != nil {
		e.m.RecordSkippedDay(session, skipReason(err))
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrDstAmbiguous):
		return "ambiguous"
	case errors.Is(err, ErrDstNonexistent):
		return "nonexistent"
	default:
		return "error"
	}
}

// normalizeUTC copies the series with every bucket converted to UTC and sorts
// it ascending. The copy keeps callers' slices untouched; window slices later
// share this one backing array.
func normalizeUTC(series models.Series) models.Series {
	norm := make(models.Series, len(series))
	copy(norm, series)
	for i := range norm {
		norm[i].Bucket = norm[i].Bucket.UTC()
	}
	sort.SliceStable(norm, func(i, j int) bool { return norm[i].Bucket.Before(norm[j].Bucket) })
	return norm
}
