package sessions

import (
	"errors"
	"fmt"
	"time"

	"SessionScope/internal/domain/models"
	"SessionScope/internal/domain/service"
)

// DST conflict sentinels. A date whose local open or close falls into a
// repeated hour (clocks turned back) or a skipped hour (clocks turned
// forward) resolves to neither window boundary; picking an offset silently
// could credit an hour of trading to the wrong session.
var (
	ErrDstAmbiguous   = errors.New("ambiguous local time (repeated hour)")
	ErrDstNonexistent = errors.New("nonexistent local time (skipped hour)")
)

// IsDstConflict reports whether err is one of the per-date DST sentinels, as
// opposed to a configuration failure that should abort the caller.
func IsDstConflict(err error) bool {
	return errors.Is(err, ErrDstAmbiguous) || errors.Is(err, ErrDstNonexistent)
}

// offsetProbe is how far around a wall time we sample the zone offset when
// hunting for a transition. Offsets reach ±14h and IANA zones never put two
// transitions inside one 52h window, so 26h on each side sees exactly the
// offsets in effect before and after any relevant transition.
const offsetProbe = 26 * time.Hour

// Resolver maps (session definition, calendar date) pairs to UTC windows.
// Stateless; safe for concurrent use.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

var _ service.BoundaryResolver = (*Resolver)(nil)

// Resolve computes the UTC window for one calendar date's occurrence of the
// session. The date's zone is ignored; only its year/month/day matter. For a
// midnight-crossing session the close combines with the following date, so
// StartUTC < EndUTC holds either way.
func (r *Resolver) Resolve(def models.SessionDefinition, date time.Time) (models.ResolvedSessionWindow, error) {
	loc, err := def.Location()
	if err != nil {
		return models.ResolvedSessionWindow{}, err
	}

	y, m, d := date.Date()
	anchor := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	start, err := localizeStrict(y, m, d, def.LocalStart, loc)
	if err != nil {
		return models.ResolvedSessionWindow{}, fmt.Errorf("session '%s' open: %w", def.Name, err)
	}

	endDay := anchor
	if def.CrossesMidnight() {
		endDay = anchor.AddDate(0, 0, 1)
	}
	ey, em, ed := endDay.Date()
	end, err := localizeStrict(ey, em, ed, def.LocalEnd, loc)
	if err != nil {
		return models.ResolvedSessionWindow{}, fmt.Errorf("session '%s' close: %w", def.Name, err)
	}

	// A transition between the two boundaries can still collapse a short
	// window even when both ends resolve cleanly.
	if !start.Before(end) {
		return models.ResolvedSessionWindow{}, fmt.Errorf(
			"session '%s' on %s: window collapsed (open %s, close %s)",
			def.Name, anchor.Format("2006-01-02"), start.UTC(), end.UTC())
	}

	return models.ResolvedSessionWindow{
		SessionName: def.Name,
		AnchorDate:  anchor,
		StartUTC:    start.UTC(),
		EndUTC:      end.UTC(),
	}, nil
}

// localizeStrict interprets a wall clock on a calendar date in loc, requiring
// exactly one instant to map back to it. time.Date silently normalizes
// skipped times and arbitrarily picks a side of repeated ones, so the lookup
// is done from first principles: reinterpret the wall clock as UTC, derive
// the candidate instants implied by the zone offsets in effect before and
// after any nearby transition, and keep the candidates whose round trip
// reproduces the requested wall clock.
func localizeStrict(y int, m time.Month, d int, c models.ClockTime, loc *time.Location) (time.Time, error) {
	wallUTC := time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, time.UTC)

	offBefore := zoneOffset(wallUTC.Add(-offsetProbe), loc)
	offAfter := zoneOffset(wallUTC.Add(offsetProbe), loc)

	cand1 := wallUTC.Add(-time.Duration(offBefore) * time.Second)
	cand2 := wallUTC.Add(-time.Duration(offAfter) * time.Second)

	ok1 := sameWall(cand1.In(loc), y, m, d, c)
	ok2 := sameWall(cand2.In(loc), y, m, d, c)

	switch {
	case ok1 && ok2 && !cand1.Equal(cand2):
		return time.Time{}, fmt.Errorf("%04d-%02d-%02d %s in %s: %w", y, m, d, c, loc, ErrDstAmbiguous)
	case ok1:
		return cand1, nil
	case ok2:
		return cand2, nil
	default:
		return time.Time{}, fmt.Errorf("%04d-%02d-%02d %s in %s: %w", y, m, d, c, loc, ErrDstNonexistent)
	}
}

func zoneOffset(t time.Time, loc *time.Location) int {
	_, off := t.In(loc).Zone()
	return off
}

func sameWall(t time.Time, y int, m time.Month, d int, c models.ClockTime) bool {
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d &&
		t.Hour() == c.Hour && t.Minute() == c.Minute && t.Second() == c.Second
}
