package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionScope/internal/domain/models"
)

type recordingMetrics struct {
	skips []string
}

func (m *recordingMetrics) RecordError(string)                {}
func (m *recordingMetrics) RecordLatency(string, float64)     {}
func (m *recordingMetrics) RecordCache(string, bool)          {}
func (m *recordingMetrics) RecordFetch(string, string)        {}
func (m *recordingMetrics) RecordReportBuilt(string, int)     {}
func (m *recordingMetrics) RecordSkippedDay(_, reason string) { m.skips = append(m.skips, reason) }

func hourly(symbol string, from time.Time, hours int) models.Series {
	out := make(models.Series, 0, hours)
	for i := 0; i < hours; i++ {
		ts := from.Add(time.Duration(i) * time.Hour)
		out = append(out, models.Candle{
			Bucket: ts, Symbol: symbol,
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 10,
		})
	}
	return out
}

func TestExtractBerlinWindowBothSidesOfTransition(t *testing.T) {
	def := mustDef(t, "frankfurt_xetra", "Europe/Berlin",
		models.ClockTime{Hour: 9}, models.ClockTime{Hour: 17, Minute: 30})
	e := NewExtractor(NewResolver())

	// Hourly candles covering 2023-03-25 through 2023-03-27 in full.
	series := hourly("SAP.DE", day(2023, 3, 25), 3*24)

	got, err := e.Extract(series, def, day(2023, 3, 25), day(2023, 3, 27))
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// Winter day window is [08:00, 16:30] UTC: hourly rows 08..16 inclusive.
	// Summer day window is [07:00, 15:30] UTC: hourly rows 07..15 inclusive.
	// The 26th contributes rows too; the definition resolves fine there since
	// its boundaries are far from the 02:00 transition.
	var day25, day27 int
	for _, c := range got {
		switch c.Bucket.Day() {
		case 25:
			day25++
			assert.False(t, c.Bucket.Before(time.Date(2023, 3, 25, 8, 0, 0, 0, time.UTC)))
			assert.False(t, c.Bucket.After(time.Date(2023, 3, 25, 16, 30, 0, 0, time.UTC)))
		case 27:
			day27++
			assert.False(t, c.Bucket.Before(time.Date(2023, 3, 27, 7, 0, 0, 0, time.UTC)))
			assert.False(t, c.Bucket.After(time.Date(2023, 3, 27, 15, 30, 0, 0, time.UTC)))
		}
	}
	assert.Equal(t, 9, day25)
	assert.Equal(t, 9, day27)
}

func TestExtractClosedIntervalKeepsBoundaryRows(t *testing.T) {
	def := mustDef(t, "utc_box", "UTC", models.ClockTime{Hour: 8}, models.ClockTime{Hour: 16})
	e := NewExtractor(NewResolver())

	d := day(2024, 2, 1)
	series := models.Series{
		{Bucket: d.Add(7*time.Hour + 59*time.Minute), Symbol: "X"},
		{Bucket: d.Add(8 * time.Hour), Symbol: "X"},  // exact open
		{Bucket: d.Add(16 * time.Hour), Symbol: "X"}, // exact close
		{Bucket: d.Add(16*time.Hour + time.Second), Symbol: "X"},
	}

	got, err := e.Extract(series, def, d, d)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, d.Add(8*time.Hour), got[0].Bucket)
	assert.Equal(t, d.Add(16*time.Hour), got[1].Bucket)
}

func TestExtractSortsShuffledInputAndLeavesItUntouched(t *testing.T) {
	def := mustDef(t, "utc_box", "UTC", models.ClockTime{}, models.ClockTime{Hour: 23, Minute: 59, Second: 59})
	e := NewExtractor(NewResolver())

	d := day(2024, 2, 1)
	series := models.Series{
		{Bucket: d.Add(3 * time.Hour), Symbol: "X", Close: 3},
		{Bucket: d.Add(1 * time.Hour), Symbol: "X", Close: 1},
		{Bucket: d.Add(2 * time.Hour), Symbol: "X", Close: 2},
	}

	got, err := e.Extract(series, def, d, d)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Bucket.Before(got[i].Bucket))
	}
	// The caller's slice keeps its original order.
	assert.Equal(t, float64(3), series[0].Close)
	assert.Equal(t, float64(1), series[1].Close)
}

func TestExtractFullDayWindowReturnsEveryRow(t *testing.T) {
	def := mustDef(t, "all_day", "UTC", models.ClockTime{}, models.ClockTime{Hour: 23, Minute: 59, Second: 59})
	e := NewExtractor(NewResolver())

	series := hourly("X", day(2024, 2, 1), 2*24)

	got, err := e.Extract(series, def, day(2024, 2, 1), day(2024, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, series, got)
}

func TestExtractSkipsUnresolvableDaysAndKeepsGoing(t *testing.T) {
	// Open sits inside the hour skipped on 2023-03-26; the 25th and 27th
	// still resolve and must survive.
	def := mustDef(t, "early", "Europe/Berlin",
		models.ClockTime{Hour: 2, Minute: 30}, models.ClockTime{Hour: 6})
	e := NewExtractor(NewResolver())
	m := &recordingMetrics{}
	e.SetMetrics(m)

	series := hourly("SAP.DE", day(2023, 3, 25), 3*24)

	got, err := e.Extract(series, def, day(2023, 3, 25), day(2023, 3, 27))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.NotEqual(t, 26, c.Bucket.Day(), "skipped day leaked rows at %s", c.Bucket)
	}
	require.Len(t, m.skips, 1)
	assert.Equal(t, "nonexistent", m.skips[0])
}

func TestExtractEmptyInputsAreNotErrors(t *testing.T) {
	def := mustDef(t, "utc_box", "UTC", models.ClockTime{Hour: 8}, models.ClockTime{Hour: 16})
	e := NewExtractor(NewResolver())

	got, err := e.Extract(nil, def, day(2024, 2, 1), day(2024, 2, 3))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Rows exist but none inside any window.
	series := models.Series{{Bucket: day(2024, 2, 1).Add(20 * time.Hour), Symbol: "X"}}
	got, err = e.Extract(series, def, day(2024, 2, 1), day(2024, 2, 3))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractPropagatesDefinitionErrors(t *testing.T) {
	def := models.SessionDefinition{Name: "broken", Timezone: "Nope/Nowhere",
		LocalStart: models.ClockTime{Hour: 9}, LocalEnd: models.ClockTime{Hour: 17}}
	e := NewExtractor(NewResolver())

	_, err := e.Extract(hourly("X", day(2024, 2, 1), 24), def, day(2024, 2, 1), day(2024, 2, 2))
	require.Error(t, err)
}

func TestExtractByDayKeepsMidnightCrossingTogether(t *testing.T) {
	def := mustDef(t, "overnight", "UTC", models.ClockTime{Hour: 22}, models.ClockTime{Hour: 6})
	e := NewExtractor(NewResolver())

	d := day(2024, 1, 15)
	series := models.Series{
		{Bucket: d.Add(23 * time.Hour), Symbol: "X"},                 // late on the 15th
		{Bucket: d.AddDate(0, 0, 1).Add(2 * time.Hour), Symbol: "X"}, // early on the 16th
	}

	days, err := e.ExtractByDay(series, def, d, d)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, d, days[0].Window.AnchorDate)
	assert.Len(t, days[0].Rows, 2)
}

func TestExtractByDayOrdersAnchorsAscending(t *testing.T) {
	def := mustDef(t, "utc_box", "UTC", models.ClockTime{Hour: 8}, models.ClockTime{Hour: 16})
	e := NewExtractor(NewResolver())

	series := hourly("X", day(2024, 2, 1), 4*24)

	days, err := e.ExtractByDay(series, def, day(2024, 2, 1), day(2024, 2, 4))
	require.NoError(t, err)
	require.Len(t, days, 4)
	for i := 1; i < len(days); i++ {
		assert.True(t, days[i-1].Window.AnchorDate.Before(days[i].Window.AnchorDate))
	}
}
