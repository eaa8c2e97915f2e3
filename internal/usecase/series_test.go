package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	pkgcache "SessionScope/pkg/cache"
)

type fakeSource struct {
	rows  models.Series
	err   error
	calls int
}

func (f *fakeSource) Fetch(_ context.Context, _ string, _, _ time.Time, _ domrepo.Interval) (models.Series, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeSource) Name() string { return "fake" }

type fakeCandleStore struct {
	rows      models.Series
	selErr    error
	inserted  []models.Series
	intervals []domrepo.Interval
}

func (f *fakeCandleStore) Init(context.Context) error { return nil }

func (f *fakeCandleStore) InsertBatch(_ context.Context, candles []models.Candle, iv domrepo.Interval) error {
	f.inserted = append(f.inserted, candles)
	f.intervals = append(f.intervals, iv)
	return nil
}

func (f *fakeCandleStore) SelectRange(_ context.Context, _ string, _, _ time.Time, _ domrepo.Interval) (models.Series, error) {
	return f.rows, f.selErr
}

func (f *fakeCandleStore) Health(context.Context) error { return nil }
func (f *fakeCandleStore) Close() error                 { return nil }

type countingMetrics struct {
	errors  map[string]int
	fetches int
	cache   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, cache: map[string]int{}}
}

func (m *countingMetrics) RecordError(kind string)            { m.errors[kind]++ }
func (m *countingMetrics) RecordLatency(string, float64)      {}
func (m *countingMetrics) RecordSkippedDay(string, string)    {}
func (m *countingMetrics) RecordFetch(string, string)         { m.fetches++ }
func (m *countingMetrics) RecordReportBuilt(string, int)      {}
func (m *countingMetrics) RecordCache(level string, hit bool) { m.cache[level+":"+boolKey(hit)]++ }

func boolKey(b bool) string {
	if b {
		return "hit"
	}
	return "miss"
}

func histSeries(n int) models.Series {
	base := time.Date(2023, 3, 25, 8, 0, 0, 0, time.UTC)
	out := make(models.Series, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Hour),
			Symbol: "SAP.DE", Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 5,
		})
	}
	return out
}

func histRange() (time.Time, time.Time) {
	return time.Date(2023, 3, 25, 0, 0, 0, 0, time.UTC), time.Date(2023, 3, 27, 0, 0, 0, 0, time.UTC)
}

func TestGetSeriesCachesSecondRead(t *testing.T) {
	src := &fakeSource{rows: histSeries(4)}
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	sp := NewSeriesProvider(src, nil, mc, newCountingMetrics(), time.Hour, time.Minute)

	from, to := histRange()
	p := GetSeriesParams{Symbol: "SAP.DE", From: from, To: to}

	first, err := sp.GetSeries(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, first, 4)

	second, err := sp.GetSeries(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls, "second read must come from cache")
}

func TestGetSeriesHistoricalRangeServedByStore(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("source must not be called")}
	store := &fakeCandleStore{rows: histSeries(3)}
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	sp := NewSeriesProvider(src, store, mc, newCountingMetrics(), time.Hour, time.Minute)

	from, to := histRange()
	got, err := sp.GetSeries(context.Background(), GetSeriesParams{Symbol: "SAP.DE", From: from, To: to})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 0, src.calls)
}

func TestGetSeriesTodayRangeGoesToSource(t *testing.T) {
	src := &fakeSource{rows: histSeries(2)}
	store := &fakeCandleStore{rows: histSeries(9)} // would win for historical ranges
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	sp := NewSeriesProvider(src, store, mc, newCountingMetrics(), time.Hour, time.Minute)

	from := time.Now().UTC().AddDate(0, 0, -2)
	to := time.Now().UTC()
	got, err := sp.GetSeries(context.Background(), GetSeriesParams{Symbol: "SAP.DE", From: from, To: to})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, src.calls, "range reaching today must bypass the store")
	require.Len(t, store.inserted, 1, "fetched rows are written back")
}

func TestGetSeriesColdMissWritesBack(t *testing.T) {
	src := &fakeSource{rows: histSeries(5)}
	store := &fakeCandleStore{} // empty: miss
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	sp := NewSeriesProvider(src, store, mc, newCountingMetrics(), time.Hour, time.Minute)

	from, to := histRange()
	got, err := sp.GetSeries(context.Background(), GetSeriesParams{Symbol: "SAP.DE", From: from, To: to})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 1, src.calls)
	require.Len(t, store.inserted, 1)
	assert.Len(t, store.inserted[0], 5)
}

func TestGetSeriesForceBypassesCacheAndStore(t *testing.T) {
	src := &fakeSource{rows: histSeries(2)}
	store := &fakeCandleStore{rows: histSeries(9)}
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	sp := NewSeriesProvider(src, store, mc, newCountingMetrics(), time.Hour, time.Minute)

	from, to := histRange()
	p := GetSeriesParams{Symbol: "SAP.DE", From: from, To: to, Force: true}

	for i := 0; i < 2; i++ {
		got, err := sp.GetSeries(context.Background(), p)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
	assert.Equal(t, 2, src.calls)
}

func TestGetSeriesValidation(t *testing.T) {
	sp := NewSeriesProvider(&fakeSource{}, nil, nil, nil, 0, 0)
	from, to := histRange()

	_, err := sp.GetSeries(context.Background(), GetSeriesParams{From: from, To: to})
	assert.Error(t, err)

	_, err = sp.GetSeries(context.Background(), GetSeriesParams{Symbol: "X", From: to, To: from})
	assert.Error(t, err)
}

func TestGetSeriesSourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("rate limited")}
	m := newCountingMetrics()
	sp := NewSeriesProvider(src, nil, nil, m, 0, 0)

	from, to := histRange()
	_, err := sp.GetSeries(context.Background(), GetSeriesParams{Symbol: "SAP.DE", From: from, To: to})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 1, m.errors["source_fetch"])
}
