package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	icache "SessionScope/internal/service/cache"
	"SessionScope/internal/services/sessions"
	"SessionScope/internal/usecase"
	pkgcache "SessionScope/pkg/cache"
	"SessionScope/pkg/config"
	applogger "SessionScope/pkg/logger"
)

type stubSource struct {
	rows  models.Series
	calls int
}

func (s *stubSource) Fetch(context.Context, string, time.Time, time.Time, domrepo.Interval) (models.Series, error) {
	s.calls++
	return s.rows, nil
}

func (s *stubSource) Name() string { return "stub" }

type stubReportStore struct {
	rows     []models.DailySessionRecord
	inserted [][]models.DailySessionRecord
}

func (s *stubReportStore) InsertReports(_ context.Context, recs []models.DailySessionRecord) error {
	s.inserted = append(s.inserted, recs)
	return nil
}

func (s *stubReportStore) SelectReports(context.Context, string, string, time.Time, time.Time) ([]models.DailySessionRecord, error) {
	return s.rows, nil
}

type stubQueue struct {
	types    []string
	payloads []interface{}
}

func (q *stubQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordSkippedDay(string, string) {}
func (nopMetrics) RecordCache(string, bool)        {}
func (nopMetrics) RecordFetch(string, string)      {}
func (nopMetrics) RecordReportBuilt(string, int)   {}

// berlinDay is 2023-03-27 (CEST, UTC+2) as hourly candles across the whole
// UTC day. The berlin session window covers 07:00Z through 15:30Z.
func berlinDay() models.Series {
	day := time.Date(2023, 3, 27, 0, 0, 0, 0, time.UTC)
	out := make(models.Series, 0, 24)
	for i := 0; i < 24; i++ {
		out = append(out, models.Candle{
			Bucket: day.Add(time.Duration(i) * time.Hour),
			Symbol: "SAP.DE",
			Open:   100, High: 102, Low: 98, Close: 101, Volume: 3,
		})
	}
	return out
}

func newTestAPI(t *testing.T) (*stubSource, *stubReportStore, *stubQueue, *echo.Echo) {
	t.Helper()

	reg, err := sessions.NewRegistryFromConfig([]config.SessionEntry{
		{Name: "berlin", Timezone: "Europe/Berlin", Open: "09:00", Close: "17:30"},
		{Name: "berlin_early", Timezone: "Europe/Berlin", Open: "02:30", Close: "06:00"},
	})
	require.NoError(t, err)

	resolver := sessions.NewResolver()
	extractor := sessions.NewExtractor(resolver)

	mc := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	src := &stubSource{rows: berlinDay()}
	sp := usecase.NewSeriesProvider(src, nil, mc, nopMetrics{}, time.Hour, time.Minute)

	store := &stubReportStore{}
	builder := usecase.NewReportBuilder(sp, reg, extractor, sessions.NewAggregator(), store, nil, nopMetrics{})

	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	h := NewReportsHandler(l, builder, sp, extractor, reg, resolver, store)
	h.SetCache(icache.NewTTLCache(64))
	q := &stubQueue{}
	h.SetQueue(q)

	e := echo.New()
	h.RegisterRoutes(e)
	return src, store, q, e
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, e *echo.Echo, method, target, body string) envelope {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "status travels in the envelope")

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSessionsEndpointListsDefinitions(t *testing.T) {
	_, _, _, e := newTestAPI(t)

	env := doRequest(t, e, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, env.Status)

	var infos []models.SessionInfoResponse
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "berlin", infos[0].Name)
	assert.Equal(t, "Europe/Berlin", infos[0].Timezone)
	assert.Equal(t, "09:00", infos[0].Open)
	assert.Equal(t, "17:30", infos[0].Close)
	assert.False(t, infos[0].CrossesMidnight)
}

func TestWindowEndpointResolvesAcrossDstShift(t *testing.T) {
	_, _, _, e := newTestAPI(t)

	env := doRequest(t, e, http.MethodGet, "/api/sessions/window?session=berlin&date=2023-03-25", "")
	require.Equal(t, http.StatusOK, env.Status)
	var w models.ResolvedWindowResponse
	require.NoError(t, json.Unmarshal(env.Data, &w))
	assert.Equal(t, "2023-03-25T08:00:00Z", w.StartUTC)
	assert.Equal(t, "2023-03-25T16:30:00Z", w.EndUTC)
	assert.Equal(t, "2023-03-25", w.AnchorDate)

	env = doRequest(t, e, http.MethodGet, "/api/sessions/window?session=berlin&date=2023-03-27", "")
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &w))
	assert.Equal(t, "2023-03-27T07:00:00Z", w.StartUTC)
	assert.Equal(t, "2023-03-27T15:30:00Z", w.EndUTC)
}

func TestWindowEndpointErrorStatuses(t *testing.T) {
	_, _, _, e := newTestAPI(t)

	// 02:30 does not exist on the spring transition date.
	env := doRequest(t, e, http.MethodGet, "/api/sessions/window?session=berlin_early&date=2023-03-26", "")
	assert.Equal(t, http.StatusUnprocessableEntity, env.Status)
	assert.Contains(t, string(env.Data), "ERR_DST_CONFLICT")

	env = doRequest(t, e, http.MethodGet, "/api/sessions/window?session=nope&date=2023-03-26", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = doRequest(t, e, http.MethodGet, "/api/sessions/window?session=berlin", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestDailyEndpointBuildsRecords(t *testing.T) {
	src, _, _, e := newTestAPI(t)

	const target = "/api/reports/daily?symbol=SAP.DE&session=berlin&from=2023-03-27&to=2023-03-27&interval=1m"
	env := doRequest(t, e, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, env.Status)

	var recs []models.DailySessionRecordResponse
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "2023-03-27", recs[0].Date)
	assert.Equal(t, "berlin", recs[0].Session)
	assert.Equal(t, "bullish", recs[0].Trend)
	assert.Equal(t, 9, recs[0].BullishCount, "07:00Z through 15:00Z hourly rows")
	assert.Equal(t, 27.0, recs[0].TotalVolume)
	assert.Equal(t, 1, src.calls)

	// Second read is served from cache, forcing refetches upstream.
	_ = doRequest(t, e, http.MethodGet, target, "")
	assert.Equal(t, 1, src.calls)

	_ = doRequest(t, e, http.MethodGet, target+"&force=true", "")
	assert.Equal(t, 2, src.calls)
}

func TestDailyEndpointUnknownSession(t *testing.T) {
	_, _, _, e := newTestAPI(t)

	env := doRequest(t, e, http.MethodGet, "/api/reports/daily?symbol=SAP.DE&session=nope&from=2023-03-27&to=2023-03-27", "")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestSessionCandlesEndpoint(t *testing.T) {
	_, _, _, e := newTestAPI(t)

	env := doRequest(t, e, http.MethodGet, "/api/sessions/candles?symbol=SAP.DE&session=berlin&from=2023-03-27&to=2023-03-27&interval=1m", "")
	require.Equal(t, http.StatusOK, env.Status)

	var rows []models.CandleResponse
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 9)
	assert.Equal(t, "2023-03-27T07:00:00Z", rows[0].Time)
	assert.Equal(t, "2023-03-27T15:00:00Z", rows[len(rows)-1].Time)
}

func TestStoredEndpointReadsStore(t *testing.T) {
	_, store, _, e := newTestAPI(t)
	store.rows = []models.DailySessionRecord{{
		Date:        time.Date(2023, 3, 27, 0, 0, 0, 0, time.UTC),
		SessionName: "berlin",
		Symbol:      "SAP.DE",
		Trend:       models.TrendBearish,
		Open:        101, Close: 100, High: 102, Low: 99,
		BearishCount: 4, TotalVolume: 12,
	}}

	env := doRequest(t, e, http.MethodGet, "/api/reports/stored?symbol=SAP.DE&from=2023-03-01&to=2023-03-31", "")
	require.Equal(t, http.StatusOK, env.Status)

	var recs []models.DailySessionRecordResponse
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "bearish", recs[0].Trend)
	assert.Equal(t, 4, recs[0].BearishCount)

	env = doRequest(t, e, http.MethodGet, "/api/reports/stored?symbol=SAP.DE&session=nope&from=2023-03-01&to=2023-03-31", "")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestEnqueueJobEndpoint(t *testing.T) {
	_, _, q, e := newTestAPI(t)

	body := `{"symbol":"SAP.DE","sessions":["berlin"],"from":"2023-03-01","to":"2023-03-05","interval":"1d","publish":true}`
	env := doRequest(t, e, http.MethodPost, "/api/reports/jobs", body)
	require.Equal(t, http.StatusAccepted, env.Status)

	require.Len(t, q.types, 1)
	assert.Equal(t, usecase.ReportJobType, q.types[0])
	payload, ok := q.payloads[0].(usecase.ReportJobPayload)
	require.True(t, ok)
	assert.Equal(t, "SAP.DE", payload.Symbol)
	assert.Equal(t, []string{"berlin"}, payload.Sessions)
	assert.True(t, payload.Publish)

	env = doRequest(t, e, http.MethodPost, "/api/reports/jobs", `{"symbol":"SAP.DE","sessions":["nope"],"from":"2023-03-01","to":"2023-03-05"}`)
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = doRequest(t, e, http.MethodPost, "/api/reports/jobs", `{"symbol":"SAP.DE","from":"2023-03-01","to":"2023-03-05"}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}
