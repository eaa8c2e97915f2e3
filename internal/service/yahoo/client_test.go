package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "SessionScope/internal/domain/repository"
)

const chartBody = `{
  "chart": {
    "result": [{
      "timestamp": [1700000120, 1700000060, 1700000000],
      "indicators": {
        "quote": [{
          "open":   [102.0, null, 100.0],
          "high":   [103.0, null, 101.0],
          "low":    [101.0, null, 99.0],
          "close":  [102.5, null, 100.5],
          "volume": [7.0,   null, 5.0]
        }]
      }
    }],
    "error": null
  }
}`

func TestParseChartSkipsNullBarsAndSorts(t *testing.T) {
	series, err := parseChart([]byte(chartBody), "SAP.DE")
	require.NoError(t, err)
	require.Len(t, series, 2, "the null bar in the middle is dropped")

	assert.True(t, series[0].Bucket.Before(series[1].Bucket))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), series[0].Bucket)
	assert.Equal(t, 100.0, series[0].Open)
	assert.Equal(t, 102.5, series[1].Close)
	assert.Equal(t, "SAP.DE", series[1].Symbol)
	assert.Equal(t, time.UTC, series[0].Bucket.Location())
}

func TestParseChartEmptyResultIsNotAnError(t *testing.T) {
	series, err := parseChart([]byte(`{"chart":{"result":[],"error":null}}`), "SAP.DE")
	require.NoError(t, err)
	assert.Empty(t, series)

	series, err = parseChart([]byte(`{"chart":{"result":[{"timestamp":[],"indicators":{"quote":[]}}],"error":null}}`), "SAP.DE")
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestParseChartSurfacesAPIError(t *testing.T) {
	body := `{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`
	_, err := parseChart([]byte(body), "BOGUS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delisted")
}

func TestChartIntervalMapping(t *testing.T) {
	for iv, want := range map[domrepo.Interval]string{
		domrepo.I1m: "1m", domrepo.I5m: "5m", domrepo.I15m: "15m",
		domrepo.I30m: "30m", domrepo.I60m: "60m", domrepo.I1h: "60m", domrepo.I1d: "1d",
	} {
		got, err := chartInterval(iv)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := chartInterval(domrepo.Interval("2w"))
	assert.Error(t, err)
}

func TestFetchAgainstStubServer(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second, 0)
	start := time.Unix(1700000000, 0).UTC()
	end := time.Unix(1700000120, 0).UTC()
	series, err := c.Fetch(context.Background(), "SAP.DE", start, end, domrepo.I1m)
	require.NoError(t, err)
	assert.Len(t, series, 2)

	assert.Equal(t, "/v8/finance/chart/SAP.DE", gotPath)
	assert.Equal(t, []string{"1m"}, gotQuery["interval"])
	assert.Equal(t, []string{"1700000000"}, gotQuery["period1"])
	assert.Equal(t, []string{"1700000120"}, gotQuery["period2"])
}

func TestFetchRetriesOnServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"chart": map[string]interface{}{"result": []interface{}{}, "error": nil},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second, 2)
	_, err := c.Fetch(context.Background(), "SAP.DE", time.Unix(0, 0), time.Unix(60, 0), domrepo.I1d)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	c = New(srv.URL, "", 5*time.Second, 0)
	_, err = c.Fetch(context.Background(), "SAP.DE", time.Unix(0, 0), time.Unix(60, 0), domrepo.I1d)
	require.Error(t, err, "no retries left")
	assert.Equal(t, 1, calls)
}
