package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	phttp "SessionScope/pkg/http"
	applogger "SessionScope/pkg/logger"
)

// Client implements MarketSource over the Yahoo Finance chart API.
type Client struct {
	base       string
	userAgent  string
	maxRetries int
	http       *phttp.Client
	l          *applogger.Logger
}

// New creates a Yahoo chart API client. maxRetries counts extra attempts
// after the first; retries apply to transport errors, 429 and 5xx only.
func New(baseURL, userAgent string, timeout time.Duration, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; sessionscope/1.0)"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		base:       strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		maxRetries: maxRetries,
		http:       phttp.NewClient(phttp.WithTimeout(timeout)),
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

var _ domrepo.MarketSource = (*Client)(nil)

func (c *Client) Name() string { return "yahoo" }

// chartResponse mirrors the chart API envelope. Quote arrays hold pointers
// because the API emits null entries for halted or holiday buckets.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns the symbol's candles between start and end, sorted ascending
// with buckets in UTC. A range with no data yields an empty series, not an
// error.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time, interval domrepo.Interval) (models.Series, error) {
	if symbol == "" {
		return nil, fmt.Errorf("yahoo: symbol is required")
	}
	iv, err := chartInterval(interval)
	if err != nil {
		return nil, err
	}

	opts := &phttp.RequestOptions{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/v8/finance/chart/%s", c.base, url.PathEscape(symbol)),
		Headers: map[string]string{"User-Agent": c.userAgent},
		Query: url.Values{
			"period1":        {strconv.FormatInt(start.Unix(), 10)},
			"period2":        {strconv.FormatInt(end.Unix(), 10)},
			"interval":       {iv},
			"includePrePost": {"false"},
		},
	}

	var body []byte
	for attempt := 0; ; attempt++ {
		var retryable bool
		body, retryable, err = c.send(ctx, opts)
		if err == nil {
			break
		}
		if !retryable || attempt >= c.maxRetries || ctx.Err() != nil {
			return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
		}
		if c.l != nil {
			c.l.Warn("yahoo fetch retry",
				applogger.String("symbol", symbol),
				applogger.Int("attempt", attempt+1),
				applogger.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond << uint(attempt)):
		}
	}

	return parseChart(body, symbol)
}

func (c *Client) send(ctx context.Context, opts *phttp.RequestOptions) (body []byte, retryable bool, err error) {
	resp, err := c.http.SendRequest(ctx, opts)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, false, nil
	}
	retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return nil, retryable, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
}

func parseChart(body []byte, symbol string) (models.Series, error) {
	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s (%s)", cr.Chart.Error.Description, cr.Chart.Error.Code)
	}
	if len(cr.Chart.Result) == 0 {
		return models.Series{}, nil
	}
	res := cr.Chart.Result[0]
	if len(res.Timestamp) == 0 || len(res.Indicators.Quote) == 0 {
		return models.Series{}, nil
	}

	q := res.Indicators.Quote[0]
	out := make(models.Series, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, h, l, cl := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil && h == nil && l == nil && cl == nil {
			// null bar (holiday, halt)
			continue
		}
		out = append(out, models.Candle{
			Bucket: time.Unix(ts, 0).UTC(),
			Symbol: symbol,
			Open:   deref(o),
			High:   deref(h),
			Low:    deref(l),
			Close:  deref(cl),
			Volume: deref(at(q.Volume, i)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

func chartInterval(iv domrepo.Interval) (string, error) {
	switch iv {
	case domrepo.I1m, domrepo.I5m, domrepo.I15m, domrepo.I30m, domrepo.I1d:
		return string(iv), nil
	case domrepo.I60m, domrepo.I1h:
		return "60m", nil
	default:
		return "", fmt.Errorf("yahoo: unsupported interval '%s'", iv)
	}
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func deref(x *float64) float64 {
	if x == nil {
		return 0
	}
	return *x
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
