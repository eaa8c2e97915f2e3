package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	applogger "SessionScope/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var sizeBuckets = []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000, 500_000, 1_000_000}

var (
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"route", "method", "status"},
	)
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: latencyBuckets},
		[]string{"route", "method", "status", "class"},
	)
	reqInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "Current number of in-flight HTTP requests"},
		[]string{"route", "method"},
	)
	respSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_response_size_bytes", Help: "HTTP response size in bytes", Buckets: sizeBuckets},
		[]string{"route", "method", "status", "class"},
	)

	regOnce sync.Once
)

// Metrics records request counts, latency, response size and an in-flight
// gauge per templated route, and logs slow requests and 5xx responses. The
// route label uses echo's path template, not the raw URL, to keep
// cardinality bounded.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	regOnce.Do(func() {
		prometheus.MustRegister(reqTotal, reqDuration, reqInFlight, respSize)
	})
	if slowThreshold <= 0 {
		slowThreshold = time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method

			reqInFlight.WithLabelValues(route, method).Inc()
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				switch {
				case errors.As(err, &he):
					status = he.Code
				case status == 0 || status == http.StatusOK:
					status = http.StatusInternalServerError
				}
			}

			dur := time.Since(start)
			code := strconv.Itoa(status)
			class := statusClass(status)
			size := float64(c.Response().Size)

			reqTotal.WithLabelValues(route, method, code).Inc()
			reqDuration.WithLabelValues(route, method, code, class).Observe(dur.Seconds())
			respSize.WithLabelValues(route, method, code, class).Observe(size)
			reqInFlight.WithLabelValues(route, method).Dec()

			if l != nil {
				if status >= 500 {
					l.Error("http request failed",
						applogger.String("method", method),
						applogger.String("route", route),
						applogger.String("status", code),
						applogger.Duration("duration", dur),
						applogger.Int64("bytes", c.Response().Size),
					)
				} else if dur >= slowThreshold {
					l.Warn("http request slow",
						applogger.String("method", method),
						applogger.String("route", route),
						applogger.String("status", code),
						applogger.Duration("duration", dur),
						applogger.Int64("bytes", c.Response().Size),
					)
				}
			}
			return err
		}
	}
}

// statusClass buckets a normalized HTTP status into "2xx".."5xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
