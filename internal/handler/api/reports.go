package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	domsvc "SessionScope/internal/domain/service"
	icache "SessionScope/internal/service/cache"
	"SessionScope/internal/service/metrics"
	"SessionScope/internal/service/ratelimit"
	"SessionScope/internal/services/sessions"
	"SessionScope/internal/usecase"
	xhttp "SessionScope/pkg/http"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/queue"
	"SessionScope/pkg/util"
)

// ReportsHandler serves session metadata, boundary resolution and daily
// session reports over Echo.
type ReportsHandler struct {
	l        *applogger.Logger
	builder  *usecase.ReportBuilder
	series   *usecase.SeriesProvider
	extract  domsvc.WindowExtractor
	registry *sessions.Registry
	resolver domsvc.BoundaryResolver
	reports  domrepo.ReportStore

	q         queue.QueueService
	cache     icache.BytesCache
	rl        *ratelimit.Limiter
	resultTTL time.Duration
}

func NewReportsHandler(
	l *applogger.Logger,
	builder *usecase.ReportBuilder,
	series *usecase.SeriesProvider,
	extract domsvc.WindowExtractor,
	registry *sessions.Registry,
	resolver domsvc.BoundaryResolver,
	reports domrepo.ReportStore,
) *ReportsHandler {
	metrics.Register()
	return &ReportsHandler{
		l:         l,
		builder:   builder,
		series:    series,
		extract:   extract,
		registry:  registry,
		resolver:  resolver,
		reports:   reports,
		rl:        ratelimit.New(),
		resultTTL: 30 * time.Second,
	}
}

// SetCache enables response caching for the build endpoints.
func (h *ReportsHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetQueue enables the async job endpoint.
func (h *ReportsHandler) SetQueue(q queue.QueueService) { h.q = q }

// SetResultTTL overrides the response cache TTL.
func (h *ReportsHandler) SetResultTTL(d time.Duration) {
	if d > 0 {
		h.resultTTL = d
	}
}

var _ xhttp.Handler = (*ReportsHandler)(nil)

func (h *ReportsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/sessions", h.Sessions)
	g.GET("/sessions/window", h.Window)
	g.GET("/sessions/candles", h.SessionCandles)
	g.GET("/reports/daily", h.Daily)
	g.GET("/reports/stored", h.Stored)
	g.POST("/reports/jobs", h.EnqueueJob)
}

// Sessions lists the configured session definitions.
func (h *ReportsHandler) Sessions(c echo.Context) error {
	defs := h.registry.All()
	out := make([]models.SessionInfoResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, models.SessionInfoResponse{
			Name:            d.Name,
			Timezone:        d.Timezone,
			Open:            d.LocalStart.String(),
			Close:           d.LocalEnd.String(),
			CrossesMidnight: d.CrossesMidnight(),
			Description:     d.Description,
		})
	}
	return xhttp.SuccessResponse(c, out)
}

// Window resolves one session occurrence to UTC instants. A date falling on
// an unresolvable DST transition comes back as 422 rather than a zeroed
// window.
func (h *ReportsHandler) Window(c echo.Context) error {
	req := &models.SessionWindowRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	def, ok := h.registry.Get(req.Session)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown session '%s'", req.Session))
	}
	date, ok := util.ParseDate(req.Date)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("bad date '%s'", req.Date))
	}

	w, err := h.resolver.Resolve(def, date)
	if err != nil {
		if sessions.IsDstConflict(err) {
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError("ERR_DST_CONFLICT", "", err.Error(), http.StatusUnprocessableEntity))
		}
		h.l.Error("window resolve error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.ResolvedWindowResponse{
		Session:    w.SessionName,
		AnchorDate: w.AnchorDate.Format(util.DateLayout),
		StartUTC:   w.StartUTC.Format(time.RFC3339),
		EndUTC:     w.EndUTC.Format(time.RFC3339),
		CrossesDay: def.CrossesMidnight(),
	})
}

// SessionCandles returns the candles that fell inside the session's windows
// across the range, UTC-normalized and ascending.
func (h *ReportsHandler) SessionCandles(c echo.Context) error {
	start := time.Now()
	const endpoint = "session_candles"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SessionExtractRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	def, ok := h.registry.Get(req.Session)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown session '%s'", req.Session))
	}
	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		return h.rateLimited(c, endpoint)
	}

	key := "candles:" + req.Symbol + ":" + req.Session + ":" + req.From + ":" + req.To + ":" + req.Interval
	if b, ok := h.cacheGet(c, endpoint, key, req.Force); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	from, _ := util.ParseDate(req.From)
	to, _ := util.ParseDate(req.To)
	series, err := h.series.GetSeries(c.Request().Context(), usecase.GetSeriesParams{
		Symbol:   req.Symbol,
		From:     from,
		To:       to,
		Interval: domrepo.Interval(req.Interval),
		Force:    req.Force,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("session_candles fetch error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.extract.Extract(series, def, from, to)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("session_candles extract error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]models.CandleResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CandleResponse{
			Time:   r.Bucket.Format(time.RFC3339),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return h.respondCached(c, endpoint, key, out)
}

// Daily builds the per-day session records for the requested range.
func (h *ReportsHandler) Daily(c echo.Context) error {
	start := time.Now()
	const endpoint = "daily"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.DailyReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, ok := h.registry.Get(req.Session); !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown session '%s'", req.Session))
	}
	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		return h.rateLimited(c, endpoint)
	}

	key := "daily:" + req.Symbol + ":" + req.Session + ":" + req.From + ":" + req.To + ":" + req.Interval
	if b, ok := h.cacheGet(c, endpoint, key, req.Force); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	from, _ := util.ParseDate(req.From)
	to, _ := util.ParseDate(req.To)
	records, err := h.builder.Build(c.Request().Context(), usecase.BuildParams{
		Symbol:   req.Symbol,
		Session:  req.Session,
		From:     from,
		To:       to,
		Interval: domrepo.Interval(req.Interval),
		Force:    req.Force,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("daily build error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]models.DailySessionRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordResponse(r))
	}
	return h.respondCached(c, endpoint, key, out)
}

// Stored reads previously persisted records straight from the report store.
func (h *ReportsHandler) Stored(c echo.Context) error {
	start := time.Now()
	const endpoint = "stored"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.StoredReportsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.reports == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_STORE_DISABLED", "", "report store is not configured", http.StatusServiceUnavailable))
	}
	if req.Session != "" {
		if _, ok := h.registry.Get(req.Session); !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown session '%s'", req.Session))
		}
	}
	if !h.rl.Allow(c.RealIP()+":"+endpoint, 10, 5) {
		return h.rateLimited(c, endpoint)
	}

	from, _ := util.ParseDate(req.From)
	to, _ := util.ParseDate(req.To)
	records, err := h.reports.SelectReports(c.Request().Context(), req.Symbol, req.Session, from, to)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("stored reports error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]models.DailySessionRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordResponse(r))
	}
	return xhttp.SuccessResponse(c, out)
}

// EnqueueJob schedules an async multi-session build on the job queue.
func (h *ReportsHandler) EnqueueJob(c echo.Context) error {
	const endpoint = "jobs"
	req := &models.ReportJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.q == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_QUEUE_DISABLED", "", "job queue is not configured", http.StatusServiceUnavailable))
	}
	for _, s := range req.Sessions {
		if _, ok := h.registry.Get(s); !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown session '%s'", s))
		}
	}
	if !h.rl.Allow(c.RealIP()+":"+endpoint, 2, 1) {
		return h.rateLimited(c, endpoint)
	}

	payload := usecase.ReportJobPayload{
		Symbol:   req.Symbol,
		Sessions: req.Sessions,
		From:     req.From,
		To:       req.To,
		Interval: req.Interval,
		Publish:  req.Publish,
	}
	if err := h.q.PublishMessage(c.Request().Context(), usecase.ReportJobType, payload); err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("enqueue report job error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not enqueue job"))
	}
	h.l.Info("report job enqueued",
		applogger.String("symbol", req.Symbol),
		applogger.Strings("sessions", req.Sessions),
	)
	return xhttp.DataResponse(c, http.StatusAccepted, echo.Map{
		"symbol":   req.Symbol,
		"sessions": req.Sessions,
		"from":     req.From,
		"to":       req.To,
	})
}

func (h *ReportsHandler) rateLimited(c echo.Context, endpoint string) error {
	h.l.Warn("rate limited",
		applogger.String("endpoint", endpoint),
		applogger.String("remote", c.RealIP()),
	)
	return xhttp.AppErrorResponse(c,
		xhttp.NewAppError("ERR_RATE_LIMITED", "", "rate limited", http.StatusTooManyRequests))
}

// cacheGet returns the cached response envelope for key, if present.
func (h *ReportsHandler) cacheGet(c echo.Context, endpoint, key string, force bool) ([]byte, bool) {
	if h.cache == nil || force {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.l.Warn("response cache get error", applogger.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	metrics.APICacheHits.WithLabelValues(endpoint).Inc()
	return b, true
}

// respondCached renders the standard envelope, stores the bytes and writes
// them, so cache hits replay the identical body.
func (h *ReportsHandler) respondCached(c echo.Context, endpoint, key string, data interface{}) error {
	env := xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	}
	b, err := json.Marshal(env)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.AppErrorResponse(c, err)
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(key, b, h.resultTTL); err != nil {
			h.l.Warn("response cache set error", applogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func toRecordResponse(r models.DailySessionRecord) models.DailySessionRecordResponse {
	return models.DailySessionRecordResponse{
		Date:         r.Date.Format(util.DateLayout),
		Session:      r.SessionName,
		Symbol:       r.Symbol,
		Trend:        string(r.Trend),
		Open:         r.Open,
		Close:        r.Close,
		High:         r.High,
		Low:          r.Low,
		BullishCount: r.BullishCount,
		BearishCount: r.BearishCount,
		NeutralCount: r.NeutralCount,
		TotalVolume:  r.TotalVolume,
	}
}
