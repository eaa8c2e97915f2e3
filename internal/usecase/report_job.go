package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "SessionScope/internal/domain/repository"
	pkgcache "SessionScope/pkg/cache"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/queue"
	"SessionScope/pkg/util"
)

// ReportJobType is the queue message type the report job consumes.
const ReportJobType = "report.build"

// ReportJobPayload is the queued request for an asynchronous report build.
type ReportJobPayload struct {
	Symbol   string   `json:"symbol"`
	Sessions []string `json:"sessions"`
	From     string   `json:"from"` // yyyy-mm-dd
	To       string   `json:"to"`
	Interval string   `json:"interval"`
	Publish  bool     `json:"publish"`
	Force    bool     `json:"force"`
}

// jobLockTTL caps how long a symbol stays locked if a job dies without
// unlocking. Long backfills must finish inside this window.
const jobLockTTL = 10 * time.Minute

// ReportJob builds and persists session reports off the request path.
// Report inserts are idempotent at the store level, so a retried job that
// already stored some sessions does no harm.
type ReportJob struct {
	builder *ReportBuilder
	locker  pkgcache.Service
	l       *applogger.Logger
}

func NewReportJob(builder *ReportBuilder) *ReportJob {
	return &ReportJob{builder: builder}
}

// SetLogger injects a structured logger.
func (j *ReportJob) SetLogger(l *applogger.Logger) { j.l = l }

// SetLocker enables per-symbol single-flight. Two queued jobs for the
// same symbol would race the market source for identical data; the
// second one fails fast and the queue retries it after the delay.
func (j *ReportJob) SetLocker(locker pkgcache.Service) { j.locker = locker }

func (j *ReportJob) Name() string { return "session report builder" }

func (j *ReportJob) Type() string { return ReportJobType }

func (j *ReportJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ReportJobPayload](payload)
	if err != nil {
		return fmt.Errorf("report job payload: %w", err)
	}
	from, ok := util.ParseDate(p.From)
	if !ok {
		return fmt.Errorf("report job: bad from date %q", p.From)
	}
	to, ok := util.ParseDate(p.To)
	if !ok {
		return fmt.Errorf("report job: bad to date %q", p.To)
	}

	if unlock, acquired := j.lockSymbol(ctx, p.Symbol); !acquired {
		return fmt.Errorf("report job for %s already running", p.Symbol)
	} else if unlock != nil {
		defer unlock()
	}

	bySession, errs, err := j.builder.BuildForSessions(ctx, BuildSetParams{
		Symbol:   p.Symbol,
		Sessions: p.Sessions,
		From:     from,
		To:       to,
		Interval: domrepo.NormalizeInterval(p.Interval),
		Force:    p.Force,
	})
	if err != nil {
		return err
	}

	for session, records := range bySession {
		if err := j.builder.SaveReports(ctx, p.Symbol, records, p.Publish); err != nil {
			if errs == nil {
				errs = map[string]string{}
			}
			errs[session] = err.Error()
		}
	}

	if len(errs) > 0 {
		for session, msg := range errs {
			if j.l != nil {
				j.l.Error("report job session failed",
					applogger.String("symbol", p.Symbol),
					applogger.String("session", session),
					applogger.String("error", msg),
				)
			}
		}
		return fmt.Errorf("report job: %d of %d sessions failed", len(errs), len(p.Sessions))
	}

	if j.l != nil {
		j.l.Info("report job done",
			applogger.String("symbol", p.Symbol),
			applogger.Int("sessions", len(bySession)),
		)
	}
	return nil
}

// lockSymbol takes the per-symbol lock. A lock backend failure degrades
// to running unlocked rather than blocking builds.
func (j *ReportJob) lockSymbol(ctx context.Context, symbol string) (unlock func(), acquired bool) {
	if j.locker == nil {
		return nil, true
	}
	key := pkgcache.GenerateKey("job", symbol)
	ok, err := j.locker.TryLock(ctx, key, jobLockTTL)
	if err != nil {
		if j.l != nil {
			j.l.Warn("job lock unavailable, continuing unlocked",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		// Fresh context so the unlock still runs when the job's was canceled.
		ulCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.locker.Unlock(ulCtx, key); err != nil && j.l != nil {
			j.l.Warn("job unlock failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
	}, true
}

var _ queue.Job = (*ReportJob)(nil)
