package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	domsvc "SessionScope/internal/domain/service"
	"SessionScope/internal/services/sessions"
	applogger "SessionScope/pkg/logger"
)

// ReportBuilder turns a symbol's candle series into per-day session records:
// fetch the series once, slice it into resolved per-date windows, aggregate
// each day, and stamp the record with the window's anchor date. A
// midnight-crossing session therefore yields one record on the date it
// opened, never two half-records.
type ReportBuilder struct {
	series   *SeriesProvider
	registry *sessions.Registry
	extract  domsvc.WindowExtractor
	agg      domsvc.SessionAggregator
	store    domrepo.ReportStore
	pub      domrepo.ReportPublisher
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewReportBuilder(
	series *SeriesProvider,
	registry *sessions.Registry,
	extract domsvc.WindowExtractor,
	agg domsvc.SessionAggregator,
	store domrepo.ReportStore,
	pub domrepo.ReportPublisher,
	metrics domrepo.Metrics,
) *ReportBuilder {
	return &ReportBuilder{
		series:   series,
		registry: registry,
		extract:  extract,
		agg:      agg,
		store:    store,
		pub:      pub,
		metrics:  metrics,
	}
}

// SetLogger injects a structured logger.
func (b *ReportBuilder) SetLogger(l *applogger.Logger) { b.l = l }

type BuildParams struct {
	Symbol   string
	Session  string
	From     time.Time
	To       time.Time
	Interval domrepo.Interval
	Force    bool
}

// Build produces one record per day that had rows inside the session window,
// ordered ascending by anchor date. Days the resolver skipped and days with
// no rows simply produce no record.
func (b *ReportBuilder) Build(ctx context.Context, p BuildParams) ([]models.DailySessionRecord, error) {
	def, ok := b.registry.Get(p.Session)
	if !ok {
		return nil, fmt.Errorf("unknown session '%s'", p.Session)
	}

	series, err := b.series.GetSeries(ctx, GetSeriesParams{
		Symbol: p.Symbol, From: p.From, To: p.To, Interval: p.Interval, Force: p.Force,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	days, err := b.extract.ExtractByDay(series, def, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", def.Name, err)
	}

	records := make([]models.DailySessionRecord, 0, len(days))
	for _, day := range days {
		rec, ok := b.agg.Aggregate(day.Rows)
		if !ok {
			continue
		}
		rec.Date = day.Window.AnchorDate
		rec.SessionName = def.Name
		if rec.Symbol == "" {
			rec.Symbol = p.Symbol
		}
		records = append(records, rec)
	}

	if b.metrics != nil {
		b.metrics.RecordReportBuilt(def.Name, len(records))
		b.metrics.RecordLatency("report_build", time.Since(start).Seconds())
	}
	if b.l != nil {
		b.l.Info("session report built",
			applogger.String("symbol", p.Symbol),
			applogger.String("session", def.Name),
			applogger.Date("from", p.From),
			applogger.Date("to", p.To),
			applogger.Int("rows", len(series)),
			applogger.Int("days", len(records)),
		)
	}
	return records, nil
}

type BuildSetParams struct {
	Symbol   string
	Sessions []string
	From     time.Time
	To       time.Time
	Interval domrepo.Interval
	Force    bool
}

// BuildForSessions builds several sessions' reports over one shared series
// fetch. Per-session failures land in the returned error map instead of
// failing the whole set; the series fetch itself failing is fatal.
func (b *ReportBuilder) BuildForSessions(ctx context.Context, p BuildSetParams) (map[string][]models.DailySessionRecord, map[string]string, error) {
	if len(p.Sessions) == 0 {
		return nil, nil, fmt.Errorf("at least one session required")
	}

	// Warm the series once so the per-session builds hit the cache.
	if _, err := b.series.GetSeries(ctx, GetSeriesParams{
		Symbol: p.Symbol, From: p.From, To: p.To, Interval: p.Interval, Force: p.Force,
	}); err != nil {
		return nil, nil, err
	}

	type item struct {
		session string
		records []models.DailySessionRecord
		err     error
	}
	ch := make(chan item, len(p.Sessions))
	var wg sync.WaitGroup
	for _, name := range p.Sessions {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			records, err := b.Build(ctx, BuildParams{
				Symbol: p.Symbol, Session: name, From: p.From, To: p.To, Interval: p.Interval,
			})
			ch <- item{name, records, err}
		}(name)
	}
	go func() { wg.Wait(); close(ch) }()

	out := make(map[string][]models.DailySessionRecord, len(p.Sessions))
	errs := map[string]string{}
	for it := range ch {
		if it.err != nil {
			errs[it.session] = it.err.Error()
			continue
		}
		out[it.session] = it.records
	}
	if len(errs) == 0 {
		errs = nil
	}
	return out, errs, nil
}

// SaveReports persists records and optionally ships them to the report topic.
// Used by queued jobs and the scheduler; the interactive read path never
// persists.
func (b *ReportBuilder) SaveReports(ctx context.Context, symbol string, records []models.DailySessionRecord, publish bool) error {
	if len(records) == 0 {
		return nil
	}
	if b.store != nil {
		if err := b.store.InsertReports(ctx, records); err != nil {
			if b.metrics != nil {
				b.metrics.RecordError("report_store")
			}
			return fmt.Errorf("store reports: %w", err)
		}
	}
	if publish && b.pub != nil {
		if err := b.pub.PublishReports(ctx, symbol, records); err != nil {
			if b.metrics != nil {
				b.metrics.RecordError("report_publish")
			}
			return fmt.Errorf("publish reports: %w", err)
		}
	}
	return nil
}
