package usecase

import (
	"context"
	"fmt"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	pkgcache "SessionScope/pkg/cache"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/util"
)

// SeriesProvider serves OHLCV series through a cache/store/source chain:
// layered cache first, then the durable candle store for fully historical
// ranges, then the market source as origin. Fetched rows are written back to
// both layers on the way out.
type SeriesProvider struct {
	src     domrepo.MarketSource
	store   domrepo.CandleStore
	mcache  pkgcache.Service
	metrics domrepo.Metrics
	l       *applogger.Logger

	seriesTTL time.Duration
	staleTTL  time.Duration
}

func NewSeriesProvider(
	src domrepo.MarketSource,
	store domrepo.CandleStore,
	mcache pkgcache.Service,
	metrics domrepo.Metrics,
	seriesTTL time.Duration,
	staleTTL time.Duration,
) *SeriesProvider {
	if seriesTTL <= 0 {
		seriesTTL = 24 * time.Hour
	}
	if staleTTL <= 0 {
		staleTTL = 15 * time.Minute
	}
	return &SeriesProvider{
		src:       src,
		store:     store,
		mcache:    mcache,
		metrics:   metrics,
		seriesTTL: seriesTTL,
		staleTTL:  staleTTL,
	}
}

// SetLogger injects a structured logger.
func (sp *SeriesProvider) SetLogger(l *applogger.Logger) { sp.l = l }

type GetSeriesParams struct {
	Symbol   string
	From     time.Time
	To       time.Time
	Interval domrepo.Interval
	Force    bool // bypass cache and store reads, refetch from the source
}

func (sp *SeriesProvider) GetSeries(ctx context.Context, p GetSeriesParams) (models.Series, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	p.Interval = domrepo.NormalizeInterval(string(p.Interval))
	// Align to bar boundaries so the source returns complete bars at the edges.
	p.From, p.To = util.AlignFromTo(p.From, p.To, string(p.Interval))

	key := seriesKey(p.Symbol, p.From, p.To, p.Interval)

	if !p.Force && sp.mcache != nil {
		var cached models.Series
		if err := sp.mcache.Get(ctx, key, &cached); err == nil {
			sp.recordCache("layered", true)
			return cached, nil
		}
		sp.recordCache("layered", false)
	}

	// A range that ends before today is immutable; the durable store can serve
	// it without touching the origin. Ranges reaching into today go to the
	// source so the tail stays fresh.
	if !p.Force && sp.store != nil && !sp.includesToday(p.To) {
		rows, err := sp.store.SelectRange(ctx, p.Symbol, p.From, p.To, p.Interval)
		if err != nil {
			if sp.l != nil {
				sp.l.Warn("candle store read failed, falling through to source",
					applogger.String("symbol", p.Symbol),
					applogger.Error(err),
				)
			}
		} else if len(rows) > 0 {
			sp.recordCache("store", true)
			sp.cacheSet(ctx, key, rows, sp.seriesTTL)
			return rows, nil
		} else {
			sp.recordCache("store", false)
		}
	}

	start := time.Now()
	rows, err := sp.src.Fetch(ctx, p.Symbol, p.From, p.To, p.Interval)
	if err != nil {
		if sp.metrics != nil {
			sp.metrics.RecordError("source_fetch")
		}
		return nil, fmt.Errorf("fetch %s: %w", p.Symbol, err)
	}
	if sp.metrics != nil {
		sp.metrics.RecordFetch(sp.src.Name(), p.Symbol)
		sp.metrics.RecordLatency("source_fetch", time.Since(start).Seconds())
	}

	if sp.store != nil && len(rows) > 0 {
		if err := sp.store.InsertBatch(ctx, rows, p.Interval); err != nil {
			// The read path still serves; durability catches up on the next
			// fetch or through the ingest pipeline.
			if sp.l != nil {
				sp.l.Warn("candle store write-back failed",
					applogger.String("symbol", p.Symbol),
					applogger.Int("rows", len(rows)),
					applogger.Error(err),
				)
			}
			if sp.metrics != nil {
				sp.metrics.RecordError("store_writeback")
			}
		}
	}

	ttl := sp.seriesTTL
	if sp.includesToday(p.To) {
		ttl = sp.staleTTL
	}
	sp.cacheSet(ctx, key, rows, ttl)
	return rows, nil
}

func (sp *SeriesProvider) includesToday(to time.Time) bool {
	return !to.Before(util.DayFloor(time.Now()))
}

func (sp *SeriesProvider) cacheSet(ctx context.Context, key string, rows models.Series, ttl time.Duration) {
	if sp.mcache == nil || len(rows) == 0 {
		return
	}
	if err := sp.mcache.Set(ctx, key, rows, ttl); err != nil && sp.l != nil {
		sp.l.Warn("series cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (sp *SeriesProvider) recordCache(level string, hit bool) {
	if sp.metrics != nil {
		sp.metrics.RecordCache(level, hit)
	}
}

// seriesKeyPrefix namespaces cached series; invalidation after ingest
// matches on the symbol under the same prefix.
const seriesKeyPrefix = "series"

func seriesKey(symbol string, from, to time.Time, interval domrepo.Interval) string {
	return pkgcache.GenerateKeyWithParams(seriesKeyPrefix,
		symbol, interval, from.UTC().Format(util.DateLayout), to.UTC().Format(util.DateLayout))
}
