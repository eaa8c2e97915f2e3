package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	pkgcache "SessionScope/pkg/cache"
	applogger "SessionScope/pkg/logger"
)

// CandleIngestor buffers candles coming off the ingest topic and flushes them
// to the candle store in batches, grouped by interval. A flush happens when
// the buffer reaches the batch size or the batch timeout elapses, whichever
// comes first.
type CandleIngestor struct {
	store   domrepo.CandleStore
	metrics domrepo.Metrics
	scache  pkgcache.Service
	l       *applogger.Logger

	in      chan ingestItem
	batchSz int
	batchTO time.Duration

	wg   sync.WaitGroup
	once sync.Once
}

type ingestItem struct {
	candle   models.Candle
	interval domrepo.Interval
}

func NewCandleIngestor(store domrepo.CandleStore, metrics domrepo.Metrics, batchSz int, batchTO time.Duration) *CandleIngestor {
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = 2 * time.Second
	}
	return &CandleIngestor{
		store:   store,
		metrics: metrics,
		in:      make(chan ingestItem, 4*batchSz),
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// SetLogger injects a structured logger.
func (ing *CandleIngestor) SetLogger(l *applogger.Logger) { ing.l = l }

// SetSeriesCache makes the ingestor evict cached series for a symbol
// after its candles are persisted, so reads see the new data.
func (ing *CandleIngestor) SetSeriesCache(c pkgcache.Service) { ing.scache = c }

// Start launches the flush loop. Call once.
func (ing *CandleIngestor) Start(ctx context.Context) {
	ing.once.Do(func() {
		ing.wg.Add(1)
		go ing.run(ctx)
	})
}

// Enqueue hands one candle to the flush loop, blocking only when the buffer
// is full and only until ctx is done.
func (ing *CandleIngestor) Enqueue(ctx context.Context, c models.Candle, interval domrepo.Interval) error {
	select {
	case ing.in <- ingestItem{candle: c, interval: interval}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ingest enqueue: %w", ctx.Err())
	}
}

// Stop waits for the flush loop to drain and exit. Cancel the Start context
// first.
func (ing *CandleIngestor) Stop() {
	ing.wg.Wait()
}

func (ing *CandleIngestor) run(ctx context.Context) {
	defer ing.wg.Done()

	batches := make(map[domrepo.Interval][]models.Candle)
	total := 0
	ticker := time.NewTicker(ing.batchTO)
	defer ticker.Stop()

	flush := func(flushCtx context.Context) {
		if total == 0 {
			return
		}
		start := time.Now()
		flushed := make(map[string]struct{})
		for iv, rows := range batches {
			if err := ing.store.InsertBatch(flushCtx, rows, iv); err != nil {
				if ing.metrics != nil {
					ing.metrics.RecordError("ingest_flush")
				}
				if ing.l != nil {
					ing.l.Error("candle batch flush failed",
						applogger.String("interval", string(iv)),
						applogger.Int("rows", len(rows)),
						applogger.Error(err),
					)
				}
				continue
			}
			for _, row := range rows {
				flushed[row.Symbol] = struct{}{}
			}
			if ing.l != nil {
				ing.l.Debug("candle batch flushed",
					applogger.String("interval", string(iv)),
					applogger.Int("rows", len(rows)),
				)
			}
		}
		ing.invalidateSeries(flushCtx, flushed)
		if ing.metrics != nil {
			ing.metrics.RecordLatency("ingest_flush", time.Since(start).Seconds())
		}
		batches = make(map[domrepo.Interval][]models.Candle)
		total = 0
	}

	for {
		select {
		case <-ctx.Done():
			// Final drain of whatever already sits in the channel, then one
			// last flush on a fresh context so shutdown still persists it.
			for {
				select {
				case it := <-ing.in:
					batches[it.interval] = append(batches[it.interval], it.candle)
					total++
				default:
					finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(finalCtx)
					cancel()
					return
				}
			}
		case it := <-ing.in:
			batches[it.interval] = append(batches[it.interval], it.candle)
			total++
			if total >= ing.batchSz {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (ing *CandleIngestor) invalidateSeries(ctx context.Context, symbols map[string]struct{}) {
	if ing.scache == nil {
		return
	}
	for symbol := range symbols {
		// Trailing colon so SAP.DE cannot match a SAP.DEX key.
		pattern := pkgcache.BuildPattern(pkgcache.GenerateKey(seriesKeyPrefix, symbol) + ":")
		if err := ing.scache.DeleteByPattern(ctx, pattern); err != nil && ing.l != nil {
			ing.l.Warn("series cache invalidation failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
	}
}
