package repository

import (
	"context"
	"time"

	"SessionScope/internal/domain/models"
)

// MarketSource fetches a fully materialized OHLCV series for a symbol and
// date range. Implementations are swappable (chart API, fixtures); callers
// must tolerate an empty series on a range with no data.
type MarketSource interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time, interval Interval) (models.Series, error)
	Name() string
}

// CandleStore is the durable candle backing store.
type CandleStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	InsertBatch(ctx context.Context, candles []models.Candle, interval Interval) error
	SelectRange(ctx context.Context, symbol string, from, to time.Time, interval Interval) (models.Series, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// ReportStore persists built daily session records.
type ReportStore interface {
	InsertReports(ctx context.Context, records []models.DailySessionRecord) error
	SelectReports(ctx context.Context, symbol, session string, from, to time.Time) ([]models.DailySessionRecord, error)
}

// ReportPublisher ships built records to downstream consumers.
type ReportPublisher interface {
	PublishReports(ctx context.Context, symbol string, records []models.DailySessionRecord) error
	Close() error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSkippedDay(session, reason string)
	RecordCache(level string, hit bool)
	RecordFetch(source, symbol string)
	RecordReportBuilt(session string, days int)
}
