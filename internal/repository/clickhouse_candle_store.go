package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	pkgch "SessionScope/pkg/clickhouse"
	applogger "SessionScope/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse, one table per
// interval. Tables use ReplacingMergeTree keyed (symbol, bucket) so re-running
// a backfill or replaying a consumer offset overwrites instead of duplicating.
type CHCandleStore struct {
	client *pkgch.Client
	db     *sql.DB
	dbName string
	l      *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, dbName string) *CHCandleStore {
	if dbName == "" {
		dbName = "sessionscope"
	}
	return &CHCandleStore{client: ch, db: ch.DB(), dbName: dbName}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

// Init creates the database and every candle table if missing. Idempotent.
func (s *CHCandleStore) Init(ctx context.Context) error {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.dbName)}
	for _, iv := range []domrepo.Interval{domrepo.I1m, domrepo.I5m, domrepo.I15m, domrepo.I30m, domrepo.I60m, domrepo.I1d} {
		table, err := s.tableFor(iv)
		if err != nil {
			return err
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (symbol String, bucket DateTime('UTC'), open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)",
			table,
		))
	}
	return s.client.InitSchema(ctx, stmts)
}

func (s *CHCandleStore) InsertBatch(ctx context.Context, candles []models.Candle, interval domrepo.Interval) error {
	if len(candles) == 0 {
		return nil
	}
	table, err := s.tableFor(interval)
	if err != nil {
		return err
	}
	// Multi-row VALUES inserts, chunked to bound statement size.
	const chunkSize = 2000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, c := range candles[start:end] {
			if c.Symbol == "" || c.Bucket.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.Symbol, c.Bucket.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, bucket, open, high, low, close, vol) VALUES %s", table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert_candles error",
					applogger.String("table", table),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert candles: %w", err)
		}
	}
	return nil
}

func (s *CHCandleStore) SelectRange(ctx context.Context, symbol string, from, to time.Time, interval domrepo.Interval) (models.Series, error) {
	start := time.Now()
	table, err := s.tableFor(interval)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC())
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse select_candles query error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("select candles: %w", err)
	}
	defer rows.Close()

	out := make(models.Series, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse select_candles scan error",
					applogger.String("table", table),
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = c.Bucket.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse select_candles rows error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse select_candles ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// Health performs health check.
func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection pool is owned by the shared client.
func (s *CHCandleStore) Close() error {
	return nil
}

func (s *CHCandleStore) tableFor(iv domrepo.Interval) (string, error) {
	switch iv {
	case domrepo.I1m:
		return s.dbName + ".candles_1m", nil
	case domrepo.I5m:
		return s.dbName + ".candles_5m", nil
	case domrepo.I15m:
		return s.dbName + ".candles_15m", nil
	case domrepo.I30m:
		return s.dbName + ".candles_30m", nil
	case domrepo.I60m, domrepo.I1h:
		// same resolution, one table
		return s.dbName + ".candles_60m", nil
	case domrepo.I1d:
		return s.dbName + ".candles_1d", nil
	default:
		return "", fmt.Errorf("unsupported interval: %s", iv)
	}
}
