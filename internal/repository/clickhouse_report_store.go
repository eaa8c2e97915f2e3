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

// CHReportStore persists daily session records in ClickHouse. The table is a
// ReplacingMergeTree keyed (symbol, session, date): a report job that runs
// twice for the same day converges on the newest row instead of duplicating,
// which is what makes queue retries safe.
type CHReportStore struct {
	client *pkgch.Client
	db     *sql.DB
	dbName string
	l      *applogger.Logger
}

func NewCHReportStore(ch *pkgch.Client, dbName string) *CHReportStore {
	if dbName == "" {
		dbName = "sessionscope"
	}
	return &CHReportStore{client: ch, db: ch.DB(), dbName: dbName}
}

// SetLogger injects a structured logger.
func (s *CHReportStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.ReportStore = (*CHReportStore)(nil)

// Init creates the reports table if missing. Idempotent.
func (s *CHReportStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.dbName),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (date Date, session String, symbol String, trend String, open Float64, close Float64, high Float64, low Float64, bullish UInt32, bearish UInt32, neutral UInt32, vol Float64, built_at DateTime DEFAULT now()) ENGINE=ReplacingMergeTree(built_at) ORDER BY (symbol, session, date)",
			s.table(),
		),
	})
}

func (s *CHReportStore) InsertReports(ctx context.Context, records []models.DailySessionRecord) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*12)
	for _, r := range records {
		if r.Symbol == "" || r.SessionName == "" || r.Date.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.Date.UTC(),
			r.SessionName,
			r.Symbol,
			string(r.Trend),
			r.Open,
			r.Close,
			r.High,
			r.Low,
			uint32(r.BullishCount),
			uint32(r.BearishCount),
			uint32(r.NeutralCount),
			r.TotalVolume,
		)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (date, session, symbol, trend, open, close, high, low, bullish, bearish, neutral, vol) VALUES %s",
		s.table(), strings.Join(values, ","),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert_reports error",
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert reports: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse insert_reports ok", applogger.Int("rows", len(values)))
	}
	return nil
}

// SelectReports returns stored records for a symbol and date range, oldest
// first. An empty session selects across all sessions.
func (s *CHReportStore) SelectReports(ctx context.Context, symbol, session string, from, to time.Time) ([]models.DailySessionRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, session, symbol, trend, open, close, high, low, bullish, bearish, neutral, vol
        FROM %s FINAL
        WHERE symbol = ? AND date >= ? AND date <= ?
    `, s.table())
	args := []interface{}{symbol, from.UTC(), to.UTC()}
	if session != "" {
		q += " AND session = ?"
		args = append(args, session)
	}
	q += " ORDER BY date ASC, session ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse select_reports query error",
				applogger.String("symbol", symbol),
				applogger.String("session", session),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("select reports: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailySessionRecord, 0, 64)
	for rows.Next() {
		var (
			rec              models.DailySessionRecord
			trend            string
			bull, bear, neut uint32
		)
		if err := rows.Scan(&rec.Date, &rec.SessionName, &rec.Symbol, &trend,
			&rec.Open, &rec.Close, &rec.High, &rec.Low, &bull, &bear, &neut, &rec.TotalVolume); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse select_reports scan error",
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rec.Date = rec.Date.UTC()
		rec.Trend = models.Trend(trend)
		rec.BullishCount, rec.BearishCount, rec.NeutralCount = int(bull), int(bear), int(neut)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse select_reports ok",
			applogger.String("symbol", symbol),
			applogger.String("session", session),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHReportStore) table() string { return s.dbName + ".session_reports" }
