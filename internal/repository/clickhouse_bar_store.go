package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinSight/internal/domain/models"
	pkgch "FinSight/pkg/clickhouse"
	applogger "FinSight/pkg/logger"
)

const barInsertChunk = 2000

// BarSchema returns the DDL for the daily bar table. ReplacingMergeTree keeps the
// newest ingest of a (symbol, day) pair; reads use FINAL.
func BarSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily_bars (
            symbol      LowCardinality(String),
            day         Date,
            open        Float64,
            high        Float64,
            low         Float64,
            close       Float64,
            volume      Float64,
            source      LowCardinality(String),
            ingested_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (symbol, day)`, database),
	}
}

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db     *sql.DB
	table  string
	source string
	l      *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, database string) *CHBarStore {
	return &CHBarStore{db: ch.DB(), table: database + ".daily_bars", source: "feed"}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

// SetSource sets the source tag written with new bars.
func (s *CHBarStore) SetSource(source string) { s.source = source }

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT day, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND day >= ? AND day <= ?
        ORDER BY day ASC
    `, s.table)
	out, err := s.query(ctx, "get_bars", symbol, q, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("clickhouse get_bars ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHBarStore) GetLatestNBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT day, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ?
        ORDER BY day DESC
        LIMIT ?
    `, s.table)
	out, err := s.query(ctx, "latest_bars", symbol, q, symbol, n)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse latest_bars ok",
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHBarStore) query(ctx context.Context, op, symbol, q string, args ...interface{}) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logErr(op+" query error", symbol, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.PriceBar, 0, 512)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.logErr(op+" scan error", symbol, err)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.logErr(op+" rows error", symbol, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// StoreBars writes bars with multi-row VALUES inserts.
func (s *CHBarStore) StoreBars(ctx context.Context, symbol string, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	for start := 0; start < len(bars); start += barInsertChunk {
		end := min(start+barInsertChunk, len(bars))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			if b.Date.IsZero() || b.Close <= 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, s.source)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume, source) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logErr("store_bars exec error", symbol, err)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarStore) logErr(msg, symbol string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+msg,
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.Error(err),
	)
}
