package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	pkgch "StockPulse/pkg/clickhouse"
	applogger "StockPulse/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse daily bars.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), table: table}
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHCandleStore) Store(ctx context.Context, c *models.Candle) error {
	q := fmt.Sprintf("INSERT INTO %s (bucket, symbol, exchange, open, high, low, close, vol) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		c.Bucket, c.Symbol, c.Exchange, c.Open, c.High, c.Low, c.Close, c.Volume)
	return err
}

func (s *CHCandleStore) StoreBatch(ctx context.Context, candles []*models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, c := range candles[start:end] {
			if c == nil || c.Symbol == "" || c.Bucket.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.Bucket, c.Symbol, c.Exchange, c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (bucket, symbol, exchange, open, high, low, close, vol) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHCandleStore) GetLatestN(ctx context.Context, key models.InstrumentKey, n int) ([]*models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT bucket, symbol, exchange, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND exchange = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, key.Symbol, key.Exchange, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_bars query error",
				applogger.String("key", key.String()),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	tmp, err := scanCandles(rows, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_bars scan error",
				applogger.String("key", key.String()),
				applogger.Error(err),
			)
		}
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse latest_bars ok",
			applogger.String("key", key.String()),
			applogger.Int("limit", n),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHCandleStore) GetRange(ctx context.Context, key models.InstrumentKey, from, to time.Time, limit int) ([]*models.Candle, error) {
	q := fmt.Sprintf(`
        SELECT bucket, symbol, exchange, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND exchange = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, key.Symbol, key.Exchange, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse bars_range query error",
				applogger.String("key", key.String()),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get bars range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows, limit)
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHCandleStore) Close() error {
	return nil // Managed by pkg
}

func scanCandles(rows *sql.Rows, capHint int) ([]*models.Candle, error) {
	if capHint < 0 {
		capHint = 0
	}
	out := make([]*models.Candle, 0, capHint)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Exchange, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
