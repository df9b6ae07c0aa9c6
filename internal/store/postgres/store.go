// Package postgres reads bars from the market-data Postgres database
// (ohlcv_bars joined with tickers).
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ta-engine/internal/bars"
	"ta-engine/internal/model"
)

// Store serves bars from a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open creates a pool for connStr and pings it.
func Open(ctx context.Context, connStr string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("postgres bar source ready", "max_conns", config.MaxConns)
	return &Store{pool: pool, logger: logger}, nil
}

const latestBarsQuery = `
	SELECT b.timestamp, b.open, b.high, b.low, b.close, b.volume
	FROM ohlcv_bars b
	JOIN tickers t ON t.id = b.ticker_id
	WHERE t.symbol = $1 AND b.timeframe = $2
	  AND ($4::timestamptz IS NULL OR b.timestamp < $4)
	ORDER BY b.timestamp DESC
	LIMIT $3`

// FetchBars returns the q.Limit most recent bars, oldest first, ending before
// q.Before() when the query names a point in time.
func (s *Store) FetchBars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	var upper *time.Time
	before, ok, err := q.Before()
	if err != nil {
		return nil, err
	}
	if ok {
		upper = &before
	}

	rows, err := s.pool.Query(ctx, latestBarsQuery, q.Symbol, TimeframeLabel(q.Timeframe), q.Limit, upper)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", q.Symbol, TimeframeLabel(q.Timeframe), bars.ErrNotFound)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanBars(rows pgx.Rows) ([]model.Bar, error) {
	var out []model.Bar
	for rows.Next() {
		var b model.Bar
		var volume int64
		if err := rows.Scan(&b.TS, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("scanning bar row: %w", err)
		}
		b.TS = b.TS.UTC()
		b.Volume = float64(volume)
		out = append(out, b)
	}
	return out, rows.Err()
}

// TimeframeLabel maps a bar width in minutes to the labels stored in
// ohlcv_bars.timeframe ("1Min", "15Min", "1Hour", "1Day").
func TimeframeLabel(minutes int) string {
	switch {
	case minutes >= 1440 && minutes%1440 == 0:
		return fmt.Sprintf("%dDay", minutes/1440)
	case minutes >= 60 && minutes%60 == 0:
		return fmt.Sprintf("%dHour", minutes/60)
	default:
		return fmt.Sprintf("%dMin", minutes)
	}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the pool.
func (s *Store) Close() error {
	s.pool.Close()
	s.logger.Info("postgres connection pool closed")
	return nil
}
