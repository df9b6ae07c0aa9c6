package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"ta-engine/internal/bars"
	"ta-engine/internal/model"
)

// FetchBars returns the q.Limit most recent bars of q.Symbol at q.Timeframe,
// oldest first, ending before q.Before() when the query names a point in
// time. An unknown symbol yields bars.ErrNotFound.
func (s *Store) FetchBars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	before, ok, err := q.Before()
	if err != nil {
		return nil, err
	}
	upper := int64(math.MaxInt64)
	if ok {
		upper = before.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_ns, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND ts_ns < ?
		ORDER BY ts_ns DESC
		LIMIT ?
	`, q.Symbol, q.Timeframe, upper, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsNano int64
		if err := rows.Scan(&tsNano, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(0, tsNano).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s/%d: %w", q.Symbol, q.Timeframe, bars.ErrNotFound)
	}

	// newest-first from the query; callers expect oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastTimestamp returns the newest stored bar time for symbol and timeframe,
// or the zero time when none exist.
func (s *Store) LastTimestamp(ctx context.Context, symbol string, timeframe int) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts_ns) FROM bars WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, ts.Int64).UTC(), nil
}

// Symbols lists stored symbols in ascending order.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
