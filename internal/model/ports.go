package model

import (
	"context"
	"fmt"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the analyzer service from concrete bar sources
// (HTTP market-data service, SQLite, Postgres) and from the result cache.

// BarQuery selects the most recent bars of one symbol, optionally as of a
// point in time.
type BarQuery struct {
	Symbol    string
	Limit     int
	Timeframe int // minutes per bar

	// Day (YYYYMMDD) and Minute (HHMM) end the series at a point in time,
	// read as UTC. Zero Day selects the latest bars. Minute requires Day.
	Day    int
	Minute *int
}

// Before returns the exclusive upper bound on bar timestamps: the end of
// Minute on Day, or the end of Day when Minute is nil. ok is false when the
// query asks for the latest bars.
func (q BarQuery) Before() (t time.Time, ok bool, err error) {
	if q.Day == 0 {
		if q.Minute != nil {
			return time.Time{}, false, fmt.Errorf("minute %04d given without day", *q.Minute)
		}
		return time.Time{}, false, nil
	}
	day, err := time.Parse("20060102", fmt.Sprintf("%08d", q.Day))
	if err != nil || q.Day < 0 {
		return time.Time{}, false, fmt.Errorf("day %d is not a YYYYMMDD date", q.Day)
	}
	if q.Minute == nil {
		return day.AddDate(0, 0, 1), true, nil
	}
	hh, mm := *q.Minute/100, *q.Minute%100
	if *q.Minute < 0 || hh > 23 || mm > 59 {
		return time.Time{}, false, fmt.Errorf("minute %d is not an HHMM time", *q.Minute)
	}
	return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm+1)*time.Minute), true, nil
}

// BarSource fetches raw bars, oldest first. The ordering is validated by
// NewBarSeries rather than trusted.
type BarSource interface {
	// FetchBars returns at most q.Limit of the most recent bars for q.Symbol.
	FetchBars(ctx context.Context, q BarQuery) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// BarWriter stores bars, e.g. for a CSV import.
type BarWriter interface {
	// WriteBars upserts bars for one symbol and timeframe. Returns rows written.
	WriteBars(ctx context.Context, symbol string, timeframe int, bars []Bar) (int, error)
}

// ResultCache stores serialized results of pure computations. A miss is never
// an error for the caller: it recomputes.
type ResultCache interface {
	// Get returns the cached payload and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a payload under key for ttl.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)

	// Close releases underlying resources.
	Close() error
}
