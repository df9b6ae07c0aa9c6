package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-engine/internal/bars"
	"ta-engine/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "bars.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(n int) []model.Bar {
	t0 := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	out := make([]model.Bar, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Bar{TS: t0.Add(time.Duration(i) * 5 * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 1000}
	}
	return out
}

func TestStore_WriteAndFetch(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	in := sample(1200)

	n, err := s.WriteBars(ctx, "AAPL", 5, in)
	require.NoError(t, err)
	assert.Equal(t, 1200, n)

	got, err := s.FetchBars(ctx, model.BarQuery{Symbol: "AAPL", Timeframe: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, in[1190:], got, "latest bars, oldest first")

	_, err = model.NewBarSeries(got)
	assert.NoError(t, err)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	in := sample(3)

	_, err := s.WriteBars(ctx, "MSFT", 1, in)
	require.NoError(t, err)
	in[2].Close = 99
	in[2].Low = 98
	_, err = s.WriteBars(ctx, "MSFT", 1, in)
	require.NoError(t, err)

	got, err := s.FetchBars(ctx, model.BarQuery{Symbol: "MSFT", Timeframe: 1, Limit: 100})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 99.0, got[2].Close)

	last, err := s.LastTimestamp(ctx, "MSFT", 1)
	require.NoError(t, err)
	assert.Equal(t, in[2].TS, last)
}

func TestStore_NotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.FetchBars(context.Background(), model.BarQuery{Symbol: "NOPE", Timeframe: 5, Limit: 10})
	assert.True(t, errors.Is(err, bars.ErrNotFound))

	last, err := s.LastTimestamp(context.Background(), "NOPE", 5)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestStore_SymbolsAndPing(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	_, err := s.WriteBars(ctx, "TSLA", 5, sample(2))
	require.NoError(t, err)
	_, err = s.WriteBars(ctx, "AAPL", 5, sample(2))
	require.NoError(t, err)

	syms, err := s.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TSLA"}, syms)
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_SubSecondBarsKept(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	in := []model.Bar{
		{TS: t0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{TS: t0.Add(500 * time.Millisecond), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 12},
	}

	n, err := s.WriteBars(ctx, "BTC", 1, in)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.FetchBars(ctx, model.BarQuery{Symbol: "BTC", Timeframe: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestStore_FetchAsOf(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	in := sample(400)
	_, err := s.WriteBars(ctx, "AAPL", 5, in)
	require.NoError(t, err)

	at := 1440
	got, err := s.FetchBars(ctx, model.BarQuery{Symbol: "AAPL", Timeframe: 5, Limit: 10, Day: 20240506, Minute: &at})
	require.NoError(t, err)
	assert.Equal(t, in[:3], got, "bars through 14:40 inclusive")

	got, err = s.FetchBars(ctx, model.BarQuery{Symbol: "AAPL", Timeframe: 5, Limit: 10, Day: 20240506})
	require.NoError(t, err)
	assert.Equal(t, in[104:114], got, "last bars of the day")

	_, err = s.FetchBars(ctx, model.BarQuery{Symbol: "AAPL", Timeframe: 5, Limit: 10, Day: 20240505})
	assert.True(t, errors.Is(err, bars.ErrNotFound))
}
