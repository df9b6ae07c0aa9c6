package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-engine/internal/bars"
	"ta-engine/internal/indicator"
	"ta-engine/internal/metrics"
	"ta-engine/internal/model"
)

type fakeSource struct {
	bars   []model.Bar
	err    error
	calls  int
	last   model.BarQuery
	closed bool
}

func (f *fakeSource) FetchBars(_ context.Context, q model.BarQuery) ([]model.Bar, error) {
	f.calls++
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	n := min(q.Limit, len(f.bars))
	return f.bars[len(f.bars)-n:], nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = payload
}

func (c *memCache) Close() error { return errors.New("cache close failed") }

func wave(n int) []model.Bar {
	t0 := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	out := make([]model.Bar, n)
	for i := range out {
		o := 100 + 5*math.Sin(float64(i)/3)
		c := 100 + 5*math.Sin(float64(i+1)/3)
		out[i] = model.Bar{
			TS:   t0.Add(time.Duration(i) * time.Minute),
			Open: o, Close: c,
			High: math.Max(o, c) + 0.4, Low: math.Min(o, c) - 0.3,
			Volume: 1000 + float64(i),
		}
	}
	return out
}

func newAnalyzer(src model.BarSource, cache model.ResultCache) (*Analyzer, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	return New(Options{Source: src, SourceKind: "fake", Cache: cache, Metrics: m, DefaultLimit: 50, MaxLimit: 80, DetectWorkers: 4}), reg
}

// counterTotal sums every series of the named counter family.
func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestAnalyzer_ComputeIndicators(t *testing.T) {
	src := &fakeSource{bars: wave(120)}
	a, _ := newAnalyzer(src, nil)

	rep, err := a.ComputeIndicators(context.Background(), Query{Symbol: " aapl "}, []indicator.Spec{
		{Name: "rsi", Params: map[string]any{"length": 14.0}},
		{Name: "nope"},
		{Name: "sma", Params: map[string]any{"length": 500.0}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.BarQuery{Symbol: "AAPL", Limit: 50, Timeframe: 1}, src.last)
	assert.Equal(t, "AAPL", rep.Symbol)
	assert.Equal(t, 50, rep.Bars)
	assert.False(t, rep.Cached)

	rsi := rep.Results["rsi"]
	require.Nil(t, rsi.Error)
	assert.Len(t, rsi.Values, 50)
	require.NotNil(t, rsi.Last)
	assert.Equal(t, 14, rsi.Params["length"])

	assert.Equal(t, model.KindUnknownIndicator, rep.Results["nope"].Error.Kind)
	assert.Equal(t, model.KindInsufficientData, rep.Results["sma"].Error.Kind)
}

func TestAnalyzer_LimitClamped(t *testing.T) {
	src := &fakeSource{bars: wave(120)}
	a, _ := newAnalyzer(src, nil)

	_, _, err := a.Bars(context.Background(), Query{Symbol: "X", Limit: 1000, Timeframe: 5})
	require.NoError(t, err)
	assert.Equal(t, 80, src.last.Limit)
	assert.Equal(t, 5, src.last.Timeframe)
}

func TestAnalyzer_BadQuery(t *testing.T) {
	a, _ := newAnalyzer(&fakeSource{}, nil)
	_, _, err := a.Bars(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrBadQuery)
	_, _, err = a.Bars(context.Background(), Query{Symbol: "X", Limit: -1})
	assert.ErrorIs(t, err, ErrBadQuery)
}

func TestAnalyzer_SourceErrors(t *testing.T) {
	a, reg := newAnalyzer(&fakeSource{err: bars.ErrNotFound}, nil)
	_, err := a.ComputeIndicators(context.Background(), Query{Symbol: "X"}, []indicator.Spec{{Name: "rsi"}})
	assert.ErrorIs(t, err, bars.ErrNotFound)
	assert.Equal(t, 1.0, counterTotal(t, reg, "taengine_bar_fetch_errors_total"))
	assert.Equal(t, 1.0, counterTotal(t, reg, "taengine_requests_total"))

	empty, _ := newAnalyzer(&fakeSource{bars: nil}, nil)
	_, err = empty.DetectPatterns(context.Background(), Query{Symbol: "X"}, nil)
	assert.ErrorIs(t, err, bars.ErrNotFound)
}

func TestAnalyzer_MalformedBars(t *testing.T) {
	bad := wave(10)
	bad[4].High = bad[4].Low - 1
	a, _ := newAnalyzer(&fakeSource{bars: bad}, nil)

	_, err := a.ComputeIndicators(context.Background(), Query{Symbol: "X"}, []indicator.Spec{{Name: "rsi"}})
	var mb *model.MalformedBarError
	require.ErrorAs(t, err, &mb)
	assert.Equal(t, 4, mb.Index)
	assert.Equal(t, model.KindMalformedBar, NewErrorBody(err).Kind)
}

func TestAnalyzer_CacheHit(t *testing.T) {
	src := &fakeSource{bars: wave(60)}
	cache := newMemCache()
	a, _ := newAnalyzer(src, cache)
	ctx := context.Background()
	specs := []indicator.Spec{{Name: "ema", Params: map[string]any{"length": 5.0}}}

	first, err := a.ComputeIndicators(ctx, Query{Symbol: "X"}, specs)
	require.NoError(t, err)
	second, err := a.ComputeIndicators(ctx, Query{Symbol: "X"}, specs)
	require.NoError(t, err)

	assert.Equal(t, 1, cache.sets)
	assert.True(t, second.Cached)
	// warm-up NaNs survive the round trip
	assert.True(t, math.IsNaN(second.Results["ema"].Values[0]))
	assert.Equal(t, first.Results["ema"].Values[10], second.Results["ema"].Values[10])
	// bars are always fetched; the cache key includes the last bar
	assert.Equal(t, 2, src.calls)

	src.bars = wave(61)
	third, err := a.ComputeIndicators(ctx, Query{Symbol: "X"}, specs)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, cache.sets)
}

func TestAnalyzer_CacheMissOnRevisedBar(t *testing.T) {
	src := &fakeSource{bars: wave(40)}
	cache := newMemCache()
	a, _ := newAnalyzer(src, cache)
	ctx := context.Background()
	specs := []indicator.Spec{{Name: "sma", Params: map[string]any{"length": 3.0}}}

	first, err := a.ComputeIndicators(ctx, Query{Symbol: "X"}, specs)
	require.NoError(t, err)

	// the still-forming last bar is updated in place: same timestamp, same count
	src.bars[len(src.bars)-1].Close += 50
	src.bars[len(src.bars)-1].High += 50

	second, err := a.ComputeIndicators(ctx, Query{Symbol: "X"}, specs)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, first.LastTimestamp, second.LastTimestamp)
	assert.InDelta(t, *first.Results["sma"].Last+50.0/3, *second.Results["sma"].Last, 1e-9)

	pats, err := a.DetectPatterns(ctx, Query{Symbol: "X"}, nil)
	require.NoError(t, err)
	src.bars[len(src.bars)-1].Close -= 50
	again, err := a.DetectPatterns(ctx, Query{Symbol: "X"}, nil)
	require.NoError(t, err)
	assert.False(t, pats.Cached)
	assert.False(t, again.Cached)
}

func TestAnalyzer_PointInTimeQuery(t *testing.T) {
	src := &fakeSource{bars: wave(60)}
	a, _ := newAnalyzer(src, nil)
	ctx := context.Background()
	at := 930

	_, _, err := a.Bars(ctx, Query{Symbol: "X", Day: 20240506, Minute: &at})
	require.NoError(t, err)
	assert.Equal(t, 20240506, src.last.Day)
	require.NotNil(t, src.last.Minute)
	assert.Equal(t, 930, *src.last.Minute)

	bad := 1275
	for _, q := range []Query{
		{Symbol: "X", Minute: &at},
		{Symbol: "X", Day: 20241350},
		{Symbol: "X", Day: 20240506, Minute: &bad},
	} {
		_, _, err := a.Bars(ctx, q)
		assert.ErrorIs(t, err, ErrBadQuery, "%+v", q)
		assert.Equal(t, KindBadRequest, ErrorKind(err))
	}
	assert.Equal(t, 1, src.calls)
}

func TestAnalyzer_DetectPatterns(t *testing.T) {
	src := &fakeSource{bars: wave(80)}
	cache := newMemCache()
	a, _ := newAnalyzer(src, cache)
	ctx := context.Background()

	rep, err := a.DetectPatterns(ctx, Query{Symbol: "X", Limit: 80}, nil)
	require.NoError(t, err)
	require.NotNil(t, rep.Patterns)
	for i := 1; i < len(rep.Patterns); i++ {
		assert.LessOrEqual(t, rep.Patterns[i-1].EndIndex, rep.Patterns[i].EndIndex)
	}

	again, err := a.DetectPatterns(ctx, Query{Symbol: "X", Limit: 80}, nil)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, len(rep.Patterns), len(again.Patterns))

	named, err := a.DetectPatterns(ctx, Query{Symbol: "X", Limit: 80}, []string{"doji"})
	require.NoError(t, err)
	for _, m := range named.Patterns {
		assert.Equal(t, "doji", m.Name)
	}

	_, err = a.DetectPatterns(ctx, Query{Symbol: "X"}, []string{"kicker"})
	var up *model.UnknownPatternError
	assert.ErrorAs(t, err, &up)
}

func TestAnalyzer_CloseCombinesErrors(t *testing.T) {
	src := &fakeSource{}
	a, _ := newAnalyzer(src, newMemCache())
	err := a.Close()
	assert.True(t, src.closed)
	assert.EqualError(t, err, "cache close failed")
}

func TestIndicatorReport_JSON(t *testing.T) {
	a, _ := newAnalyzer(&fakeSource{bars: wave(30)}, nil)
	rep, err := a.ComputeIndicators(context.Background(), Query{Symbol: "X"}, []indicator.Spec{{Name: "sma", Params: map[string]any{"length": 3.0}}})
	require.NoError(t, err)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	vals := generic["results"].(map[string]any)["sma"].(map[string]any)["values"].([]any)
	assert.Nil(t, vals[0])
	assert.NotNil(t, vals[2])
}

func TestErrorKind(t *testing.T) {
	a, _ := newAnalyzer(&fakeSource{err: errors.New("connection refused")}, nil)
	_, _, err := a.Bars(context.Background(), Query{Symbol: "X"})
	assert.ErrorIs(t, err, ErrSource)
	assert.Equal(t, KindSource, ErrorKind(err))
	assert.Contains(t, err.Error(), "connection refused")

	assert.Equal(t, KindBadRequest, ErrorKind(ErrBadQuery))
	assert.Equal(t, KindNotFound, ErrorKind(bars.ErrNotFound))
	assert.Equal(t, model.KindUnknownIndicator, ErrorKind(&model.UnknownIndicatorError{Name: "x"}))
	assert.Equal(t, KindInternal, ErrorKind(errors.New("boom")))
}
