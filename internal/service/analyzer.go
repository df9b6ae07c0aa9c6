// Package service glues bar sources, the indicator and pattern engines and
// the result cache into the operations served by the API and the CLI.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"ta-engine/internal/bars"
	"ta-engine/internal/indicator"
	"ta-engine/internal/logger"
	"ta-engine/internal/metrics"
	"ta-engine/internal/model"
	"ta-engine/internal/pattern"
	redisstore "ta-engine/internal/store/redis"
)

// Options configures an Analyzer. Cache and Metrics may be nil.
type Options struct {
	Indicators *indicator.Registry
	Patterns   *pattern.Registry
	Source     model.BarSource
	SourceKind string
	Cache      model.ResultCache
	CacheTTL   time.Duration
	Metrics    *metrics.Metrics

	DefaultLimit  int
	MaxLimit      int
	Timeframe     int // default minutes per bar
	DetectWorkers int
}

// Analyzer answers indicator, pattern and bar queries for one symbol at a time.
type Analyzer struct {
	opts Options
}

// New fills defaults and returns an Analyzer.
func New(opts Options) *Analyzer {
	if opts.Indicators == nil {
		opts.Indicators = indicator.DefaultRegistry()
	}
	if opts.Patterns == nil {
		opts.Patterns = pattern.DefaultRegistry()
	}
	if opts.SourceKind == "" {
		opts.SourceKind = "unknown"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 100
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 5000
	}
	if opts.Timeframe <= 0 {
		opts.Timeframe = 1
	}
	if opts.DetectWorkers <= 0 {
		opts.DetectWorkers = 1
	}
	return &Analyzer{opts: opts}
}

// Indicators returns the indicator registry.
func (a *Analyzer) Indicators() *indicator.Registry { return a.opts.Indicators }

// Patterns returns the pattern registry.
func (a *Analyzer) Patterns() *pattern.Registry { return a.opts.Patterns }

// Query selects bars. Zero Limit and Timeframe take the configured defaults.
// Day (YYYYMMDD) and Minute (HHMM) select the bars up to that point in time
// instead of the latest ones.
type Query struct {
	Symbol    string `json:"ticker"`
	Limit     int    `json:"limit,omitempty"`
	Timeframe int    `json:"timeframe,omitempty"`
	Day       int    `json:"day,omitempty"`
	Minute    *int   `json:"minute,omitempty"`
}

var (
	// ErrBadQuery reports a query that cannot be sent to a source.
	ErrBadQuery = errors.New("bad query")
	// ErrSource wraps bar source failures other than bars.ErrNotFound.
	ErrSource = errors.New("bar source unavailable")
)

// Kinds for errors raised outside the engines.
const (
	KindBadRequest = "bad_request"
	KindNotFound   = "not_found"
	KindSource     = "source_unavailable"
	KindInternal   = "internal"
)

func (a *Analyzer) normalize(q Query) (model.BarQuery, error) {
	sym := strings.TrimSpace(q.Symbol)
	if sym == "" {
		return model.BarQuery{}, fmt.Errorf("%w: ticker is required", ErrBadQuery)
	}
	if q.Limit < 0 || q.Timeframe < 0 {
		return model.BarQuery{}, fmt.Errorf("%w: limit and timeframe must be positive", ErrBadQuery)
	}
	limit := q.Limit
	if limit == 0 {
		limit = a.opts.DefaultLimit
	}
	limit = min(limit, a.opts.MaxLimit)
	tf := q.Timeframe
	if tf == 0 {
		tf = a.opts.Timeframe
	}
	bq := model.BarQuery{Symbol: strings.ToUpper(sym), Limit: limit, Timeframe: tf, Day: q.Day, Minute: q.Minute}
	if _, _, err := bq.Before(); err != nil {
		return model.BarQuery{}, fmt.Errorf("%w: %w", ErrBadQuery, err)
	}
	return bq, nil
}

// Bars fetches and validates a bar series.
func (a *Analyzer) Bars(ctx context.Context, q Query) (*model.BarSeries, model.BarQuery, error) {
	s, bq, err := a.fetch(ctx, q)
	a.count("bars", err)
	return s, bq, err
}

func (a *Analyzer) fetch(ctx context.Context, q Query) (*model.BarSeries, model.BarQuery, error) {
	bq, err := a.normalize(q)
	if err != nil {
		return nil, bq, err
	}

	start := time.Now()
	raw, err := a.opts.Source.FetchBars(ctx, bq)
	if m := a.opts.Metrics; m != nil {
		m.BarFetchDur.WithLabelValues(a.opts.SourceKind).Observe(time.Since(start).Seconds())
		if err != nil {
			m.BarFetchErrors.WithLabelValues(a.opts.SourceKind).Inc()
		}
	}
	if err != nil {
		slog.Warn("bar fetch failed", append(logger.LogWithTrace(ctx),
			"symbol", bq.Symbol, "timeframe", bq.Timeframe, "error", err)...)
		if errors.Is(err, bars.ErrNotFound) {
			return nil, bq, fmt.Errorf("fetch %s: %w", bq.Symbol, err)
		}
		return nil, bq, fmt.Errorf("fetch %s: %w: %w", bq.Symbol, ErrSource, err)
	}

	s, err := model.NewBarSeries(raw)
	if err != nil {
		return nil, bq, err
	}
	return s, bq, nil
}

// ErrorBody is the wire form of an error: a stable kind and a message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorBody classifies err by its Kind when it carries one.
func NewErrorBody(err error) *ErrorBody {
	return &ErrorBody{Kind: ErrorKind(err), Message: err.Error()}
}

// ErrorKind returns the wire kind of err.
func ErrorKind(err error) string {
	var ke model.KindError
	switch {
	case errors.As(err, &ke):
		return ke.Kind()
	case errors.Is(err, ErrBadQuery):
		return KindBadRequest
	case errors.Is(err, bars.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSource):
		return KindSource
	default:
		return KindInternal
	}
}

// IndicatorResult is one entry of an indicator batch.
type IndicatorResult struct {
	Name   string           `json:"name"`
	Params map[string]any   `json:"params,omitempty"`
	Values indicator.Values `json:"values,omitempty"`
	Last   *float64         `json:"last,omitempty"`
	Error  *ErrorBody       `json:"error,omitempty"`
}

// IndicatorReport is the answer to an indicator batch.
type IndicatorReport struct {
	Symbol        string                     `json:"ticker"`
	Timeframe     int                        `json:"timeframe"`
	Bars          int                        `json:"bars"`
	LastTimestamp time.Time                  `json:"last_timestamp"`
	Results       map[string]IndicatorResult `json:"results"`
	Cached        bool                       `json:"cached"`
}

// PatternReport is the answer to a detection request.
type PatternReport struct {
	Symbol        string          `json:"ticker"`
	Timeframe     int             `json:"timeframe"`
	Bars          int             `json:"bars"`
	LastTimestamp time.Time       `json:"last_timestamp"`
	Patterns      []pattern.Match `json:"patterns"`
	Cached        bool            `json:"cached"`
}

// ComputeIndicators fetches bars and runs the batch. Per-request failures are
// reported in the entries; only fetch and validation failures return an error.
func (a *Analyzer) ComputeIndicators(ctx context.Context, q Query, specs []indicator.Spec) (*IndicatorReport, error) {
	s, bq, err := a.fetch(ctx, q)
	if err == nil && s.Len() == 0 {
		err = fmt.Errorf("%s: %w", bq.Symbol, bars.ErrNotFound)
	}
	if err != nil {
		a.count("indicators", err)
		return nil, err
	}
	last, _ := s.Last()

	specJSON, err := json.Marshal(specs)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	key := a.cacheKey("ind", bq, s, string(specJSON))

	var rep IndicatorReport
	if a.fromCache(ctx, key, &rep) {
		rep.Cached = true
		a.count("indicators", nil)
		return &rep, nil
	}

	rep = IndicatorReport{
		Symbol: bq.Symbol, Timeframe: bq.Timeframe, Bars: s.Len(), LastTimestamp: last.TS,
		Results: a.RunIndicators(ctx, s, specs),
	}
	a.toCache(ctx, key, rep)
	a.count("indicators", nil)
	return &rep, nil
}

// RunIndicators computes specs over an already validated series.
func (a *Analyzer) RunIndicators(ctx context.Context, s *model.BarSeries, specs []indicator.Spec) map[string]IndicatorResult {
	start := time.Now()
	res := indicator.Compute(a.opts.Indicators, s, specs)
	elapsed := time.Since(start)

	out := make(map[string]IndicatorResult, len(res))
	failed := res.Failed()
	for key, o := range res {
		r := IndicatorResult{Name: o.Name}
		if o.Err != nil {
			r.Error = NewErrorBody(o.Err)
			if m := a.opts.Metrics; m != nil {
				m.IndicatorFailures.WithLabelValues(r.Error.Kind).Inc()
			}
		} else {
			r.Params = o.Params.Map()
			r.Values = o.Values
			if v, ok := o.Values.Last(); ok {
				r.Last = &v
			}
		}
		out[key] = r
	}

	if m := a.opts.Metrics; m != nil {
		m.ComputeDur.Observe(elapsed.Seconds())
		m.IndicatorsTotal.Add(float64(len(res) - len(failed)))
	}
	slog.Debug("indicators computed", append(logger.LogWithTrace(ctx),
		"requests", len(specs), "failed", failed, "bars", s.Len(), "elapsed", elapsed)...)
	return out
}

// DetectPatterns fetches bars and runs detection, restricted to names when
// non-empty.
func (a *Analyzer) DetectPatterns(ctx context.Context, q Query, names []string) (*PatternReport, error) {
	if len(names) > 0 {
		if _, err := a.opts.Patterns.Subset(names...); err != nil {
			a.count("patterns", err)
			return nil, err
		}
	}

	s, bq, err := a.fetch(ctx, q)
	if err == nil && s.Len() == 0 {
		err = fmt.Errorf("%s: %w", bq.Symbol, bars.ErrNotFound)
	}
	if err != nil {
		a.count("patterns", err)
		return nil, err
	}
	last, _ := s.Last()

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	span := strconv.Itoa(a.opts.Patterns.Validator().Span)
	key := a.cacheKey("pat", bq, s, strings.Join(sorted, ",")+"|"+span)

	var rep PatternReport
	if a.fromCache(ctx, key, &rep) {
		rep.Cached = true
		a.count("patterns", nil)
		return &rep, nil
	}

	matches, err := a.RunPatterns(ctx, s, names)
	if err != nil {
		a.count("patterns", err)
		return nil, err
	}
	rep = PatternReport{
		Symbol: bq.Symbol, Timeframe: bq.Timeframe, Bars: s.Len(), LastTimestamp: last.TS,
		Patterns: matches,
	}
	a.toCache(ctx, key, rep)
	a.count("patterns", nil)
	return &rep, nil
}

// RunPatterns detects over an already validated series.
func (a *Analyzer) RunPatterns(ctx context.Context, s *model.BarSeries, names []string) ([]pattern.Match, error) {
	start := time.Now()
	var matches []pattern.Match
	if len(names) > 0 {
		var err error
		if matches, err = pattern.DetectNamed(a.opts.Patterns, s, names); err != nil {
			return nil, err
		}
	} else {
		matches = pattern.DetectParallel(a.opts.Patterns, s, a.opts.DetectWorkers)
	}
	if matches == nil {
		matches = []pattern.Match{}
	}
	elapsed := time.Since(start)

	if m := a.opts.Metrics; m != nil {
		m.DetectDur.Observe(elapsed.Seconds())
		m.PatternMatchesTotal.Add(float64(len(matches)))
	}
	slog.Debug("patterns detected", append(logger.LogWithTrace(ctx),
		"matches", len(matches), "bars", s.Len(), "elapsed", elapsed)...)
	return matches, nil
}

// cacheKey binds a result to the exact bars it was computed from, so a bar
// the source revises in place misses the cache.
func (a *Analyzer) cacheKey(kind string, bq model.BarQuery, s *model.BarSeries, request string) string {
	return redisstore.Key(kind, bq.Symbol, strconv.Itoa(bq.Timeframe), s.Digest(), request)
}

func (a *Analyzer) fromCache(ctx context.Context, key string, dst any) bool {
	if a.opts.Cache == nil {
		return false
	}
	payload, ok := a.opts.Cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		slog.Warn("discarding undecodable cache entry", append(logger.LogWithTrace(ctx), "key", key, "error", err)...)
		return false
	}
	return true
}

func (a *Analyzer) toCache(ctx context.Context, key string, v any) {
	if a.opts.Cache == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("result not cacheable", append(logger.LogWithTrace(ctx), "key", key, "error", err)...)
		return
	}
	a.opts.Cache.Set(ctx, key, payload, a.opts.CacheTTL)
}

func (a *Analyzer) count(op string, err error) {
	if a.opts.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.opts.Metrics.RequestsTotal.WithLabelValues(op, status).Inc()
}

// Close releases the source and the cache.
func (a *Analyzer) Close() error {
	var err error
	if a.opts.Source != nil {
		err = multierr.Append(err, a.opts.Source.Close())
	}
	if a.opts.Cache != nil {
		err = multierr.Append(err, a.opts.Cache.Close())
	}
	return err
}
