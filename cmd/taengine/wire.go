package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ta-engine/config"
	"ta-engine/internal/bars"
	"ta-engine/internal/metrics"
	"ta-engine/internal/model"
	"ta-engine/internal/service"
	"ta-engine/internal/store/postgres"
	redisstore "ta-engine/internal/store/redis"
	"ta-engine/internal/store/sqlite"
)

// barSource is what the analyzer reads from and the health checker pings.
type barSource interface {
	model.BarSource
	metrics.Pinger
}

func openSource(ctx context.Context, cfg *config.Config) (barSource, error) {
	switch cfg.Source.Kind {
	case config.SourceSQLite:
		s, err := openSQLite(cfg.Source.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourcePostgres:
		s, err := postgres.Open(ctx, cfg.Source.PostgresDSN, slog.Default())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return bars.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.Timeout), nil
	}
}

func openSQLite(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return sqlite.Open(sqlite.Config{DBPath: path})
}

// openCache returns nil when caching is disabled or Redis is unreachable;
// analysis then always recomputes.
func openCache(cfg *config.Config, m *metrics.Metrics) *redisstore.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	c, err := redisstore.NewCache(redisstore.CacheConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		slog.Warn("result cache disabled", "addr", cfg.Redis.Addr, "error", err)
		return nil
	}
	if m != nil {
		c.OnHit = m.CacheHits.Inc
		c.OnMiss = m.CacheMisses.Inc
		c.Breaker().OnStateChange = func(from, to redisstore.State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
		}
	}
	return c
}

func newAnalyzer(cfg *config.Config, src barSource, cache *redisstore.Cache, m *metrics.Metrics) *service.Analyzer {
	opts := service.Options{
		Source:        src,
		SourceKind:    cfg.Source.Kind,
		CacheTTL:      cfg.Cache.TTL,
		Metrics:       m,
		DefaultLimit:  cfg.Bars.DefaultLimit,
		MaxLimit:      cfg.Bars.MaxLimit,
		DetectWorkers: cfg.DetectWorkers,
	}
	// a nil *Cache must not become a non-nil interface
	if cache != nil {
		opts.Cache = cache
	}
	return service.New(opts)
}
