package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analysis service.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec // labels: op, status

	// Core engines
	ComputeDur          prometheus.Histogram
	DetectDur           prometheus.Histogram
	IndicatorsTotal     prometheus.Counter
	IndicatorFailures   *prometheus.CounterVec // labels: kind
	PatternMatchesTotal prometheus.Counter

	// Bar source
	BarFetchDur    *prometheus.HistogramVec // labels: source
	BarFetchErrors *prometheus.CounterVec   // labels: source

	// Result cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Agent-protocol sessions
	WSSessions prometheus.Gauge
}

// NewMetrics creates all collectors and registers them with reg
// (the default registerer when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_requests_total",
			Help: "Analysis requests by operation and outcome",
		}, []string{"op", "status"}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taengine_indicator_compute_duration_seconds",
			Help:    "Batch indicator compute latency",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		DetectDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taengine_pattern_detect_duration_seconds",
			Help:    "Pattern detection latency per series",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		IndicatorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_indicators_total",
			Help: "Indicator series computed successfully",
		}),
		IndicatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_indicator_failures_total",
			Help: "Indicator requests that failed, by error kind",
		}, []string{"kind"}),
		PatternMatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_pattern_matches_total",
			Help: "Pattern matches reported",
		}),

		BarFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taengine_bar_fetch_duration_seconds",
			Help:    "Bar source fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		BarFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_bar_fetch_errors_total",
			Help: "Bar source fetch failures",
		}, []string{"source"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_cache_hits_total",
			Help: "Result cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_cache_misses_total",
			Help: "Result cache misses (including circuit-open skips)",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taengine_ws_sessions",
			Help: "Open agent-protocol WebSocket sessions",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.ComputeDur,
		m.DetectDur,
		m.IndicatorsTotal,
		m.IndicatorFailures,
		m.PatternMatchesTotal,
		m.BarFetchDur,
		m.BarFetchErrors,
		m.CacheHits,
		m.CacheMisses,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSSessions,
	)

	return m
}

// Pinger is a dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus tracks dependency liveness for /healthz and /api/v1/health.
type HealthStatus struct {
	mu sync.RWMutex

	redisChecked   bool
	RedisConnected bool
	RedisLatencyMs float64

	sourceChecked   bool
	SourceKind      string
	SourceOK        bool
	SourceLatencyMs float64

	LastCheckAt time.Time
	StartedAt   time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(sourceKind string) *HealthStatus {
	return &HealthStatus{
		SourceKind: sourceKind,
		StartedAt:  time.Now(),
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.redisChecked = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSource pings the bar source and records latency + health.
func (h *HealthStatus) CheckSource(ctx context.Context, src Pinger) {
	start := time.Now()
	err := src.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.sourceChecked = true
	h.SourceOK = err == nil
	h.SourceLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, src Pinger, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if src != nil {
			h.CheckSource(probeCtx, src)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// Report is the JSON body of the health endpoints.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	SourceKind      string  `json:"source_kind"`
	SourceOK        bool    `json:"source_ok"`
	SourceLatencyMs float64 `json:"source_latency_ms"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	LastCheckAt     string  `json:"last_check_at"`
}

// Report summarizes health. A down bar source makes the service unhealthy;
// a down Redis only degrades it since results are recomputed.
func (h *HealthStatus) Report() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if h.redisChecked && !h.RedisConnected {
		status = "degraded"
	}
	if h.sourceChecked && !h.SourceOK {
		status = "unhealthy"
	}

	lastCheck := ""
	if !h.LastCheckAt.IsZero() {
		lastCheck = h.LastCheckAt.Format(time.RFC3339)
	}
	return Report{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SourceKind:      h.SourceKind,
		SourceOK:        h.SourceOK,
		SourceLatencyMs: h.SourceLatencyMs,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastCheckAt:     lastCheck,
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if rep.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server reading from gatherer
// (the default gatherer when nil).
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
