// Package api provides the REST and agent-protocol WebSocket handlers of the
// analysis service.
package api

import (
	"net/http"

	"ta-engine/internal/metrics"
	"ta-engine/internal/service"
)

// Server holds the dependencies shared by every handler.
type Server struct {
	analyzer *service.Analyzer
	health   *metrics.HealthStatus
	metrics  *metrics.Metrics
	tools    *Tools
}

// NewRouter sets up the HTTP routes. health and m may be nil.
func NewRouter(a *service.Analyzer, health *metrics.HealthStatus, m *metrics.Metrics) *http.ServeMux {
	s := &Server{analyzer: a, health: health, metrics: m, tools: NewTools(a)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Catalogs
	mux.HandleFunc("GET /api/v1/indicators", s.handleListIndicators)
	mux.HandleFunc("GET /api/v1/candlesticks", s.handleListPatterns)

	// Compute
	mux.HandleFunc("POST /api/v1/indicators/calculations", s.handleCalculations)
	mux.HandleFunc("POST /api/v1/candlesticks/detections", s.handleDetections)

	// Data access
	mux.HandleFunc("GET /api/v1/bars/{symbol}", s.handleBars)

	// Agent protocol
	mux.HandleFunc("GET /api/v1/ws", s.handleWS)

	mux.HandleFunc("OPTIONS /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}
