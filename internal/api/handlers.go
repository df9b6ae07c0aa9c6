package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"ta-engine/internal/logger"
	"ta-engine/internal/model"
	"ta-engine/internal/service"
)

const maxBodyBytes = 1 << 20

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Trace-Id")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case service.KindBadRequest, model.KindUnknownIndicator, model.KindUnknownPattern, model.KindInvalidParameter:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case model.KindMalformedBar, model.KindInsufficientData:
		return http.StatusUnprocessableEntity
	case service.KindSource:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := service.NewErrorBody(err)
	status := statusFor(body.Kind)
	if status >= 500 {
		slog.Error("request failed", append(logger.LogWithTrace(r.Context()), "path", r.URL.Path, "error", err)...)
	}
	writeJSON(w, status, body)
}

// withTrace attaches the caller's X-Trace-Id, or a new one, to the request.
func withTrace(r *http.Request) *http.Request {
	ctx := r.Context()
	if tid := r.Header.Get("X-Trace-Id"); tid != "" {
		ctx = logger.WithTraceID(ctx, tid)
	}
	ctx, _ = logger.EnsureTraceID(ctx)
	return r.WithContext(ctx)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.Join(service.ErrBadQuery, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	rep := s.health.Report()
	status := http.StatusOK
	if rep.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

func (s *Server) handleListIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Indicators().List())
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Patterns().List())
}

// calculationRequest accepts indicators as {"name":{params}} or as a list of specs.
type calculationRequest struct {
	service.Query
	Indicators json.RawMessage `json:"indicators"`
}

func (s *Server) handleCalculations(w http.ResponseWriter, r *http.Request) {
	r = withTrace(r)
	var req calculationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.tools.computeIndicators(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// per-indicator failures travel inside the report
	writeJSON(w, http.StatusOK, rep)
}

type detectionRequest struct {
	service.Query
	Patterns []string `json:"patterns,omitempty"`
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	r = withTrace(r)
	var req detectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.analyzer.DetectPatterns(r.Context(), req.Query, req.Patterns)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	r = withTrace(r)
	q := service.Query{Symbol: r.PathValue("symbol")}
	params := r.URL.Query()
	var minute int
	for name, dst := range map[string]*int{"limit": &q.Limit, "timeframe": &q.Timeframe, "day": &q.Day, "minute": &minute} {
		raw := params.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, errors.Join(service.ErrBadQuery, errors.New(name+" must be an integer")))
			return
		}
		*dst = v
	}
	if params.Has("minute") {
		q.Minute = &minute
	}

	series, _, err := s.analyzer.Bars(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series.Bars())
}
