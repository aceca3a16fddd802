package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/loader"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/metrics"
)

// Record is kept opaque; the API relays whatever the source returns.
type Record = json.RawMessage

type loadResponse struct {
	loader.Snapshot[Record]
	Error string `json:"error,omitempty"`
}

type statsResponse struct {
	loader.Stats
	Keys []filter.CacheKey `json:"key_list"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// api exposes a Controller over HTTP.
//
//	GET    /v1/load?view=...&from=...   load the next batch
//	GET    /v1/snapshot?view=...        current snapshot, no fetch
//	DELETE /v1/load?view=...            discard the key
//	GET    /v1/stats                    loader diagnostics
//	GET    /health, /metrics
type api struct {
	ctrl   *loader.Controller[Record]
	logger zerolog.Logger
}

func newAPI(ctrl *loader.Controller[Record]) *api {
	return &api{ctrl: ctrl, logger: logging.NewLogger(logging.ComponentAPI)}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/load", a.handleLoad)
	mux.HandleFunc("GET /v1/snapshot", a.handleSnapshot)
	mux.HandleFunc("DELETE /v1/load", a.handleDiscard)
	mux.HandleFunc("GET /v1/stats", a.handleStats)
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	return a.logRequests(mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (a *api) handleLoad(w http.ResponseWriter, r *http.Request) {
	fs, ok := a.filters(w, r)
	if !ok {
		return
	}

	snap, err := a.ctrl.LoadMore(r.Context(), fs)
	if err != nil {
		status := statusFor(err)
		if snap.Key == "" {
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, status, loadResponse{Snapshot: snap, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Snapshot: snap, Error: snap.ErrorMessage()})
}

func (a *api) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	fs, ok := a.filters(w, r)
	if !ok {
		return
	}

	snap, err := a.ctrl.Snapshot(fs)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Snapshot: snap, Error: snap.ErrorMessage()})
}

func (a *api) handleDiscard(w http.ResponseWriter, r *http.Request) {
	fs, ok := a.filters(w, r)
	if !ok {
		return
	}

	if !a.ctrl.Discard(fs) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "key not loaded"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{Stats: a.ctrl.Stats(), Keys: a.ctrl.Keys()})
}

// filters parses the request filters, answering 400 on failure.
func (a *api) filters(w http.ResponseWriter, r *http.Request) (filter.FilterSet, bool) {
	values := r.URL.Query()
	fs, err := parseFilters(values.Get("view"), values)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return filter.FilterSet{}, false
	}
	return fs, true
}

// statusFor maps loader errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, filter.ErrInvalidRange),
		errors.Is(err, filter.ErrMissingNamespace),
		errors.Is(err, filter.ErrMalformedKey):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetch.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, loader.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, fetch.ErrCancelled):
		// Client went away; nobody reads the status.
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}
