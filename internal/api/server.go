// Package api exposes the HTTP status interface for the ingestion service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// RunSource reports the progress of the most recent ingestion run.
type RunSource interface {
	CurrentRun() (ingest.RunSummary, bool)
}

// Server wires HTTP handlers to the ingestion engine.
type Server struct {
	router chi.Router
	runs   RunSource
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runs RunSource, log *zap.Logger) *Server {
	s := &Server{runs: runs, log: log}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/{run_id}", s.getRun)
		r.Get("/runs/current", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getRun returns the progress snapshot of the current run. A run_id path
// parameter, when present, must match the current run.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.runs.CurrentRun()
	if !ok {
		writeError(w, http.StatusNotFound, "no run has started")
		return
	}
	if runID := chi.URLParam(r, "run_id"); runID != "" && runID != summary.RunID {
		writeError(w, http.StatusNotFound, "unknown run id")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
