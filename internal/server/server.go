// Package server exposes the kiosk page and run state over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/slotwatch/internal/runlog"
	"github.com/hazyhaar/slotwatch/internal/scrape"
)

// Source is what the server reads from. The watcher implements it.
type Source interface {
	// LastPage is the most recently rendered page.
	LastPage() ([]byte, bool)
	// LastResult is the most recent finished run.
	LastResult() (scrape.Result, bool)
	Recent(ctx context.Context, n int) ([]runlog.Entry, error)
	// Refresh asks for a run as soon as possible. It reports false when a
	// request is already pending.
	Refresh() bool
}

// ErrNoHistory is returned by Source.Recent when no run log is configured.
var ErrNoHistory = errors.New("server: run history disabled")

// Server is the HTTP surface.
type Server struct {
	src      Source
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server reading from src.
func New(src Source, opts ...Option) *Server {
	s := &Server{
		src:      src,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range s.stack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/", s.handlePage)
	r.Get("/api/appointments", s.handleAppointments)
	r.Get("/api/runs", s.handleRuns)
	r.Post("/api/refresh", s.handleRefresh)
	return r
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	page, ok := s.src.LastPage()
	if !ok {
		http.Error(w, "no page rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(page)
}

func (s *Server) handleAppointments(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.src.LastResult()
	if !ok {
		writeError(w, 503, errors.New("no run finished yet"))
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := s.src.Recent(r.Context(), queryInt(r, "limit", 20))
	if errors.Is(err, ErrNoHistory) {
		writeError(w, 404, err)
		return
	}
	if err != nil {
		s.logger.Error("server: recent runs", "error", err)
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, entries)
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	queued := s.src.Refresh()
	s.logger.Info("server: refresh requested", "queued", queued)
	writeJSON(w, 202, map[string]bool{"queued": queued})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
