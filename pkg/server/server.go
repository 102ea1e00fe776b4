// Package server exposes health checks, Prometheus metrics, the leaderboard
// query endpoint and the backend migration trigger over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/migrate"
	"github.com/annel0/StatsPlugin/pkg/stats"
)

// Ranker answers leaderboard queries.
type Ranker interface {
	TopN(ctx context.Context, metric stats.Metric, limit int) ([]stats.PlayerStats, error)
}

// MigrateFunc switches the service to the named storage backend type.
type MigrateFunc func(ctx context.Context, target string) error

// Server handles health checks, metrics and admin requests.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	ranker     Ranker
	migrate    MigrateFunc
}

// New creates the observability and admin server. ranker and migrateFn may
// be nil, which disables the corresponding endpoints with 404.
func New(addr string, l *logger.Logger, ranker Ranker, migrateFn MigrateFunc) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  l,
		ranker:  ranker,
		migrate: migrateFn,
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	if ranker != nil {
		mux.HandleFunc("/top", s.handleTop)
	}
	if migrateFn != nil {
		mux.HandleFunc("/admin/migrate", s.handleMigrate)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Handler returns the route mux, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metric, err := stats.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	ranked, err := s.ranker.TopN(r.Context(), metric, limit)
	if err != nil {
		s.logger.Error("leaderboard query failed", err, zap.String("metric", metric.String()))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ranked); err != nil {
		s.logger.Error("failed to encode leaderboard response", err)
	}
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := r.URL.Query().Get("target")
	err := s.migrate(r.Context(), target)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("migration completed"))
	case errors.Is(err, migrate.ErrConcurrentMigration):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, migrate.ErrMigrationAborted):
		s.logger.Error("backend migration aborted", err, zap.String("target", target))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting observability server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
