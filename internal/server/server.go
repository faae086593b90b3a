// Package server provides the HTTP API for chikai.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/chikai/internal/config"
	"github.com/hyperjump/chikai/internal/metrics"
	"github.com/hyperjump/chikai/internal/recommend"
)

// Server is the HTTP server for the chikai API.
type Server struct {
	service  *recommend.Service
	config   *config.ServerConfig
	logger   *zap.Logger
	rebuild  func(ctx context.Context) error
	gatherer prometheus.Gatherer
	httpObs  *metrics.HTTP
	limiter  *rate.Limiter
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRebuild overrides how POST /api/v1/index/build rebuilds the index
// (for example through the scheduler so manual and scheduled builds never overlap).
func WithRebuild(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.rebuild = fn }
}

// WithBuildLimiter throttles POST /api/v1/index/build. Requests over the
// limit get 429.
func WithBuildLimiter(l *rate.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithMetrics exposes g at /metrics and records request metrics with h (may be nil).
func WithMetrics(g prometheus.Gatherer, h *metrics.HTTP) Option {
	return func(s *Server) {
		s.gatherer = g
		s.httpObs = h
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	svc *recommend.Service,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: svc,
		config:  cfg,
		logger:  logger,
		rebuild: svc.Rebuild,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.httpObs != nil {
		r.Use(s.httpObs.Middleware)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", s.handleRegisterEvent)
		r.Get("/events/{id}", s.handleGetEvent)
		r.Delete("/events/{id}", s.handleDeleteEvent)
		r.Get("/events/{id}/similar", s.handleSimilar)
		r.Post("/neighbors", s.handleNeighbors)
		r.Get("/catalog/search", s.handleCatalogSearch)
		r.Post("/index/build", s.handleBuild)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
