// Package server exposes the claim pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/claim"
)

// Server routes HTTP requests to the pipeline and the store.
type Server struct {
	router chi.Router
	store  store.Store
	orch   *claimgraph.Orchestrator
	logger *slog.Logger

	name           string
	version        string
	maxRetries     int
	requestTimeout time.Duration
	checkpoints    checkpoint.Store
	claimOpts      []claim.Option
}

// Option configures a Server.
type Option func(*Server)

// WithInfo sets the name and version reported by GET /.
func WithInfo(name, version string) Option {
	return func(s *Server) { s.name, s.version = name, version }
}

// WithDefaultMaxRetries is used when an analyze request omits max_retries.
func WithDefaultMaxRetries(n int) Option {
	return func(s *Server) { s.maxRetries = n }
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithCheckpoints snapshots every analyze run into cs.
func WithCheckpoints(cs checkpoint.Store) Option {
	return func(s *Server) { s.checkpoints = cs }
}

// WithClaimOptions passes pricing and currency settings to claim assembly.
func WithClaimOptions(opts ...claim.Option) Option {
	return func(s *Server) { s.claimOpts = append(s.claimOpts, opts...) }
}

// New builds the router.
func New(st store.Store, orch *claimgraph.Orchestrator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:          st,
		orch:           orch,
		logger:         logger,
		name:           "claimgraph",
		version:        "dev",
		maxRetries:     3,
		requestTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(s.requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "claimgraph")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/generate-claim", s.handleGenerateClaim)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
