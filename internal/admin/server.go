// Package admin serves a read-mostly HTTP view of a running container:
// health, metrics, the flattened registry and the live module tree.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	featurea "github.com/featurea/featurea-go"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Options configures a Server. Only Addr is required for Run.
type Options struct {
	Addr           string
	AllowedOrigins []string

	// Gatherer backs GET /metrics. Nil serves prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP request collectors. Nil disables them.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// Server wraps the chi router and the container it exposes.
type Server struct {
	router    *chi.Mux
	container *featurea.Container
	gatherer  prometheus.Gatherer
	metrics   *httpMetrics
	logger    *slog.Logger
	addr      string
}

// NewServer builds the router. It fails only when the HTTP collectors cannot
// be registered.
func NewServer(c *featurea.Container, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	srv := &Server{
		router:    chi.NewRouter(),
		container: c,
		gatherer:  gatherer,
		logger:    logger,
		addr:      opts.Addr,
	}

	if opts.Registerer != nil {
		m, err := newHTTPMetrics(opts.Registerer)
		if err != nil {
			return nil, err
		}
		srv.metrics = m
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	if srv.metrics != nil {
		srv.router.Use(srv.metrics.middleware)
	}
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv, nil
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler(s.gatherer))

	s.router.Get("/v1/registry", s.handleGetRegistry)
	s.router.Post("/v1/proxies/{key}", s.handleProvideProxy)

	s.router.Route("/v1/modules", func(r chi.Router) {
		r.Get("/", s.handleListModules)
		r.Get("/{name}", s.handleGetModule)
		r.Post("/{name}/reload", s.handleReloadModule)
	})
}

// Router returns the chi router for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("admin server shutting down")
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("admin server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
