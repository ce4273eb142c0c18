// Package api serves open experiments over HTTP.
//
// Routes under /api/v1 require the X-API-Key header. /metrics is left open
// for scraping.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the HTTP routes of server. Metrics are served from gatherer.
func NewRouter(server *Server, gatherer prometheus.Gatherer) http.Handler {
	metrics := server.metrics

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(server.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		r.Post("/experiments", metrics.InstrumentHandler("POST", "/api/v1/experiments", server.handleOpen))
		r.Get("/experiments", metrics.InstrumentHandler("GET", "/api/v1/experiments", server.handleList))
		r.Get("/experiments/{id}", metrics.InstrumentHandler("GET", "/api/v1/experiments/{id}", server.handleGetExperiment))
		r.Delete("/experiments/{id}", metrics.InstrumentHandler("DELETE", "/api/v1/experiments/{id}", server.handleClose))

		r.Get("/experiments/{id}/channels/{channel}/window",
			metrics.InstrumentHandler("GET", "/api/v1/experiments/{id}/channels/{channel}/window", server.handleWindow))
		r.Get("/experiments/{id}/channels/{channel}/stream",
			metrics.InstrumentHandler("GET", "/api/v1/experiments/{id}/channels/{channel}/stream", server.handleStream))
	})

	return r
}

// StartServer serves the API for registry until ctx is cancelled, then shuts
// down gracefully. The registry is left open for the caller to close.
func StartServer(ctx context.Context, registry *Registry, config ServerConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(reg)
	metrics.SetExperimentsOpen(registry.Len())

	server := NewServer(registry, config, metrics, logger)

	addr := net.JoinHostPort(config.Bind, fmt.Sprint(config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return serve(ctx, ln, NewRouter(server, reg), logger)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting poreread API server",
		zap.String("addr", ln.Addr().String()),
		zap.String("metrics", "http://"+ln.Addr().String()+"/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
