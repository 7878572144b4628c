package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/config"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/listings-viewport-cache/internal/core/middleware"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/router"
)

type Deps struct {
	Viewport router.ViewportService
	Ready    health.ReadinessReporter // nil when no invalidation consumer runs
	// Metrics is mounted on the API listener when non-nil.
	Metrics     http.Handler
	MetricsPath string
}

func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Get(router.RouteViewport, router.HandleViewport(logger, d.Viewport))
	r.Post(router.RouteInvalidate, router.HandleInvalidate(logger, d.Viewport))
	r.Get(router.RouteCacheInfo, router.HandleCacheInfo(d.Viewport))
	return r
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return Serve(ctx, srv, logger)
}

// Serve runs srv and shuts it down gracefully when ctx is done.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
