// Command web serves the analysis API over HTTP. The server opens the store
// read-only and refuses to start when no dataset has been loaded, so every
// route it exposes is backed by real data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"cytolab/internal/analysis"
	"cytolab/internal/config"
	"cytolab/internal/infrastructure"
	"cytolab/internal/middleware"
	"cytolab/internal/store"
	transport "cytolab/internal/transport/http"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	dbPath := flag.String("db", "", "SQLite database file (defaults to data/cytolab.db relative to the working directory)")
	flag.Parse()

	if err := run(*dbPath); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(dbPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(Version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if dbPath == "" {
		paths, err := cfg.Paths.Resolve("")
		if err != nil {
			return err
		}
		dbPath = paths.DatabasePath
	}

	st, err := store.OpenReadOnly(dbPath)
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			return fmt.Errorf("store %s is not initialized: %w", dbPath, err)
		}
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	engine := analysis.New(st, logger)

	metricsMiddleware, err := middleware.Metrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("failed to initialize request metrics: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	if cfg.Limits.Enabled {
		r.Use(middleware.RateLimit(cfg.Limits.RPS, cfg.Limits.Burst))
	}

	r.Mount("/api/analysis", transport.NewAnalysisHandler(engine, logger).Routes())
	r.Method(http.MethodGet, "/healthz", transport.NewHealthHandler(st.Path(), Version))
	r.Method(http.MethodGet, "/metrics", providers.PrometheusHTTP)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			slog.Int("port", cfg.Server.Port),
			slog.String("database", dbPath),
			slog.String("version", Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
