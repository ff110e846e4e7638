// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/lockfile"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/state"
	"github.com/starford/ansuz/internal/syncservice"
	"github.com/starford/ansuz/internal/watch"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

// RunSync performs a single batch sync pass and exits.
// A second instance holding the lock makes this a silent no-op, so cron-style
// schedulers cannot overlap runs.
func RunSync(ctx context.Context, opts ...Option) error {
	_, cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	lock, err := lockfile.TryAcquire(cfg.State.LockPath)
	if errors.Is(err, lockfile.ErrHeld) {
		logger.Info("another instance is running, exiting")
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release() //nolint:errcheck

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close()

	r := newRunner(store, cfg, logger)
	report, err := r.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sync completed",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.String("cursor", report.Cursor))
	return nil
}

// RunServe runs periodic sync passes and serves the status API until
// interrupted.
func RunServe(ctx context.Context, opts ...Option) error {
	app, cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	lock, err := lockfile.TryAcquire(cfg.State.LockPath)
	if errors.Is(err, lockfile.ErrHeld) {
		return fmt.Errorf("another instance is running")
	}
	if err != nil {
		return err
	}
	defer lock.Release() //nolint:errcheck

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close()

	runner := newRunner(store, cfg, logger)
	svc := syncservice.NewService(store, runner)
	broker := sse.NewBroker()
	defer broker.Close()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Duration("interval", cfg.Sync.Interval()))

	g, gCtx := errgroup.WithContext(ctx)

	// Periodic sync loop: one pass at startup, then one per interval.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Sync.Interval())
		defer ticker.Stop()
		for {
			report, err := svc.TriggerSync(gCtx)
			if err != nil {
				logger.Error("scheduled sync failed", slog.String("error", err.Error()))
			}
			if report != nil {
				broker.PublishRun(report)
			}
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	// Reload config on file change; the new settings apply to later runs.
	if app.configPath != "" {
		g.Go(func() error {
			return watch.File(gCtx, app.configPath, logger, func() {
				fresh := NewDefaultConfig()
				if err := pkgconfig.Load(app.configPath, fresh); err != nil {
					logger.Warn("config reload failed", slog.String("error", err.Error()))
					return
				}
				runner.swapConfig(fresh)
				logger.Info("config reloaded", slog.String("path", app.configPath))
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP stdio transport. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close()

	runner := newRunner(store, cfg, logger)
	svc := syncservice.NewService(store, runner)

	return mcpserver.New(svc).ServeStdio()
}

// setup applies options and initialises the logger shared by sync and serve.
func setup(opts []Option) (*application, *Config, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("source_repo", cfg.Source.Repo),
		slog.String("dest_repo", cfg.Dest.Repo),
		slog.String("state_path", cfg.State.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return app, cfg, logger, nil
}
