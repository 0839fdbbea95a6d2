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

	"github.com/starford/strikezone/internal/analysisservice"
	"github.com/starford/strikezone/internal/api"
	"github.com/starford/strikezone/internal/cachestore"
	"github.com/starford/strikezone/internal/mcpserver"
	"github.com/starford/strikezone/internal/pipeline"
	"github.com/starford/strikezone/internal/sse"
)

// sseBatchThrottle is the minimum gap between enrichment progress events per run.
const sseBatchThrottle = 500 * time.Millisecond

// stack is the set of services shared by every command.
type stack struct {
	db  *cachestore.DB
	svc *analysisservice.Service
}

func (s *stack) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens the cache and wires the pipeline. observer may be nil.
func (a *application) build(ctx context.Context, logger *slog.Logger, observer pipeline.Observer) (*stack, error) {
	cfg := a.config
	s := &stack{}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Cache.Path != "" {
		db, err := cachestore.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		s.db = db
		if cfg.Cache.TTL > 0 {
			n, err := db.Purge(ctx, time.Now().Add(-cfg.Cache.TTL))
			if err != nil {
				logger.Warn("cache purge failed", slog.String("error", err.Error()))
			} else if n > 0 {
				logger.Info("purged expired keyword metrics", slog.Int64("count", n))
			}
		}
		opts = append(opts, pipeline.WithStore(db, cfg.Cache.TTL), pipeline.WithRunRecorder(db))
	}
	if cfg.Enrichment.Configured() {
		opts = append(opts, pipeline.WithEnrichment(cfg.Enrichment.Provider(), cfg.Enrichment.ClientOptions()...))
	}
	if observer != nil {
		opts = append(opts, pipeline.WithObserver(observer))
	}

	runner, err := pipeline.New(opts...)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	var runs analysisservice.RunStore
	if s.db != nil {
		runs = s.db
	}
	s.svc = analysisservice.NewService(runner, runs, cfg.RunConfig())
	return s, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("cache_path", cfg.Cache.Path),
		slog.Bool("enrichment_configured", cfg.Enrichment.Configured()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(sseBatchThrottle)
	defer broker.Close()

	st, err := app.build(ctx, logger, broker)
	if err != nil {
		return err
	}
	defer st.close()

	apiRouter := api.NewRouter(st.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if st.db != nil {
			if err := st.db.Ping(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

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

// ServeMCP serves the MCP tools over stdio until stdin closes.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	// stdout carries the protocol.
	if app.logOutput == os.Stdout {
		app.logOutput = os.Stderr
	}
	logger := app.logger()

	st, err := app.build(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer st.close()

	logger.Info("Starting MCP server", slog.String("version", app.version))
	return mcpserver.New(st.svc, app.version).ServeStdio()
}
