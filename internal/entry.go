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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starford/sowilo/internal/api"
	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/inbox"
	"github.com/starford/sowilo/internal/mcpserver"
	"github.com/starford/sowilo/internal/sse"
	"github.com/starford/sowilo/internal/storage"
	"github.com/starford/sowilo/internal/workspace"
)

// stack is the storage shared by every entry point.
type stack struct {
	db *docstore.DB
	ws *workspace.Workspace
}

func (a *application) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

func openStack(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...workspace.Option) (*stack, error) {
	store, err := storage.NewFS(cfg.Storage.DraftsDir, cfg.Storage.QuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := docstore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init docstore: %w", err)
	}

	opts = append([]workspace.Option{
		workspace.WithEditorConfig(cfg.Editor.ToEditor()),
		workspace.WithLogger(logger),
		workspace.WithContext(ctx),
	}, opts...)
	return &stack{db: db, ws: workspace.New(db, store, opts...)}, nil
}

func (s *stack) close(ctx context.Context, logger *slog.Logger) {
	if err := s.ws.CloseAll(ctx); err != nil {
		logger.Error("flush designs failed", slog.String("error", err.Error()))
	}
	if err := s.db.Close(); err != nil {
		logger.Error("close docstore failed", slog.String("error", err.Error()))
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("drafts_dir", cfg.Storage.DraftsDir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("inbox", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.App.HTTP.SSEThrottle)
	defer broker.Close()

	st, err := openStack(ctx, cfg, logger, workspace.WithNotifier(broker.Notifier()))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st.close(shutdownCtx, logger)
	}()

	if n, err := st.ws.Sweep(); err != nil {
		logger.Warn("initial draft sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("initial draft sweep", slog.Int("removed", n))
	}

	apiRouter := api.NewRouter(st.ws, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := st.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	// Periodic draft cleanup.
	scheduler := cron.New()
	if cfg.Editor.SweepSchedule != "" {
		if _, err := scheduler.AddFunc(cfg.Editor.SweepSchedule, func() {
			if _, err := st.ws.Sweep(); err != nil {
				logger.Warn("draft sweep failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return fmt.Errorf("schedule draft sweep: %w", err)
		}
	}
	scheduler.Start()

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Import HTML files dropped into the inbox.
	if cfg.Inbox.Enabled {
		g.Go(func() error {
			return inbox.Watch(gCtx, st.ws, st.db, cfg.Inbox.Dir, logger, func(id, path string) {
				logger.Info("inbox: design imported", slog.String("design_id", id), slog.String("path", path))
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

		<-scheduler.Stop().Done()

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

// RunMCP serves the MCP tools on stdin/stdout until the client hangs up.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()
	slog.SetDefault(logger)

	st, err := openStack(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer st.close(context.Background(), logger)

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(st.ws).ServeStdio()
}

// Export renders a stored design as html, markdown or outline text.
func Export(ctx context.Context, designID, format string, opts ...Option) (string, error) {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return "", fmt.Errorf("config is required")
	}
	logger := app.logger()

	st, err := openStack(ctx, app.config, logger)
	if err != nil {
		return "", err
	}
	defer st.close(ctx, logger)

	ed, err := st.ws.Open(ctx, designID)
	if err != nil {
		return "", err
	}
	return ed.ExportHTML(format)
}
