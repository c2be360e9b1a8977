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

	"github.com/starford/lorekeeper/internal/agentprompt"
	"github.com/starford/lorekeeper/internal/api"
	"github.com/starford/lorekeeper/internal/archive"
	"github.com/starford/lorekeeper/internal/chat"
	"github.com/starford/lorekeeper/internal/prompt"
	"github.com/starford/lorekeeper/internal/ratelimit"
	"github.com/starford/lorekeeper/internal/sse"
	"github.com/starford/lorekeeper/internal/storage"
	"github.com/starford/lorekeeper/internal/store"
)

const graphThrottle = 2 * time.Second

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
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("rate_limit", cfg.RateLimit.Enabled),
		slog.String("agents_dir", cfg.Agents.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	agentFiles, err := app.syncAgents(ctx, db, logger)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(graphThrottle)
	defer broker.Close()

	svc := app.newArchive(db, archive.WithNotifier(broker))
	apiRouter := api.NewRouter(api.Deps{
		Archive: svc,
		Chat:    app.assembler(db, svc),
		Agents:  db,
		Limiter: app.limiter(db),
		Events:  broker,
	}, cfg.Auth.Middleware())

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
		if err := db.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload agent definitions.
	if agentFiles != nil && cfg.Agents.Watch {
		g.Go(func() error {
			err := agentprompt.Watch(gCtx, db, agentFiles, logger, func(c agentprompt.Change) {
				logger.Info("agents: catalog changed", slog.String("kind", c.Kind), slog.String("id", c.ID))
			})
			if err != nil {
				logger.Warn("agents: watcher stopped", slog.String("error", err.Error()))
			}
			return nil
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
		defer signal.Stop(quit)

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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// logger initializes the structured JSON logger.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func (a *application) newArchive(db *store.DB, opts ...archive.Option) *archive.Service {
	ac := a.config.Archive
	opts = append(opts,
		archive.WithSearchLimits(ac.SearchLimit, ac.MaxSearchLimit),
		archive.WithPreviewChars(ac.PreviewChars),
	)
	return archive.NewService(db, opts...)
}

func (a *application) assembler(db *store.DB, svc *archive.Service) *chat.Assembler {
	pc := a.config.Prompt
	return chat.New(db, svc, chat.WithBaseConfig(prompt.BaseConfig{
		AssistantName:    pc.AssistantName,
		Timezone:         pc.Timezone,
		PinnedEntryChars: pc.PinnedEntryChars,
		PinnedTotalChars: pc.PinnedTotalChars,
	}))
}

// limiter returns nil when rate limiting is disabled.
func (a *application) limiter(db *store.DB) *ratelimit.Limiter {
	if !a.config.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(a.config.RateLimit.Bucket(), db.Buckets())
}

// syncAgents loads the agent catalog once. It returns nil files when no
// agents directory is configured.
func (a *application) syncAgents(ctx context.Context, db *store.DB, logger *slog.Logger) (*storage.FS, error) {
	dir := a.config.Agents.Dir
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create agents dir: %w", err)
	}
	files, err := storage.NewFS(dir, storage.WithExtensions(".yaml", ".yml"))
	if err != nil {
		return nil, fmt.Errorf("init agents storage: %w", err)
	}
	changes, err := agentprompt.Sync(ctx, db, files, logger)
	if err != nil {
		logger.Warn("agents: initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("agents: catalog synced", slog.Int("changes", len(changes)))
	return files, nil
}
