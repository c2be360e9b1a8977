package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/lorekeeper/internal/chat"
	"github.com/starford/lorekeeper/internal/mcpserver"
	"github.com/starford/lorekeeper/internal/storage"
	"github.com/starford/lorekeeper/internal/store"
)

// RunMCP serves the archive tools over stdio for the configured MCP user.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := app.logger()

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	mcpOpts := []mcpserver.Option{mcpserver.WithLimiter(app.limiter(db))}
	if cfg.MCP.ChatID != "" {
		mcpOpts = append(mcpOpts, mcpserver.WithChatID(cfg.MCP.ChatID))
	}
	srv := mcpserver.New(app.newArchive(db), cfg.MCP.UserID, mcpOpts...)

	logger.Info("MCP server starting", slog.String("user_id", cfg.MCP.UserID))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// RenderOptions selects what Render prints.
type RenderOptions struct {
	Request chat.Request
	// JSON prints the full prompt with its segments instead of the text.
	JSON bool
}

// Render composes one system prompt and writes it to w.
func Render(ctx context.Context, w io.Writer, ro RenderOptions, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	db, err := store.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	if _, err := app.syncAgents(ctx, db, logger); err != nil {
		return err
	}

	p, err := app.assembler(db, app.newArchive(db)).SystemPrompt(ctx, ro.Request)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if ro.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	_, err = fmt.Fprintln(w, p.Text)
	return err
}

// Import loads the Markdown vault at dir into userID's archive.
func Import(ctx context.Context, dir, userID string, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	db, err := store.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	files, err := storage.NewFS(dir)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	res, err := app.newArchive(db).Import(ctx, userID, files, logger)
	if err != nil {
		return err
	}
	logger.Info("Import finished",
		slog.String("dir", dir),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("links", res.Links),
		slog.Int("skipped", len(res.Skipped)))
	return nil
}

// Export writes userID's archive to dir as Markdown files.
func Export(ctx context.Context, dir, userID string, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	db, err := store.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	files, err := storage.NewFS(dir)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	n, err := app.newArchive(db).Export(ctx, userID, files)
	if err != nil {
		return err
	}
	logger.Info("Export finished", slog.String("dir", dir), slog.Int("entries", n))
	return nil
}
