package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cast"
	"github.com/urfave/cli/v3"

	"github.com/starford/lorekeeper/internal"
	"github.com/starford/lorekeeper/internal/chat"
	"github.com/starford/lorekeeper/internal/prompt"
	pkgconfig "github.com/starford/lorekeeper/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOrDefault(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if user := cmd.String("user"); user != "" {
		cfg.MCP.UserID = user
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func render(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	chatID := cmd.String("chat")
	if chatID == "" {
		chatID = uuid.NewString()
	}
	hints, err := requestHints(cmd)
	if err != nil {
		return err
	}
	vars, err := variables(cmd.StringSlice("var"))
	if err != nil {
		return err
	}

	req := chat.Request{
		UserID:    cmd.String("user"),
		ChatID:    chatID,
		AgentID:   cmd.String("agent"),
		Hints:     hints,
		Variables: vars,
	}
	if cmd.IsSet("tool") {
		req.AllowedTools = append([]string{}, cmd.StringSlice("tool")...)
	}
	return internal.Render(ctx, os.Stdout, internal.RenderOptions{Request: req, JSON: cmd.Bool("json")}, internal.WithConfig(cfg))
}

func importVault(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Import(ctx, cmd.String("dir"), cmd.String("user"), internal.WithConfig(cfg))
}

func exportVault(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Export(ctx, cmd.String("dir"), cmd.String("user"), internal.WithConfig(cfg))
}

func requestHints(cmd *cli.Command) (prompt.RequestHints, error) {
	h := prompt.RequestHints{City: cmd.String("city"), Country: cmd.String("country")}
	for name, dst := range map[string]**float64{"lat": &h.Latitude, "lon": &h.Longitude} {
		raw := cmd.String(name)
		if raw == "" {
			continue
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return h, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
		}
		*dst = &v
	}
	return h, nil
}

func variables(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q: want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func userFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   usage,
		Value:   "local",
		Sources: cli.EnvVars("LOREKEEPER_USER"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "lorekeeper",
		Usage:  "Per-user knowledge archive and system-prompt composer for LLM assistants",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:  "mcp",
				Usage: "Serve the archive tools over MCP stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Override mcp.user_id"},
				},
				Action: serveMCP,
			},
			{
				Name:  "render",
				Usage: "Print the system prompt for a chat",
				Flags: []cli.Flag{
					userFlag("User whose pins are injected"),
					&cli.StringFlag{Name: "chat", Usage: "Chat id (random when empty)"},
					&cli.StringFlag{Name: "agent", Usage: "Agent id from the catalog"},
					&cli.StringSliceFlag{Name: "tool", Usage: "Allowed tool (repeatable); omit to allow all"},
					&cli.StringSliceFlag{Name: "var", Usage: "Agent variable as key=value (repeatable)"},
					&cli.StringFlag{Name: "city"},
					&cli.StringFlag{Name: "country"},
					&cli.StringFlag{Name: "lat", Usage: "Latitude"},
					&cli.StringFlag{Name: "lon", Usage: "Longitude"},
					&cli.BoolFlag{Name: "json", Usage: "Print segments as JSON"},
				},
				Action: render,
			},
			{
				Name:  "import",
				Usage: "Import a Markdown vault into the archive",
				Flags: []cli.Flag{
					userFlag("Owner of the imported entries"),
					&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Vault directory", Required: true},
				},
				Action: importVault,
			},
			{
				Name:  "export",
				Usage: "Export the archive as Markdown files",
				Flags: []cli.Flag{
					userFlag("Owner of the exported entries"),
					&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Target directory", Required: true},
				},
				Action: exportVault,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
