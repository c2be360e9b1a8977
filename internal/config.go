package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/api"
	"github.com/starford/lorekeeper/internal/ratelimit"
)

// Auth modes.
const (
	AuthModeDisabled = api.AuthDisabled
	AuthModeToken    = api.AuthToken
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
	Prompt    PromptConfig      `yaml:"prompt"`
	Agents    AgentsConfig      `yaml:"agents"`
	Archive   ArchiveConfig     `yaml:"archive"`
	MCP       MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.SQLite, &c.Auth, &c.RateLimit, &c.Prompt, &c.Agents, &c.Archive, &c.MCP,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how the requesting user is resolved:
//   - "disabled" (default): the X-User-ID header, else DefaultUser. Local dev only.
//   - "token": Bearer tokens, each mapped to a user id in Tokens.
type AuthConfig struct {
	Mode        string            `yaml:"mode"`
	Tokens      map[string]string `yaml:"tokens"`
	DefaultUser string            `yaml:"default_user"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken {
		if len(c.Tokens) == 0 {
			return fmt.Errorf("auth: mode is %q but no tokens are configured", AuthModeToken)
		}
		for token, user := range c.Tokens {
			if token == "" || user == "" {
				return fmt.Errorf("auth: tokens must map a non-empty token to a non-empty user id")
			}
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// Middleware returns the API auth settings.
func (c *AuthConfig) Middleware() api.AuthConfig {
	return api.AuthConfig{Mode: c.Mode, Tokens: c.Tokens, DefaultUser: c.DefaultUser}
}

// RateLimitConfig configures the per-user token bucket.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Capacity     int           `yaml:"capacity"`
	RefillAmount int           `yaml:"refill_amount"`
	Interval     time.Duration `yaml:"interval"`
}

// Validate validates the bucket parameters when rate limiting is on.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.Bucket().Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	return nil
}

// Bucket returns the limiter configuration.
func (c *RateLimitConfig) Bucket() ratelimit.Config {
	return ratelimit.Config{Capacity: c.Capacity, RefillAmount: c.RefillAmount, Interval: c.Interval}
}

// PromptConfig tunes the base system prompt.
type PromptConfig struct {
	AssistantName    string `yaml:"assistant_name"`
	Timezone         string `yaml:"timezone"`
	PinnedEntryChars int    `yaml:"pinned_entry_chars"`
	PinnedTotalChars int    `yaml:"pinned_total_chars"`
}

// Validate validates the prompt configuration.
func (c *PromptConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.AssistantName, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&c.PinnedEntryChars, validation.Min(0)),
		validation.Field(&c.PinnedTotalChars, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("prompt: timezone: %w", err)
		}
	}
	return nil
}

// AgentsConfig locates the YAML agent definitions.
type AgentsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the agents configuration.
func (c *AgentsConfig) Validate() error {
	if c.Watch && c.Dir == "" {
		return fmt.Errorf("agents: watch is enabled but dir is empty")
	}
	return nil
}

// ArchiveConfig tunes archive search.
type ArchiveConfig struct {
	SearchLimit    int `yaml:"search_limit"`
	MaxSearchLimit int `yaml:"max_search_limit"`
	PreviewChars   int `yaml:"preview_chars"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SearchLimit, validation.Required, validation.Min(1), validation.Max(c.MaxSearchLimit)),
		validation.Field(&c.MaxSearchLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.PreviewChars, validation.Required, validation.Min(1)),
	)
}

// MCPConfig configures the stdio tool server.
type MCPConfig struct {
	UserID string `yaml:"user_id"`
	ChatID string `yaml:"chat_id"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./lorekeeper.db",
		},
		Auth: AuthConfig{
			Mode:        AuthModeDisabled,
			DefaultUser: "local",
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Capacity:     60,
			RefillAmount: 1,
			Interval:     time.Second,
		},
		Prompt: PromptConfig{
			AssistantName:    "Lorekeeper",
			PinnedEntryChars: 4000,
			PinnedTotalChars: 16000,
		},
		Agents: AgentsConfig{
			Dir:   "./agents",
			Watch: true,
		},
		Archive: ArchiveConfig{
			SearchLimit:    20,
			MaxSearchLimit: 100,
			PreviewChars:   200,
		},
		MCP: MCPConfig{
			UserID: "local",
		},
	}
}
