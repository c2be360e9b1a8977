// Package chat assembles the system prompt of a chat turn from the base
// parts, the selected agent's prompt configuration and the chat's pinned
// archive entries.
package chat

import (
	"context"
	"fmt"

	"github.com/starford/lorekeeper/internal/agentprompt"
	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/prompt"
	"github.com/starford/lorekeeper/internal/tmpl"
)

// Agents looks up catalog agents.
type Agents interface {
	Agent(ctx context.Context, id string) (models.Agent, error)
}

// Pins lists the entries pinned to a chat.
type Pins interface {
	PinnedEntries(ctx context.Context, userID, chatID string) ([]models.Entry, error)
}

// Request is one chat turn's prompt input.
type Request struct {
	UserID  string `json:"-"`
	ChatID  string `json:"chatId"`
	AgentID string `json:"agentId,omitempty"`
	// AllowedTools nil enables every tool.
	AllowedTools []string            `json:"allowedTools,omitempty"`
	Hints        prompt.RequestHints `json:"requestHints"`
	Variables    map[string]string   `json:"variables,omitempty"`
}

// Prompt is an assembled system prompt.
type Prompt struct {
	Text     string           `json:"text"`
	Segments []prompt.Segment `json:"segments"`
	AgentID  string           `json:"agentId,omitempty"`
	Pinned   int              `json:"pinned"`
	Omitted  int              `json:"omitted,omitempty"`
}

// Assembler builds system prompts. It is safe for concurrent use.
type Assembler struct {
	agents   Agents
	pins     Pins
	base     prompt.BaseConfig
	renderer *tmpl.Renderer
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithBaseConfig tunes the base parts.
func WithBaseConfig(cfg prompt.BaseConfig) Option {
	return func(a *Assembler) { a.base = cfg }
}

// WithRenderer sets the template renderer shared by all composers.
func WithRenderer(r *tmpl.Renderer) Option {
	return func(a *Assembler) { a.renderer = r }
}

// New creates an Assembler. agents may be nil when no catalog is configured.
func New(agents Agents, pins Pins, opts ...Option) *Assembler {
	a := &Assembler{agents: agents, pins: pins}
	for _, opt := range opts {
		opt(a)
	}
	if a.renderer == nil {
		a.renderer = tmpl.New()
	}
	return a
}

// SystemPrompt composes the system prompt for req. It fails with a
// ValidationError when the agent declares required variables that resolve
// blank.
func (a *Assembler) SystemPrompt(ctx context.Context, req Request) (Prompt, error) {
	cfg, err := a.agentConfig(ctx, req.AgentID)
	if err != nil {
		return Prompt{}, err
	}
	if missing := agentprompt.MissingRequired(cfg, req.Variables); len(missing) > 0 {
		verr := &apperr.ValidationError{Message: "missing required agent variables", Fields: map[string]string{}}
		for _, k := range missing {
			verr.Fields["variables."+k] = "cannot be blank"
		}
		return Prompt{}, verr
	}

	var pinned []prompt.PinnedEntry
	if req.ChatID != "" && a.pins != nil {
		entries, err := a.pins.PinnedEntries(ctx, req.UserID, req.ChatID)
		if err != nil {
			return Prompt{}, fmt.Errorf("chat: pinned entries: %w", err)
		}
		for _, e := range entries {
			pinned = append(pinned, prompt.PinnedEntry{Slug: e.Slug, Entity: e.Entity, Body: e.Body})
		}
	}
	// The pinned part applies the same budgets; this only reports the counts.
	kept, omitted := prompt.TruncatePinned(pinned, a.base.PinnedEntryChars, a.base.PinnedTotalChars)

	parts := agentprompt.BuildParts(cfg, prompt.BaseParts(a.base))
	composer := prompt.NewComposer(parts, prompt.WithJoiner(cfg.Joiner), prompt.WithRenderer(a.renderer))
	res := composer.Compose(&prompt.Context{
		RequestHints:  req.Hints,
		AllowedTools:  req.AllowedTools,
		PinnedEntries: pinned,
		Variables:     req.Variables,
	})
	return Prompt{
		Text:     res.Text(),
		Segments: res.Segments,
		AgentID:  req.AgentID,
		Pinned:   len(kept),
		Omitted:  omitted,
	}, nil
}

func (a *Assembler) agentConfig(ctx context.Context, id string) (agentprompt.Config, error) {
	if id == "" || a.agents == nil {
		return agentprompt.Default(), nil
	}
	agent, err := a.agents.Agent(ctx, id)
	if err != nil {
		return agentprompt.Config{}, fmt.Errorf("chat: agent: %w", err)
	}
	if agent.PromptConfig == nil {
		return agentprompt.Default(), nil
	}
	return agentprompt.Parse(agent.PromptConfig), nil
}
