// Package prompt composes system prompts from ordered, conditionally enabled
// template parts.
package prompt

import (
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/tmpl"
)

// DefaultJoiner separates segments that carry no separator of their own.
const DefaultJoiner = "\n\n"

// RoleSystem is the role given to parts that do not set one.
const RoleSystem = "system"

// RequestHints are coarse client-supplied facts about the requester.
type RequestHints struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
}

// Empty reports whether no hint is set.
func (h RequestHints) Empty() bool {
	return h.Latitude == nil && h.Longitude == nil && h.City == "" && h.Country == ""
}

// PinnedEntry is an archive entry injected verbatim into the prompt.
type PinnedEntry struct {
	Slug   string `json:"slug"`
	Entity string `json:"entity"`
	Body   string `json:"body"`
}

// Context is the per-turn input every part sees.
type Context struct {
	RequestHints RequestHints
	// AllowedTools nil means every tool is enabled; an empty slice disables
	// every gated tool group.
	AllowedTools  []string
	PinnedEntries []PinnedEntry
	// Variables are agent variable values supplied with the request.
	Variables map[string]string
}

// ToolAllowed reports whether the named tool is enabled for this turn.
func (c *Context) ToolAllowed(name string) bool {
	if c == nil || c.AllowedTools == nil {
		return true
	}
	for _, t := range c.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// Part is one template contributor to a composed prompt.
type Part struct {
	ID       string
	Template string
	// Priority orders parts ascending; equal priorities keep insertion order.
	Priority int
	// Enabled defaults to true when nil.
	Enabled func(*Context) bool
	// Prepare returns extra template data; its keys win over the base data.
	Prepare func(*Context) map[string]any
	// Separator, when set, replaces the joiner after this segment.
	Separator *string
	Role      string
	Depth     int
}

// Segment is a rendered, non-empty part.
type Segment struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Separator *string `json:"separator,omitempty"`
	Role      string  `json:"role"`
	Depth     int     `json:"depth"`
}

// Result is the ordered output of Compose.
type Result struct {
	Segments []Segment `json:"segments"`
	Joiner   string    `json:"joiner"`
}

// Text joins the segments: every segment but the last is followed by its own
// separator or the joiner; the last only by its own separator.
func (r Result) Text() string {
	var b strings.Builder
	for i, seg := range r.Segments {
		b.WriteString(seg.Content)
		switch {
		case seg.Separator != nil:
			b.WriteString(*seg.Separator)
		case i < len(r.Segments)-1:
			b.WriteString(r.Joiner)
		}
	}
	return strings.TrimSpace(b.String())
}

// Composer renders a fixed list of parts. It keeps no state between calls and
// is safe for concurrent use.
type Composer struct {
	parts    []Part
	joiner   string
	renderer *tmpl.Renderer
}

// Option configures a Composer.
type Option func(*Composer)

// WithJoiner sets the default segment joiner.
func WithJoiner(j string) Option {
	return func(c *Composer) { c.joiner = j }
}

// WithRenderer sets the template renderer (useful to pin the clock in tests).
func WithRenderer(r *tmpl.Renderer) Option {
	return func(c *Composer) {
		if r != nil {
			c.renderer = r
		}
	}
}

// NewComposer copies parts and returns a Composer over them.
func NewComposer(parts []Part, opts ...Option) *Composer {
	c := &Composer{
		parts:    append([]Part(nil), parts...),
		joiner:   DefaultJoiner,
		renderer: tmpl.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose filters, orders and renders the parts for ctx.
func (c *Composer) Compose(ctx *Context) Result {
	if ctx == nil {
		ctx = &Context{}
	}

	active := make([]Part, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Enabled == nil || p.Enabled(ctx) {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority < active[j].Priority })

	base := baseData(ctx)
	res := Result{Joiner: c.joiner}
	for _, p := range active {
		data := base
		if p.Prepare != nil {
			if extra := p.Prepare(ctx); len(extra) > 0 {
				data = make(map[string]any, len(base)+len(extra))
				for k, v := range base {
					data[k] = v
				}
				for k, v := range extra {
					data[k] = v
				}
			}
		}
		content := strings.TrimSpace(c.renderer.Render(p.Template, data))
		if content == "" {
			continue
		}
		role := p.Role
		if role == "" {
			role = RoleSystem
		}
		res.Segments = append(res.Segments, Segment{
			ID:        p.ID,
			Content:   content,
			Separator: p.Separator,
			Role:      role,
			Depth:     p.Depth,
		})
	}
	return res
}

// ComposeText is Compose followed by Result.Text.
func (c *Composer) ComposeText(ctx *Context) string {
	return c.Compose(ctx).Text()
}

func baseData(ctx *Context) map[string]any {
	hints := map[string]any{}
	if ctx.RequestHints.Latitude != nil {
		hints["latitude"] = *ctx.RequestHints.Latitude
	}
	if ctx.RequestHints.Longitude != nil {
		hints["longitude"] = *ctx.RequestHints.Longitude
	}
	if ctx.RequestHints.City != "" {
		hints["city"] = ctx.RequestHints.City
	}
	if ctx.RequestHints.Country != "" {
		hints["country"] = ctx.RequestHints.Country
	}

	pinned := make([]any, 0, len(ctx.PinnedEntries))
	for _, e := range ctx.PinnedEntries {
		pinned = append(pinned, pinnedData(e))
	}

	vars := make(map[string]any, len(ctx.Variables))
	for k, v := range ctx.Variables {
		vars[k] = v
	}

	data := map[string]any{
		"requestHints":  hints,
		"pinnedEntries": pinned,
		"vars":          vars,
	}
	if ctx.AllowedTools != nil {
		tools := make([]any, len(ctx.AllowedTools))
		for i, t := range ctx.AllowedTools {
			tools[i] = t
		}
		data["allowedTools"] = tools
	}
	return data
}

func pinnedData(e PinnedEntry) map[string]any {
	return map[string]any{"slug": e.Slug, "entity": e.Entity, "body": e.Body}
}
