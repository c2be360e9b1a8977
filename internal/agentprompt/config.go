// Package agentprompt normalizes user-authored agent prompt configuration
// and turns it into prompt parts.
package agentprompt

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// Mode decides how agent blocks combine with the base prompt.
type Mode string

const (
	ModeAppend  Mode = "append"
	ModeReplace Mode = "replace"
)

// DefaultJoiner matches the composer's default joiner.
const DefaultJoiner = "\n\n"

// Field length limits, in characters.
const (
	MaxIDLen          = 64
	MaxLabelLen       = 80
	MaxDescriptionLen = 240
	MaxTemplateLen    = 12000
	MaxJoinerLen      = 32
)

var keyRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]{0,63}$`)

// Block is a named template contributed by the agent.
type Block struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Template  string `json:"template" yaml:"template"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
	Order     int    `json:"order" yaml:"order"`
}

// Usable reports whether the block contributes to composition.
func (b Block) Usable() bool {
	return b.Enabled && strings.TrimSpace(b.Template) != ""
}

// Variable is a value block templates can reference as {{vars.<key>}}.
type Variable struct {
	Key          string `json:"key" yaml:"key"`
	Label        string `json:"label" yaml:"label"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Config is a normalized agent prompt configuration.
type Config struct {
	Mode      Mode       `json:"mode" yaml:"mode"`
	Joiner    string     `json:"joiner" yaml:"joiner"`
	Blocks    []Block    `json:"blocks" yaml:"blocks"`
	Variables []Variable `json:"variables" yaml:"variables"`
}

// Default returns the configuration that leaves the base prompt untouched.
func Default() Config {
	return Config{Mode: ModeAppend, Joiner: DefaultJoiner, Blocks: []Block{}, Variables: []Variable{}}
}

// IsDefault reports whether cfg is equivalent to Default for rendering.
func IsDefault(cfg Config) bool {
	if cfg.Mode != ModeAppend || cfg.Joiner != DefaultJoiner || len(cfg.Variables) > 0 {
		return false
	}
	for _, b := range cfg.Blocks {
		if b.Usable() {
			return false
		}
	}
	return true
}

// Parse decodes JSON and normalizes it. Malformed JSON yields Default.
func Parse(data []byte) Config {
	if len(data) == 0 {
		return Default()
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Default()
	}
	return Normalize(raw)
}

// Normalize coerces loosely-typed input (decoded JSON or YAML, or a Config)
// into a bounded Config. It never fails; bad fields fall back to defaults.
func Normalize(raw any) Config {
	switch v := raw.(type) {
	case Config:
		raw = toGeneric(v)
	case *Config:
		if v == nil {
			return Default()
		}
		raw = toGeneric(*v)
	case []byte:
		return Parse(v)
	}

	m := asMap(raw)
	cfg := Default()
	if m == nil {
		return cfg
	}

	if s, err := cast.ToStringE(m["mode"]); err == nil && Mode(strings.ToLower(strings.TrimSpace(s))) == ModeReplace {
		cfg.Mode = ModeReplace
	}
	if v, ok := m["joiner"]; ok {
		if s, isStr := v.(string); isStr {
			cfg.Joiner = clamp(s, MaxJoinerLen)
		}
	}
	cfg.Blocks = normalizeBlocks(m["blocks"])
	cfg.Variables = normalizeVariables(m["variables"])
	return cfg
}

type orderedBlock struct {
	block Block
	order float64
}

func normalizeBlocks(raw any) []Block {
	items, _ := raw.([]any)
	seen := make(map[string]struct{}, len(items))
	ordered := make([]orderedBlock, 0, len(items))
	for i, item := range items {
		m := asMap(item)
		if m == nil {
			continue
		}
		id := clamp(strings.TrimSpace(str(m["id"])), MaxIDLen)
		if id == "" {
			id = fmt.Sprintf("block-%d", i+1)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		b := Block{
			ID:        id,
			Title:     clamp(strings.TrimSpace(str(m["title"])), MaxLabelLen),
			Template:  clamp(str(m["template"]), MaxTemplateLen),
			Enabled:   true,
			Separator: clamp(str(m["separator"]), MaxJoinerLen),
		}
		if v, ok := m["enabled"]; ok {
			if enabled, err := cast.ToBoolE(v); err == nil {
				b.Enabled = enabled
			}
		}

		order := float64(i)
		if v, ok := m["order"]; ok {
			if f, err := cast.ToFloat64E(v); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				order = f
			}
		}
		ordered = append(ordered, orderedBlock{block: b, order: order})
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })
	out := make([]Block, len(ordered))
	for i, ob := range ordered {
		ob.block.Order = i
		out[i] = ob.block
	}
	return out
}

func normalizeVariables(raw any) []Variable {
	items, _ := raw.([]any)
	seen := make(map[string]struct{}, len(items))
	out := make([]Variable, 0, len(items))
	for _, item := range items {
		m := asMap(item)
		if m == nil {
			continue
		}
		key := strings.TrimSpace(str(m["key"]))
		if !keyRe.MatchString(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		v := Variable{
			Key:          key,
			Label:        clamp(strings.TrimSpace(str(m["label"])), MaxLabelLen),
			Description:  clamp(strings.TrimSpace(str(m["description"])), MaxDescriptionLen),
			DefaultValue: clamp(str(m["defaultValue"]), MaxTemplateLen),
		}
		if v.Label == "" {
			v.Label = key
		}
		if r, err := cast.ToBoolE(m["required"]); err == nil {
			v.Required = r
		}
		out = append(out, v)
	}
	return out
}

// str coerces scalars to string; maps, slices and nil become "".
func str(v any) string {
	switch v.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	}
	return nil
}

func toGeneric(cfg Config) any {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// clamp truncates s to at most n characters without splitting a rune.
func clamp(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
