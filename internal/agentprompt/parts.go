package agentprompt

import (
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/prompt"
)

// BlockPriorityBase is the priority of the first agent block; base parts sit
// below it.
const BlockPriorityBase = 200

// PartIDPrefix namespaces agent block ids among the composed parts.
const PartIDPrefix = "agent:"

// BuildParts returns the composer parts for cfg. Append mode keeps base and
// adds the usable blocks after it; replace mode uses the blocks alone, so an
// agent without usable blocks suppresses the prompt entirely.
func BuildParts(cfg Config, base []prompt.Part) []prompt.Part {
	var parts []prompt.Part
	if cfg.Mode != ModeReplace {
		parts = append(parts, base...)
	}

	prepare := func(c *prompt.Context) map[string]any {
		vars := ResolveVariables(cfg, c.Variables)
		out := make(map[string]any, len(vars))
		for k, v := range vars {
			out[k] = v
		}
		return map[string]any{"vars": out}
	}

	n := 0
	for _, b := range cfg.Blocks {
		if !b.Usable() {
			continue
		}
		p := prompt.Part{
			ID:       PartIDPrefix + b.ID,
			Template: b.Template,
			Priority: BlockPriorityBase + n,
			Prepare:  prepare,
		}
		if b.Separator != "" {
			sep := b.Separator
			p.Separator = &sep
		}
		parts = append(parts, p)
		n++
	}
	return parts
}

// ResolveVariables merges request values with declared defaults. Blank
// request values fall back to the default; undeclared keys pass through.
func ResolveVariables(cfg Config, values map[string]string) map[string]string {
	out := make(map[string]string, len(values)+len(cfg.Variables))
	for k, v := range values {
		out[k] = v
	}
	for _, v := range cfg.Variables {
		if strings.TrimSpace(out[v.Key]) == "" {
			out[v.Key] = v.DefaultValue
		}
	}
	return out
}

// MissingRequired returns the sorted keys of required variables that resolve
// to a blank value.
func MissingRequired(cfg Config, values map[string]string) []string {
	resolved := ResolveVariables(cfg, values)
	var missing []string
	for _, v := range cfg.Variables {
		if v.Required && strings.TrimSpace(resolved[v.Key]) == "" {
			missing = append(missing, v.Key)
		}
	}
	sort.Strings(missing)
	return missing
}
