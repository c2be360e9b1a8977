package prompt

import (
	"fmt"
	"strconv"
	"strings"
)

// Base part ids and priorities. Agent blocks are placed after these.
const (
	PartIdentity      = "identity"
	PartRequestHints  = "request-hints"
	PartTools         = "tools"
	PartArchive       = "archive"
	PartPinnedEntries = "pinned-entries"

	PriorityIdentity      = 10
	PriorityRequestHints  = 20
	PriorityTools         = 30
	PriorityArchive       = 40
	PriorityPinnedEntries = 50
)

// TruncationMarker is appended to a pinned body cut at the per-entry limit.
const TruncationMarker = "\n[... truncated]"

// ToolGroup is a set of tools described together in the prompt. A group is
// listed when at least one of its tools is allowed.
type ToolGroup struct {
	Name        string
	Title       string
	Description string
	Tools       []string
}

// DefaultToolGroups are the groups shipped with the assistant.
var DefaultToolGroups = []ToolGroup{
	{
		Name:        "archive",
		Title:       "Archive",
		Description: "Long-term knowledge base: create, read, update, link, search, edit and pin entries.",
		Tools: []string{
			"archive_create", "archive_read", "archive_update", "archive_delete", "archive_link",
			"archive_search", "archive_apply_edits", "archive_unlink", "archive_pin", "archive_unpin",
		},
	},
	{
		Name:        "artifacts",
		Title:       "Artifacts",
		Description: "Generate standalone documents, code or diagrams the user can open and iterate on.",
		Tools:       []string{"artifact_create", "artifact_update"},
	},
}

// BaseConfig tunes the base parts.
type BaseConfig struct {
	AssistantName string
	// Timezone is an IANA zone for the current-time line; empty means UTC.
	Timezone string
	// PinnedEntryChars caps each pinned body; PinnedTotalChars caps all of them.
	// Zero disables the cap.
	PinnedEntryChars int
	PinnedTotalChars int
	ToolGroups       []ToolGroup
}

const identityTemplate = `You are {{assistantName}}, a helpful assistant with a persistent archive of notes about the user and their work.
Current date and time: {{datetime "yyyy-MM-dd HH:mm (EEEE) XXX" "%s"}}.`

const requestHintsTemplate = `About the origin of the user's request:
{{#each hintLines}}- {{this}}
{{/each}}`

const toolsTemplate = `You can use the following tool groups:
{{#each toolGroups}}- {{this.title}}: {{this.description}}
{{/each}}`

const archiveTemplate = `Archive guidelines:
- Search the archive before creating an entry; update an existing entry instead of duplicating it.
- Use archive_apply_edits for small changes to long bodies and archive_update for renames, tags and full rewrites.
- Link related entries with archive_link so knowledge stays connected.
- Pin entries that should stay in context for this chat with archive_pin.`

const pinnedTemplate = `Pinned archive entries (kept in context for this chat):
{{#each pinned}}
### {{this.entity}} ({{this.slug}})
{{this.body}}
{{/each}}
{{omittedNote}}`

// BaseParts returns the fixed system-prompt parts (priorities 10-50).
func BaseParts(cfg BaseConfig) []Part {
	name := cfg.AssistantName
	if name == "" {
		name = "Lorekeeper"
	}
	groups := cfg.ToolGroups
	if groups == nil {
		groups = DefaultToolGroups
	}

	return []Part{
		{
			ID:       PartIdentity,
			Priority: PriorityIdentity,
			Template: fmt.Sprintf(identityTemplate, cfg.Timezone),
			Prepare: func(*Context) map[string]any {
				return map[string]any{"assistantName": name}
			},
		},
		{
			ID:       PartRequestHints,
			Priority: PriorityRequestHints,
			Template: requestHintsTemplate,
			Enabled:  func(c *Context) bool { return !c.RequestHints.Empty() },
			Prepare: func(c *Context) map[string]any {
				return map[string]any{"hintLines": hintLines(c.RequestHints)}
			},
		},
		{
			ID:       PartTools,
			Priority: PriorityTools,
			Template: toolsTemplate,
			Enabled:  func(c *Context) bool { return len(AllowedGroups(c, groups)) > 0 },
			Prepare: func(c *Context) map[string]any {
				var out []any
				for _, g := range AllowedGroups(c, groups) {
					out = append(out, map[string]any{"name": g.Name, "title": g.Title, "description": g.Description})
				}
				return map[string]any{"toolGroups": out}
			},
		},
		{
			ID:       PartArchive,
			Priority: PriorityArchive,
			Template: archiveTemplate,
			Enabled: func(c *Context) bool {
				for _, g := range AllowedGroups(c, groups) {
					if g.Name == "archive" {
						return true
					}
				}
				return false
			},
		},
		{
			ID:       PartPinnedEntries,
			Priority: PriorityPinnedEntries,
			Template: pinnedTemplate,
			Enabled:  func(c *Context) bool { return len(c.PinnedEntries) > 0 },
			Prepare: func(c *Context) map[string]any {
				kept, omitted := TruncatePinned(c.PinnedEntries, cfg.PinnedEntryChars, cfg.PinnedTotalChars)
				pinned := make([]any, len(kept))
				for i, e := range kept {
					pinned[i] = pinnedData(e)
				}
				note := ""
				if omitted > 0 {
					note = fmt.Sprintf("(%d more pinned entries omitted; read them with archive_read.)", omitted)
				}
				return map[string]any{"pinned": pinned, "omittedNote": note}
			},
		},
	}
}

// AllowedGroups returns the groups with at least one allowed tool.
func AllowedGroups(c *Context, groups []ToolGroup) []ToolGroup {
	var out []ToolGroup
	for _, g := range groups {
		for _, t := range g.Tools {
			if c.ToolAllowed(t) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func hintLines(h RequestHints) []any {
	var lines []any
	if h.City != "" {
		lines = append(lines, "City: "+h.City)
	}
	if h.Country != "" {
		lines = append(lines, "Country: "+h.Country)
	}
	if h.Latitude != nil && h.Longitude != nil {
		lines = append(lines, fmt.Sprintf("Coordinates: %s, %s",
			strconv.FormatFloat(*h.Latitude, 'f', -1, 64),
			strconv.FormatFloat(*h.Longitude, 'f', -1, 64)))
	}
	return lines
}

// TruncatePinned applies the per-entry and total character budgets. Entries
// that no longer fit in the total budget are dropped and counted as omitted.
func TruncatePinned(entries []PinnedEntry, perEntry, total int) (kept []PinnedEntry, omitted int) {
	used := 0
	for i, e := range entries {
		body := []rune(e.Body)
		if perEntry > 0 && len(body) > perEntry {
			e.Body = strings.TrimRightFunc(string(body[:perEntry]), isSpace) + TruncationMarker
			body = []rune(e.Body)
		}
		if total > 0 && used+len(body) > total {
			remaining := total - used
			if remaining <= 0 || len(kept) > 0 {
				return kept, len(entries) - i
			}
			// The first entry alone exceeds the budget: keep a cut of it.
			e.Body = strings.TrimRightFunc(string(body[:remaining]), isSpace) + TruncationMarker
			body = []rune(e.Body)
		}
		used += len(body)
		kept = append(kept, e)
	}
	return kept, 0
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
