package agentprompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/lorekeeper/internal/prompt"
)

var baseParts = []prompt.Part{
	{ID: "identity", Template: "I am base.", Priority: 10},
	{ID: "archive", Template: "Archive rules.", Priority: 40},
}

func partIDs(parts []prompt.Part) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.ID
	}
	return out
}

func TestBuildParts_Append(t *testing.T) {
	cfg := Default()
	cfg.Blocks = []Block{
		{ID: "style", Template: "Be {{vars.tone}}.", Enabled: true},
		{ID: "off", Template: "hidden", Enabled: false},
		{ID: "blank", Template: "   ", Enabled: true},
		{ID: "sign", Template: "Sign as {{vars.name}}.", Enabled: true, Separator: "\n"},
	}
	cfg.Variables = []Variable{{Key: "tone", Label: "Tone", DefaultValue: "terse"}}

	parts := BuildParts(cfg, baseParts)
	assert.Equal(t, []string{"identity", "archive", "agent:style", "agent:sign"}, partIDs(parts))
	assert.Equal(t, BlockPriorityBase, parts[2].Priority)
	assert.Equal(t, BlockPriorityBase+1, parts[3].Priority)
	assert.Nil(t, parts[2].Separator)

	text := prompt.NewComposer(parts).ComposeText(&prompt.Context{Variables: map[string]string{"name": "Ada"}})
	assert.Equal(t, "I am base.\n\nArchive rules.\n\nBe terse.\n\nSign as Ada.", text)

	text = prompt.NewComposer(parts).ComposeText(&prompt.Context{Variables: map[string]string{"tone": "warm"}})
	assert.Contains(t, text, "Be warm.")
}

func TestBuildParts_Replace(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeReplace
	cfg.Blocks = []Block{{ID: "only", Template: "Only me.", Enabled: true}}
	parts := BuildParts(cfg, baseParts)
	assert.Equal(t, []string{"agent:only"}, partIDs(parts))
	assert.Equal(t, "Only me.", prompt.NewComposer(parts).ComposeText(nil))
}

func TestBuildParts_ReplaceWithoutBlocksSuppressesPrompt(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeReplace
	cfg.Blocks = []Block{{ID: "off", Template: "x", Enabled: false}}
	parts := BuildParts(cfg, baseParts)
	assert.Empty(t, parts)
	assert.Equal(t, "", prompt.NewComposer(parts).ComposeText(nil))
}

func TestBuildParts_DefaultKeepsBase(t *testing.T) {
	assert.Equal(t, partIDs(baseParts), partIDs(BuildParts(Default(), baseParts)))
}

func TestMissingRequired(t *testing.T) {
	cfg := Default()
	cfg.Variables = []Variable{
		{Key: "project", Required: true},
		{Key: "audience", Required: true, DefaultValue: "engineers"},
		{Key: "client", Required: true},
		{Key: "tone"},
	}
	assert.Equal(t, []string{"client", "project"}, MissingRequired(cfg, nil))
	assert.Equal(t, []string{"client"}, MissingRequired(cfg, map[string]string{"project": "lore", "client": "  "}))
	assert.Empty(t, MissingRequired(cfg, map[string]string{"project": "lore", "client": "acme"}))
}

func TestResolveVariables(t *testing.T) {
	cfg := Default()
	cfg.Variables = []Variable{{Key: "tone", DefaultValue: "terse"}, {Key: "lang", DefaultValue: "en"}}
	got := ResolveVariables(cfg, map[string]string{"lang": "fr", "extra": "1"})
	assert.Equal(t, map[string]string{"tone": "terse", "lang": "fr", "extra": "1"}, got)
}
