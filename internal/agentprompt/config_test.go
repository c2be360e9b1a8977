package agentprompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Garbage(t *testing.T) {
	for _, raw := range []any{nil, "text", 42, []any{1, 2}, map[string]any{"blocks": "nope", "variables": 7}} {
		assert.Equal(t, Default(), Normalize(raw))
	}
	assert.Equal(t, Default(), Parse([]byte("{not json")))
	assert.Equal(t, Default(), Parse(nil))
}

func TestNormalize_ModeAndJoiner(t *testing.T) {
	cfg := Normalize(map[string]any{"mode": " REPLACE ", "joiner": strings.Repeat("-", 40)})
	assert.Equal(t, ModeReplace, cfg.Mode)
	assert.Len(t, cfg.Joiner, MaxJoinerLen)

	cfg = Normalize(map[string]any{"mode": "sideways", "joiner": 12})
	assert.Equal(t, ModeAppend, cfg.Mode)
	assert.Equal(t, DefaultJoiner, cfg.Joiner)
}

func TestNormalize_BlocksClampDedupeSort(t *testing.T) {
	cfg := Normalize(map[string]any{
		"blocks": []any{
			map[string]any{"id": "late", "template": "L", "order": 5},
			map[string]any{"id": "early", "template": "E", "order": -1, "enabled": "false"},
			map[string]any{"id": "late", "template": "duplicate"},
			map[string]any{"template": strings.Repeat("x", MaxTemplateLen+10), "title": strings.Repeat("t", 100)},
			"not a block",
			map[string]any{"id": strings.Repeat("i", 70), "template": "I", "order": "bogus"},
		},
	})

	require.Len(t, cfg.Blocks, 4)
	got := make([]string, len(cfg.Blocks))
	for i, b := range cfg.Blocks {
		got[i] = b.ID
	}
	// early (-1), block-4 (index 3), late (5), long id (index 5)
	assert.Equal(t, []string{"early", "block-4", "late", strings.Repeat("i", MaxIDLen)}, got)

	assert.False(t, cfg.Blocks[0].Enabled)
	assert.True(t, cfg.Blocks[2].Enabled)
	assert.Equal(t, "L", cfg.Blocks[2].Template)
	assert.Len(t, cfg.Blocks[1].Template, MaxTemplateLen)
	assert.Len(t, cfg.Blocks[1].Title, MaxLabelLen)
	for i, b := range cfg.Blocks {
		assert.Equal(t, i, b.Order)
	}
}

func TestNormalize_Variables(t *testing.T) {
	cfg := Normalize(map[string]any{
		"variables": []any{
			map[string]any{"key": "tone", "label": "Tone", "defaultValue": "friendly", "required": "true"},
			map[string]any{"key": "tone", "label": "Shadow"},
			map[string]any{"key": "1bad"},
			map[string]any{"key": "has space"},
			map[string]any{"key": "project.name", "description": strings.Repeat("d", 300)},
		},
	})
	require.Len(t, cfg.Variables, 2)
	assert.Equal(t, Variable{Key: "tone", Label: "Tone", DefaultValue: "friendly", Required: true}, cfg.Variables[0])
	assert.Equal(t, "project.name", cfg.Variables[1].Key)
	assert.Equal(t, "project.name", cfg.Variables[1].Label)
	assert.Len(t, cfg.Variables[1].Description, MaxDescriptionLen)
}

func TestNormalize_ClampKeepsRunes(t *testing.T) {
	cfg := Normalize(map[string]any{"joiner": strings.Repeat("é", 40)})
	assert.Equal(t, strings.Repeat("é", MaxJoinerLen), cfg.Joiner)
}

func TestNormalize_Idempotent(t *testing.T) {
	first := Normalize(map[string]any{
		"mode":      "replace",
		"blocks":    []any{map[string]any{"id": "b", "template": "hi", "order": 3}},
		"variables": []any{map[string]any{"key": "k"}},
	})
	assert.Equal(t, first, Normalize(first))
	assert.Equal(t, first, Normalize(&first))
}

func TestIsDefault(t *testing.T) {
	assert.True(t, IsDefault(Default()))
	assert.True(t, IsDefault(Normalize(map[string]any{"mode": "append", "joiner": DefaultJoiner, "blocks": []any{}, "variables": []any{}})))

	withDisabled := Default()
	withDisabled.Blocks = []Block{{ID: "x", Template: "text", Enabled: false}, {ID: "y", Template: "  ", Enabled: true}}
	assert.True(t, IsDefault(withDisabled))

	withBlock := Default()
	withBlock.Blocks = []Block{{ID: "x", Template: "text", Enabled: true}}
	assert.False(t, IsDefault(withBlock))

	replace := Default()
	replace.Mode = ModeReplace
	assert.False(t, IsDefault(replace))

	joiner := Default()
	joiner.Joiner = "\n"
	assert.False(t, IsDefault(joiner))

	vars := Default()
	vars.Variables = []Variable{{Key: "k", Label: "k"}}
	assert.False(t, IsDefault(vars))
}
