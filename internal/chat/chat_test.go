package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/prompt"
	"github.com/starford/lorekeeper/internal/tmpl"
)

type fakeAgents map[string]models.Agent

func (f fakeAgents) Agent(_ context.Context, id string) (models.Agent, error) {
	a, ok := f[id]
	if !ok {
		return models.Agent{}, apperr.ErrNotFound
	}
	return a, nil
}

type fakePins map[string][]models.Entry

func (f fakePins) PinnedEntries(_ context.Context, userID, chatID string) ([]models.Entry, error) {
	return f[userID+"/"+chatID], nil
}

func fixedRenderer() *tmpl.Renderer {
	return tmpl.New(tmpl.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 3, 9, 0, time.UTC) }))
}

func segmentIDs(p Prompt) []string {
	ids := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		ids[i] = s.ID
	}
	return ids
}

func TestSystemPrompt_DefaultAgent(t *testing.T) {
	a := New(nil, fakePins{}, WithRenderer(fixedRenderer()))
	p, err := a.SystemPrompt(context.Background(), Request{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, []string{prompt.PartIdentity, prompt.PartTools, prompt.PartArchive}, segmentIDs(p))
	assert.Contains(t, p.Text, "You are Lorekeeper")
	assert.Contains(t, p.Text, "2024-05-01 12:03 (Wednesday)")
	assert.Zero(t, p.Pinned)
}

func TestSystemPrompt_PinnedEntriesAreScopedToChat(t *testing.T) {
	pins := fakePins{
		"u/c1": {{Slug: "ada", Entity: "Ada", Body: "Likes engines."}, {Slug: "bob", Entity: "Bob", Body: "0123456789"}},
		"x/c1": {{Slug: "other", Entity: "Other", Body: "not yours"}},
	}
	a := New(nil, pins, WithRenderer(fixedRenderer()), WithBaseConfig(prompt.BaseConfig{PinnedTotalChars: 16}))
	p, err := a.SystemPrompt(context.Background(), Request{UserID: "u", ChatID: "c1"})
	require.NoError(t, err)
	assert.Contains(t, p.Text, "### Ada (ada)\nLikes engines.")
	assert.NotContains(t, p.Text, "not yours")
	assert.NotContains(t, p.Text, "0123456789")
	assert.Equal(t, 1, p.Pinned)
	assert.Equal(t, 1, p.Omitted)
	assert.Contains(t, p.Text, "1 more pinned entries omitted")
}

func TestSystemPrompt_AgentAppendWithVariables(t *testing.T) {
	agents := fakeAgents{"coach": {ID: "coach", PromptConfig: []byte(`{
		"blocks": [{"id": "focus", "template": "Coach {{vars.name}} on {{vars.topic}}."}],
		"variables": [{"key": "name", "required": true}, {"key": "topic", "defaultValue": "running"}]
	}`)}}
	a := New(agents, fakePins{}, WithRenderer(fixedRenderer()))

	p, err := a.SystemPrompt(context.Background(), Request{AgentID: "coach", Variables: map[string]string{"name": "Sam"}})
	require.NoError(t, err)
	ids := segmentIDs(p)
	assert.Equal(t, "agent:focus", ids[len(ids)-1])
	assert.Contains(t, p.Text, "Coach Sam on running.")

	_, err = a.SystemPrompt(context.Background(), Request{AgentID: "coach"})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "variables.name")
}

func TestSystemPrompt_ReplaceModeAndGating(t *testing.T) {
	agents := fakeAgents{"bare": {ID: "bare", PromptConfig: []byte(`{"mode": "replace", "joiner": " | ",
		"blocks": [{"id": "a", "template": "A"}, {"id": "b", "template": "B"}]}`)}}
	a := New(agents, fakePins{}, WithRenderer(fixedRenderer()))

	p, err := a.SystemPrompt(context.Background(), Request{AgentID: "bare", AllowedTools: []string{}})
	require.NoError(t, err)
	assert.Equal(t, "A | B", p.Text)
}

func TestSystemPrompt_ToolGating(t *testing.T) {
	a := New(nil, fakePins{}, WithRenderer(fixedRenderer()))
	p, err := a.SystemPrompt(context.Background(), Request{AllowedTools: []string{"artifact_create"}})
	require.NoError(t, err)
	assert.Equal(t, []string{prompt.PartIdentity, prompt.PartTools}, segmentIDs(p))
	assert.NotContains(t, p.Text, "Archive guidelines")
}

func TestSystemPrompt_UnknownAgent(t *testing.T) {
	a := New(fakeAgents{}, fakePins{})
	_, err := a.SystemPrompt(context.Background(), Request{AgentID: "ghost"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
