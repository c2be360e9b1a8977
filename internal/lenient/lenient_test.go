package lenient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lorekeeper/internal/apperr"
)

func TestNormalize_SynonymEquivalence(t *testing.T) {
	a, err := Normalize(map[string]any{"id": "x", "content": "body text"}, nil)
	require.NoError(t, err)
	b, err := Normalize(map[string]any{"slug": "x", "body": "body text"}, nil)
	require.NoError(t, err)
	assert.Equal(t, b, a)
	require.NotNil(t, a.Params.Body)
	assert.Equal(t, "body text", *a.Params.Body)
}

func TestNormalize_MissingSlug(t *testing.T) {
	for _, raw := range []map[string]any{
		{},
		{"body": "x"},
		{"slug": "", "id": "null", "entry": "none", "file": false, "identifier": "  "},
	} {
		_, err := Normalize(raw, nil)
		var te *apperr.ToolError
		require.True(t, errors.As(err, &te), "raw = %v", raw)
		assert.Equal(t, apperr.CodeMissingSlug, te.Code)
		assert.NotEmpty(t, te.Hints)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	}
}

func TestNormalize_PickFirstSkipsAbsentValues(t *testing.T) {
	u, err := Normalize(map[string]any{
		"slug":   "null",
		"id":     "real",
		"entity": "None",
		"title":  "New Title",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "real", u.Slug)
	require.NotNil(t, u.Params.NewEntity)
	assert.Equal(t, "New Title", *u.Params.NewEntity)
}

func TestNormalize_BodyWinsOverAppend(t *testing.T) {
	u, err := Normalize(map[string]any{"slug": "s", "replaceBody": "full", "append": "more"}, nil)
	require.NoError(t, err)
	require.NotNil(t, u.Params.Body)
	assert.Equal(t, "full", *u.Params.Body)
	assert.Nil(t, u.Params.AppendBody)
	assert.Contains(t, u.Notes, NoteAppendIgnored)

	u, err = Normalize(map[string]any{"slug": "s", "extra": "more"}, nil)
	require.NoError(t, err)
	assert.Nil(t, u.Params.Body)
	require.NotNil(t, u.Params.AppendBody)
	assert.Equal(t, "more", *u.Params.AppendBody)
	assert.Empty(t, u.Notes)
}

func TestNormalize_CommaSeparatedTags(t *testing.T) {
	u, err := Normalize(map[string]any{"slug": "s", "addTag": " Work, urgent ,,", "tagRemove": []any{"old, stale", "null"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "urgent"}, u.Params.AddTags)
	assert.Equal(t, []string{"old", "stale"}, u.Params.RemoveTags)
}

func TestNormalize_SetTagsDiff(t *testing.T) {
	u, err := Normalize(map[string]any{"slug": "s", "tags": []any{"Go", "db"}}, []string{"go", "Old"})
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, u.Params.AddTags)
	assert.Equal(t, []string{"old"}, u.Params.RemoveTags)
	require.NotNil(t, u.Params.SetTags)
	assert.Equal(t, []string{"go", "db"}, *u.Params.SetTags)
}

func TestNormalize_EmptySetTagsClears(t *testing.T) {
	for _, raw := range []map[string]any{
		{"slug": "x", "setTags": []any{}},
		{"slug": "x", "tags": []string{}},
		{"slug": "x", "tags": []any{"null", " "}},
	} {
		u, err := Normalize(raw, []string{"a", "B"})
		require.NoError(t, err)
		require.NotNil(t, u.Params.SetTags, "raw = %v", raw)
		assert.Empty(t, *u.Params.SetTags)
		assert.Empty(t, u.Params.AddTags, "raw = %v", raw)
		assert.Equal(t, []string{"a", "b"}, u.Params.RemoveTags, "raw = %v", raw)
	}
}

func TestNormalize_EmptyTagStringIsNotGiven(t *testing.T) {
	u, err := Normalize(map[string]any{"slug": "x", "tags": ""}, []string{"a"})
	require.NoError(t, err)
	assert.Nil(t, u.Params.SetTags)
	assert.Empty(t, u.Params.RemoveTags)
}

func TestNormalize_AddWinsOverRemove(t *testing.T) {
	u, err := Normalize(map[string]any{
		"slug":       "s",
		"setTags":    "keep",
		"addTags":    []string{"x"},
		"removeTags": []string{"x", "keep"},
	}, []string{"keep", "drop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, u.Params.AddTags)
	assert.Equal(t, []string{"drop", "keep"}, u.Params.RemoveTags)

	u, err = Normalize(map[string]any{"slug": "s", "addTags": "x", "removeTags": "X"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, u.Params.AddTags)
	assert.Nil(t, u.Params.RemoveTags)
}

func TestNormalize_NoOp(t *testing.T) {
	u, err := Normalize(map[string]any{"slug": "s", "tags": "a", "ifMatch": " abc "}, []string{"A"})
	require.NoError(t, err)
	assert.Nil(t, u.Params.AddTags)
	assert.Nil(t, u.Params.RemoveTags)
	assert.Nil(t, u.Params.Body)
	assert.Equal(t, "abc", u.Params.IfMatch)
}

func TestTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Tags(" A , b,"))
	assert.Equal(t, []string{"x", "y", "z"}, Tags([]any{"X", "y,z", nil, "null"}))
	assert.Nil(t, Tags(42))
}
