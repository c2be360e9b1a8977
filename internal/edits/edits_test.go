package edits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_FirstVersusAll(t *testing.T) {
	first := Apply("a-a-a", []Edit{{Mode: ModeReplace, Target: "a", Text: "b", Occurrences: OccurrencesFirst}})
	assert.Equal(t, "b-a-a", first.Body)
	assert.Equal(t, 1, first.Results[0].Count)

	all := Apply("a-a-a", []Edit{{Mode: ModeReplace, Target: "a", Text: "b", Occurrences: OccurrencesAll}})
	assert.Equal(t, "b-b-b", all.Body)
	assert.Equal(t, 3, all.Results[0].Count)

	def := Apply("a-a-a", []Edit{{Mode: ModeReplace, Target: "a", Text: "b"}})
	assert.Equal(t, "b-a-a", def.Body, "occurrences defaults to first")
}

func TestApply_Modes(t *testing.T) {
	tests := []struct {
		name string
		edit Edit
		want string
	}{
		{"replace", Edit{Mode: ModeReplace, Target: "world", Text: "there"}, "hello there, world"},
		{"insertAfter", Edit{Mode: ModeInsertAfter, Target: "hello", Text: "!"}, "hello! world, world"},
		{"insertBefore", Edit{Mode: ModeInsertBefore, Target: "world", Text: "big "}, "hello big world, world"},
		{"remove", Edit{Mode: ModeRemove, Target: ", world"}, "hello world"},
		{"insertAfter all", Edit{Mode: ModeInsertAfter, Target: "world", Text: "!", Occurrences: OccurrencesAll}, "hello world!, world!"},
		{"remove all", Edit{Mode: ModeRemove, Target: "world", Occurrences: OccurrencesAll}, "hello , "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Apply("hello world, world", []Edit{tc.edit})
			assert.Equal(t, tc.want, out.Body)
			assert.Equal(t, StatusApplied, out.Results[0].Status)
		})
	}
}

func TestApply_SequentialDependency(t *testing.T) {
	out := Apply("alpha", []Edit{
		{Mode: ModeInsertAfter, Target: "alpha", Text: " beta"},
		{Mode: ModeReplace, Target: "beta", Text: "gamma"},
	})
	assert.Equal(t, "alpha gamma", out.Body)
	assert.Equal(t, 2, out.Applied())
}

func TestApply_SkipsWithoutAborting(t *testing.T) {
	out := Apply("one two", []Edit{
		{Mode: ModeReplace, Target: "three", Text: "3"},
		{Mode: ModeReplace, Target: "one", Text: ""},
		{Mode: ModeInsertAfter, Target: "", Text: "x"},
		{Mode: "rewrite", Target: "one", Text: "1"},
		{Mode: ModeRemove, Target: "one", Occurrences: OccurrencesAll},
		{Mode: ModeRemove, Target: "one"},
		{Mode: ModeReplace, Target: "two", Text: "2"},
	})

	require.Len(t, out.Results, 7)
	reasons := make([]string, len(out.Results))
	for i, r := range out.Results {
		assert.Equal(t, i, r.Index)
		reasons[i] = r.Reason
	}
	assert.Equal(t, []string{ReasonNotFound, ReasonMissingText, ReasonMissingTarget, ReasonUnknownMode, "", ReasonNotFound, ""}, reasons)
	assert.Equal(t, " 2", out.Body)
	assert.Equal(t, 2, out.Applied())
	assert.Equal(t, 5, out.Skipped())
}

func TestApply_Empty(t *testing.T) {
	out := Apply("unchanged", nil)
	assert.Equal(t, "unchanged", out.Body)
	assert.Empty(t, out.Results)
}

func TestDiff(t *testing.T) {
	assert.Equal(t, "", Diff("note", "same\n", "same\n"))

	d := Diff("note", "line one\nline two\n", "line one\nline 2\n")
	assert.True(t, strings.HasPrefix(d, "--- note (before)\n+++ note (after)\n"), d)
	assert.Contains(t, d, "-line two\n")
	assert.Contains(t, d, "+line 2\n")
}
