// Package edits applies anchor-based text edits to entry bodies.
package edits

import (
	"strings"

	"github.com/aymanbagabas/go-udiff"
)

// Mode is the kind of splice an edit performs at its anchor.
type Mode string

const (
	ModeReplace      Mode = "replace"
	ModeInsertAfter  Mode = "insertAfter"
	ModeInsertBefore Mode = "insertBefore"
	ModeRemove       Mode = "remove"
)

// Occurrence selection.
const (
	OccurrencesFirst = "first"
	OccurrencesAll   = "all"
)

// Result statuses.
const (
	StatusApplied = "applied"
	StatusSkipped = "skipped"
)

// Skip reasons.
const (
	ReasonNotFound      = "not found"
	ReasonMissingText   = "missing text"
	ReasonMissingTarget = "missing target"
	ReasonUnknownMode   = "unknown mode"
)

// Edit is one anchored mutation.
type Edit struct {
	Mode   Mode   `json:"mode"`
	Target string `json:"target"`
	Text   string `json:"text,omitempty"`
	// Occurrences is "first" (default) or "all".
	Occurrences string `json:"occurrences,omitempty"`
}

// Result reports what happened to one edit.
type Result struct {
	Index  int    `json:"index"`
	Mode   Mode   `json:"mode"`
	Target string `json:"target"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	// Count is the number of occurrences mutated.
	Count int `json:"count"`
}

// Outcome is the result of Apply.
type Outcome struct {
	Body    string
	Results []Result
}

// Applied counts the applied edits.
func (o Outcome) Applied() int {
	n := 0
	for _, r := range o.Results {
		if r.Status == StatusApplied {
			n++
		}
	}
	return n
}

// Skipped counts the skipped edits.
func (o Outcome) Skipped() int {
	return len(o.Results) - o.Applied()
}

// Apply runs edits in order, each against the output of the previous ones.
// A failing edit is skipped and reported; it never aborts the batch.
func Apply(body string, edits []Edit) Outcome {
	out := Outcome{Body: body, Results: make([]Result, 0, len(edits))}
	for i, e := range edits {
		res := Result{Index: i, Mode: e.Mode, Target: e.Target}
		next, count, reason := apply(out.Body, e)
		if reason != "" {
			res.Status = StatusSkipped
			res.Reason = reason
		} else {
			res.Status = StatusApplied
			res.Count = count
			out.Body = next
		}
		out.Results = append(out.Results, res)
	}
	return out
}

func apply(body string, e Edit) (string, int, string) {
	switch e.Mode {
	case ModeReplace, ModeInsertAfter, ModeInsertBefore, ModeRemove:
	default:
		return body, 0, ReasonUnknownMode
	}
	if e.Target == "" {
		return body, 0, ReasonMissingTarget
	}
	if e.Mode != ModeRemove && e.Text == "" {
		return body, 0, ReasonMissingText
	}

	replacement := splice(e)
	if e.Occurrences == OccurrencesAll {
		pieces := strings.Split(body, e.Target)
		count := len(pieces) - 1
		if count == 0 {
			return body, 0, ReasonNotFound
		}
		return strings.Join(pieces, replacement), count, ""
	}

	i := strings.Index(body, e.Target)
	if i < 0 {
		return body, 0, ReasonNotFound
	}
	return body[:i] + replacement + body[i+len(e.Target):], 1, ""
}

// splice returns what the matched target is turned into.
func splice(e Edit) string {
	switch e.Mode {
	case ModeReplace:
		return e.Text
	case ModeInsertAfter:
		return e.Target + e.Text
	case ModeInsertBefore:
		return e.Text + e.Target
	}
	return ""
}

// Diff renders a unified diff between two bodies. Identical bodies yield "".
func Diff(label, oldBody, newBody string) string {
	if oldBody == newBody {
		return ""
	}
	return udiff.Unified(label+" (before)", label+" (after)", oldBody, newBody)
}
