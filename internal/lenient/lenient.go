// Package lenient maps loosely-typed archive update requests, as produced by
// language models, onto canonical update parameters.
package lenient

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
)

// Synonym tables, in priority order.
var (
	SlugKeys       = []string{"slug", "id", "entry", "file", "targetSlug", "identifier"}
	EntityKeys     = []string{"newEntity", "entity", "title", "name", "rename"}
	BodyKeys       = []string{"body", "fullBody", "replaceBody", "content", "text", "replace"}
	AppendKeys     = []string{"appendBody", "append", "addition", "add", "extra"}
	AddTagsKeys    = []string{"addTags", "addTag", "tagsAdd", "tagAdd"}
	RemoveTagsKeys = []string{"removeTags", "removeTag", "tagsRemove", "tagRemove"}
	SetTagsKeys    = []string{"setTags", "tags"}
	IfMatchKeys    = []string{"ifMatch", "checksum", "expectedChecksum"}
)

// NoteAppendIgnored is reported when both a full body and an append resolve.
const NoteAppendIgnored = "both body and appendBody were given; the full body replacement was applied and appendBody ignored"

// Update is a normalized request.
type Update struct {
	Slug   string
	Params models.UpdateParams
	// Notes explain silent adjustments to the caller.
	Notes []string
}

// Slug extracts the entry slug, if any synonym carries one.
func Slug(raw map[string]any) (string, bool) {
	s, ok := pickString(raw, SlugKeys)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// Normalize resolves synonyms and tag-set semantics against currentTags.
// The only failure is a missing slug.
func Normalize(raw map[string]any, currentTags []string) (Update, error) {
	slug, ok := Slug(raw)
	if !ok {
		return Update{}, &apperr.ToolError{
			Code:    apperr.CodeMissingSlug,
			Message: "Missing slug: the update does not say which entry to change",
			Hints: []string{
				`pass the entry slug as "slug"`,
				"use archive_search to find the slug of an existing entry",
			},
		}
	}

	u := Update{Slug: slug}
	if entity, ok := pickString(raw, EntityKeys); ok {
		entity = strings.TrimSpace(entity)
		u.Params.NewEntity = &entity
	}
	body, hasBody := pickString(raw, BodyKeys)
	appendBody, hasAppend := pickString(raw, AppendKeys)
	switch {
	case hasBody && hasAppend:
		u.Params.Body = &body
		u.Notes = append(u.Notes, NoteAppendIgnored)
	case hasBody:
		u.Params.Body = &body
	case hasAppend:
		u.Params.AppendBody = &appendBody
	}
	if ifMatch, ok := pickString(raw, IfMatchKeys); ok {
		u.Params.IfMatch = strings.TrimSpace(ifMatch)
	}

	add, _ := pickList(raw, AddTagsKeys)
	remove, _ := pickList(raw, RemoveTagsKeys)
	if desired, ok := pickDesired(raw, SetTagsKeys); ok {
		set := dedupe(desired)
		u.Params.SetTags = &set
		impliedAdd, impliedRemove := diffTags(desired, currentTags)
		add = append(impliedAdd, add...)
		remove = append(impliedRemove, remove...)
	}
	add = dedupe(add)
	remove = without(dedupe(remove), add)
	if len(add) > 0 {
		u.Params.AddTags = add
	}
	if len(remove) > 0 {
		u.Params.RemoveTags = remove
	}
	return u, nil
}

// absent reports values that count as "not given".
func absent(v any) bool {
	if v == nil {
		return true
	}
	if b, ok := v.(bool); ok {
		return !b
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "none", "null":
		return true
	}
	return false
}

func pickString(raw map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || absent(v) {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		return s, true
	}
	return "", false
}

// pickList returns the first non-empty tag list. Strings are split on commas.
func pickList(raw map[string]any, keys []string) ([]string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if tags := toList(v); len(tags) > 0 {
			return tags, true
		}
	}
	return nil, false
}

// pickDesired is pickList for target-state keys: an array, even an empty
// one, is a desired set. An empty array clears every tag.
func pickDesired(raw map[string]any, keys []string) ([]string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch v.(type) {
		case []any, []string:
			return toList(v), true
		}
		if tags := toList(v); len(tags) > 0 {
			return tags, true
		}
	}
	return nil, false
}

// Tags coerces a loose tag value (array or comma-separated string) into a
// lowercase list.
func Tags(v any) []string { return toList(v) }

func toList(v any) []string {
	var items []string
	switch x := v.(type) {
	case string:
		items = strings.Split(x, ",")
	case []string:
		items = x
	case []any:
		for _, it := range x {
			if absent(it) {
				continue
			}
			if s, err := cast.ToStringE(it); err == nil {
				items = append(items, strings.Split(s, ",")...)
			}
		}
	default:
		return nil
	}
	var out []string
	for _, it := range items {
		if absent(it) {
			continue
		}
		out = append(out, normalizeTag(it))
	}
	return out
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// diffTags synthesizes the add/remove lists that turn current into desired.
func diffTags(desired, current []string) (add, remove []string) {
	want := make(map[string]struct{}, len(desired))
	for _, t := range desired {
		want[normalizeTag(t)] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	for _, t := range current {
		have[normalizeTag(t)] = struct{}{}
	}
	for _, t := range desired {
		if _, ok := have[normalizeTag(t)]; !ok {
			add = append(add, normalizeTag(t))
		}
	}
	for _, t := range current {
		if _, ok := want[normalizeTag(t)]; !ok {
			remove = append(remove, normalizeTag(t))
		}
	}
	return add, remove
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func without(tags, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, t := range drop {
		skip[t] = struct{}{}
	}
	var out []string
	for _, t := range tags {
		if _, ok := skip[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
