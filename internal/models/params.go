package models

import "time"

// Tag match modes for search.
const (
	MatchAny = "any"
	MatchAll = "all"
)

// SearchParams filters and paginates an archive search.
type SearchParams struct {
	Query     string
	Tags      []string
	MatchMode string
	Limit     int
	// After is the decoded cursor; results strictly older than it are returned.
	After *Cursor
}

// Cursor is the composite (updatedAt, id) pagination key.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// UpdateParams describes a canonical entry update. Nil pointers mean "leave as is".
type UpdateParams struct {
	NewEntity *string
	// SetTags is the desired tag set, resolved against the stored tags in
	// the same transaction. An empty slice clears them.
	SetTags    *[]string
	AddTags    []string
	RemoveTags []string
	Body       *string
	AppendBody *string
	// IfMatch, when set, must equal the checksum of the current body.
	IfMatch string
}

// LinkRequest is a link to create alongside a new entry.
type LinkRequest struct {
	TargetSlug    string `json:"targetSlug"`
	Type          string `json:"type,omitempty"`
	Bidirectional bool   `json:"bidirectional,omitempty"`
}

// CreateParams describes a new entry.
type CreateParams struct {
	Entity string        `json:"entity"`
	Slug   string        `json:"slug,omitempty"`
	Body   string        `json:"body"`
	Tags   []string      `json:"tags,omitempty"`
	Links  []LinkRequest `json:"links,omitempty"`
}
