// Package models defines the domain types for the archive knowledge base.
package models

import "time"

// Entry is one archive knowledge-base entry, owned by a single user.
type Entry struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"-" db:"user_id"`
	Slug      string    `json:"slug" db:"slug"`
	Entity    string    `json:"entity" db:"entity"`
	Body      string    `json:"body" db:"body"`
	Tags      []string  `json:"tags" db:"-"`
	CreatedAt time.Time `json:"createdAt" db:"-"`
	UpdatedAt time.Time `json:"updatedAt" db:"-"`
}

// DefaultLinkType is used when a link is created without a type.
const DefaultLinkType = "related"

// Link is a typed edge between two entries of the same user.
type Link struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"sourceId"`
	TargetID      string    `json:"targetId"`
	Type          string    `json:"type"`
	Bidirectional bool      `json:"bidirectional"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Link directions as seen from one endpoint.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// LinkView is a link as seen from one of its endpoints.
type LinkView struct {
	Slug          string `json:"slug"`
	Entity        string `json:"entity"`
	Type          string `json:"type"`
	Direction     string `json:"direction"`
	Bidirectional bool   `json:"bidirectional"`
}

// Pin records that an entry is injected into a chat's system prompt.
type Pin struct {
	ChatID   string    `json:"chatId"`
	EntryID  string    `json:"entryId"`
	PinnedAt time.Time `json:"pinnedAt"`
}

// Agent is a named assistant persona. PromptConfig is nil when the agent
// uses the default prompt composition.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PromptConfig []byte    `json:"-"`
	Checksum     string    `json:"checksum"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
