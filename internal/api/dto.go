package api

import (
	"time"

	"github.com/starford/lorekeeper/internal/agentprompt"
	"github.com/starford/lorekeeper/internal/archive"
	"github.com/starford/lorekeeper/internal/checksum"
	"github.com/starford/lorekeeper/internal/edits"
	"github.com/starford/lorekeeper/internal/models"
)

// CreateEntryRequest is the request body for creating an entry.
type CreateEntryRequest = models.CreateParams

// UpdateEntryRequest is the request body for PATCH /entries/{slug}. Absent
// fields are left unchanged.
type UpdateEntryRequest struct {
	NewEntity  *string  `json:"newEntity,omitempty" example:"Ada Lovelace"`
	AddTags    []string `json:"addTags,omitempty" example:"people"`
	RemoveTags []string `json:"removeTags,omitempty"`
	Body       *string  `json:"body,omitempty"`
	AppendBody *string  `json:"appendBody,omitempty"`
}

// ApplyEditsRequest is the request body for POST /entries/{slug}/edits.
type ApplyEditsRequest struct {
	Edits []edits.Edit `json:"edits" validate:"required"`
}

// LinkRequest is the request body for POST /links.
type LinkRequest = archive.LinkParams

// PromptRequest is the request body for POST /chats/{chatID}/system-prompt.
type PromptRequest struct {
	AgentID      string            `json:"agentId,omitempty"`
	AllowedTools []string          `json:"allowedTools,omitempty"`
	RequestHints requestHints      `json:"requestHints"`
	Variables    map[string]string `json:"variables,omitempty"`
}

type requestHints struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
}

// EntryDetail is the full entry response.
type EntryDetail struct {
	Slug      string            `json:"slug" example:"ada-lovelace"`
	Entity    string            `json:"entity" example:"Ada Lovelace"`
	Body      string            `json:"body"`
	Tags      []string          `json:"tags"`
	Checksum  string            `json:"checksum"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Links     []models.LinkView `json:"links,omitempty"`
}

func entryDetail(e models.Entry, links []models.LinkView) EntryDetail {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return EntryDetail{
		Slug:      e.Slug,
		Entity:    e.Entity,
		Body:      e.Body,
		Tags:      tags,
		Checksum:  checksum.Body(e.Body),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Links:     links,
	}
}

// CreateEntryResponse reports the created entry and slug adjustments.
type CreateEntryResponse struct {
	EntryDetail
	BaseSlug     string   `json:"baseSlug"`
	SlugAdjusted bool     `json:"slugAdjusted"`
	Notes        []string `json:"notes,omitempty"`
}

// ApplyEditsResponse summarizes an edit batch.
type ApplyEditsResponse struct {
	Slug         string         `json:"slug"`
	AppliedEdits int            `json:"appliedEdits"`
	SkippedEdits int            `json:"skippedEdits"`
	Edits        []edits.Result `json:"edits"`
	BodyLength   int            `json:"bodyLength"`
	Updated      bool           `json:"updated"`
	Diff         string         `json:"diff,omitempty"`
}

// AgentDetail is an agent with its effective prompt configuration.
type AgentDetail struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Custom      bool               `json:"custom"`
	Prompt      agentprompt.Config `json:"prompt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func agentDetail(a models.Agent) AgentDetail {
	cfg := agentprompt.Default()
	if a.PromptConfig != nil {
		cfg = agentprompt.Parse(a.PromptConfig)
	}
	return AgentDetail{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Custom:      a.PromptConfig != nil,
		Prompt:      cfg,
		UpdatedAt:   a.UpdatedAt,
	}
}
