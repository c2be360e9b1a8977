package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/archive"
	"github.com/starford/lorekeeper/internal/chat"
	"github.com/starford/lorekeeper/internal/checksum"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/prompt"
)

// AgentStore is the agent catalog as seen by the API.
type AgentStore interface {
	Agent(ctx context.Context, id string) (models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	SetAgentPrompt(ctx context.Context, id string, config []byte) error
}

// Handler holds API route handlers.
type Handler struct {
	archive *archive.Service
	chat    *chat.Assembler
	agents  AgentStore
}

// NewHandler creates a new Handler.
func NewHandler(svc *archive.Service, assembler *chat.Assembler, agents AgentStore) *Handler {
	return &Handler{archive: svc, chat: assembler, agents: agents}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ifMatch(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("If-Match"))
}

// SearchEntries handles GET /entries.
//
//	@Summary		Search entries, newest first
//	@Tags			entries
//	@Produce		json
//	@Param			q		query		string	false	"Text query"
//	@Param			tags	query		string	false	"Comma-separated tags"
//	@Param			match	query		string	false	"Tag match mode"	Enums(any, all)
//	@Param			limit	query		int		false	"Page size"
//	@Param			cursor	query		string	false	"Opaque cursor from a previous page"
//	@Success		200		{object}	archive.SearchResult
//	@Router			/entries [get]
func (h *Handler) SearchEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, "search", apperr.Invalid("limit", "must be an integer"))
			return
		}
		limit = n
	}
	res, err := h.archive.Search(r.Context(), UserFrom(r.Context()), archive.SearchRequest{
		Query:     q.Get("q"),
		Tags:      splitList(q.Get("tags")),
		MatchMode: q.Get("match"),
		Limit:     limit,
		Cursor:    q.Get("cursor"),
	})
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateEntry handles POST /entries.
//
//	@Summary		Create an entry; colliding slugs are suffixed
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateEntryRequest	true	"Entry to create"
//	@Success		201		{object}	CreateEntryResponse
//	@Failure		400		{object}	errResponse
//	@Router			/entries [post]
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.archive.Create(r.Context(), UserFrom(r.Context()), req)
	if err != nil {
		writeError(w, "create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateEntryResponse{
		EntryDetail:  entryDetail(res.Entry, res.Links),
		BaseSlug:     res.BaseSlug,
		SlugAdjusted: res.Adjusted,
		Notes:        res.Notes,
	})
}

// GetEntry handles GET /entries/{slug}.
//
//	@Summary		Read one entry
//	@Tags			entries
//	@Produce		json
//	@Param			slug	path		string	true	"Entry slug"
//	@Param			links	query		bool	false	"Include links"
//	@Success		200		{object}	EntryDetail
//	@Failure		404		{object}	errResponse
//	@Router			/entries/{slug} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	includeLinks, _ := strconv.ParseBool(r.URL.Query().Get("links"))
	res, err := h.archive.Read(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "slug"), includeLinks)
	if err != nil {
		writeError(w, "get entry", err)
		return
	}
	detail := entryDetail(res.Entry, res.Links)
	w.Header().Set("ETag", checksum.ETag(detail.Body))
	writeJSON(w, http.StatusOK, detail)
}

// UpdateEntry handles PATCH /entries/{slug}.
//
//	@Summary		Rename, retag or rewrite an entry
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			slug		path		string				true	"Entry slug"
//	@Param			If-Match	header		string				false	"Body checksum for optimistic concurrency"
//	@Param			body		body		UpdateEntryRequest	true	"Changes"
//	@Success		200			{object}	EntryDetail
//	@Failure		409			{object}	errResponse
//	@Router			/entries/{slug} [patch]
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.archive.Update(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "slug"), models.UpdateParams{
		NewEntity:  req.NewEntity,
		AddTags:    req.AddTags,
		RemoveTags: req.RemoveTags,
		Body:       req.Body,
		AppendBody: req.AppendBody,
		IfMatch:    ifMatch(r),
	})
	if err != nil {
		writeError(w, "update entry", err)
		return
	}
	detail := entryDetail(res.Entry, nil)
	w.Header().Set("ETag", checksum.ETag(detail.Body))
	writeJSON(w, http.StatusOK, detail)
}

// DeleteEntry handles DELETE /entries/{slug}.
//
//	@Summary		Delete an entry with its links and pins
//	@Tags			entries
//	@Param			slug	path	string	true	"Entry slug"
//	@Success		200		{object}	archive.DeleteResult
//	@Failure		404		{object}	errResponse
//	@Router			/entries/{slug} [delete]
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	res, err := h.archive.Delete(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "delete entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":         res.Slug,
		"deleted":      res.Deleted,
		"removedLinks": res.RemovedLinks,
	})
}

// ApplyEdits handles POST /entries/{slug}/edits.
//
//	@Summary		Apply anchored edits to an entry body
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			slug		path		string				true	"Entry slug"
//	@Param			If-Match	header		string				false	"Body checksum"
//	@Param			body		body		ApplyEditsRequest	true	"Edits"
//	@Success		200			{object}	ApplyEditsResponse
//	@Router			/entries/{slug}/edits [post]
func (h *Handler) ApplyEdits(w http.ResponseWriter, r *http.Request) {
	var req ApplyEditsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.archive.ApplyEdits(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "slug"), req.Edits, ifMatch(r))
	if err != nil {
		writeError(w, "apply edits", err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyEditsResponse{
		Slug:         res.Slug,
		AppliedEdits: res.AppliedEdits,
		SkippedEdits: res.SkippedEdits,
		Edits:        res.Edits,
		BodyLength:   res.BodyLength,
		Updated:      res.Updated,
		Diff:         res.Diff,
	})
}

// CreateLink handles POST /links.
//
//	@Summary		Link two entries
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LinkRequest	true	"Link"
//	@Success		201		{object}	archive.LinkResult
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.archive.Link(r.Context(), UserFrom(r.Context()), req)
	if err != nil {
		writeError(w, "link", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"source":        res.SourceSlug,
		"target":        res.TargetSlug,
		"type":          res.Link.Type,
		"bidirectional": res.Link.Bidirectional,
		"created":       res.Created,
	})
}

// DeleteLink handles DELETE /links?source=&target=&type=.
//
//	@Summary		Remove a link
//	@Tags			links
//	@Param			source	query	string	true	"Source slug"
//	@Param			target	query	string	true	"Target slug"
//	@Param			type	query	string	false	"Link type; all types when empty"
//	@Success		200		{object}	map[string]bool
//	@Router			/links [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	removed, err := h.archive.Unlink(r.Context(), UserFrom(r.Context()), q.Get("source"), q.Get("target"), q.Get("type"))
	if err != nil {
		writeError(w, "unlink", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// ListPins handles GET /chats/{chatID}/pins.
func (h *Handler) ListPins(w http.ResponseWriter, r *http.Request) {
	entries, err := h.archive.PinnedEntries(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, "list pins", err)
		return
	}
	out := make([]EntryDetail, len(entries))
	for i, e := range entries {
		out[i] = entryDetail(e, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// Pin handles PUT /chats/{chatID}/pins/{slug}.
func (h *Handler) Pin(w http.ResponseWriter, r *http.Request) {
	res, err := h.archive.Pin(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "chatID"), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "pin", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Unpin handles DELETE /chats/{chatID}/pins/{slug}.
func (h *Handler) Unpin(w http.ResponseWriter, r *http.Request) {
	res, err := h.archive.Unpin(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "chatID"), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "unpin", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClearChat handles DELETE /chats/{chatID}/pins.
func (h *Handler) ClearChat(w http.ResponseWriter, r *http.Request) {
	n, err := h.archive.ClearChat(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, "clear chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// SystemPrompt handles POST /chats/{chatID}/system-prompt.
//
//	@Summary		Compose the system prompt of a chat turn
//	@Tags			chats
//	@Accept			json
//	@Produce		json
//	@Param			chatID	path		string			true	"Chat id"
//	@Param			body	body		PromptRequest	true	"Turn context"
//	@Success		200		{object}	chat.Prompt
//	@Router			/chats/{chatID}/system-prompt [post]
func (h *Handler) SystemPrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.chat.SystemPrompt(r.Context(), chat.Request{
		UserID:       UserFrom(r.Context()),
		ChatID:       chi.URLParam(r, "chatID"),
		AgentID:      req.AgentID,
		AllowedTools: req.AllowedTools,
		Hints: prompt.RequestHints{
			Latitude:  req.RequestHints.Latitude,
			Longitude: req.RequestHints.Longitude,
			City:      req.RequestHints.City,
			Country:   req.RequestHints.Country,
		},
		Variables: req.Variables,
	})
	if err != nil {
		writeError(w, "system prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
