// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the archive tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/archive"
	"github.com/starford/lorekeeper/internal/edits"
	"github.com/starford/lorekeeper/internal/lenient"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/ratelimit"
)

// DefaultChatID is used by pin tools when the caller gives no chat id.
const DefaultChatID = "mcp"

// Server wraps the MCP server with the archive tools. Every call acts on
// behalf of a single configured user.
type Server struct {
	mcp     *server.MCPServer
	archive *archive.Service
	userID  string
	chatID  string
	limiter *ratelimit.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithChatID sets the chat used by pin tools when none is given.
func WithChatID(id string) Option {
	return func(s *Server) { s.chatID = id }
}

// WithLimiter charges one token per tool call against the user's bucket.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New creates a new MCP server with all archive tools registered.
func New(svc *archive.Service, userID string, opts ...Option) *Server {
	s := &Server{archive: svc, userID: userID, chatID: DefaultChatID}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(
		"Lorekeeper",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("archive_search",
		mcp.WithDescription("Search archive entries by free text and tags, newest first. "+
			"Pass nextCursor back as cursor to page."),
		mcp.WithString("query", mcp.Description("Free-text query over entity, body and tags")),
		mcp.WithArray("tags", mcp.Description("Tags to filter by"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("matchMode", mcp.Description(`"any" (default) or "all" of the tags`)),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20, max 100)")),
		mcp.WithString("cursor", mcp.Description("Opaque cursor from a previous search")),
	), s.wrap(s.search))

	s.mcp.AddTool(mcp.NewTool("archive_read",
		mcp.WithDescription("Read an archive entry by slug."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entry slug")),
		mcp.WithBoolean("includeLinks", mcp.Description("Also return incoming and outgoing links")),
	), s.wrap(s.read))

	s.mcp.AddTool(mcp.NewTool("archive_create",
		mcp.WithDescription("Create an archive entry. Read the contract first via "+
			"get_archive_contract or the "+ContractURI+" resource."),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Display name of the entry")),
		mcp.WithString("slug", mcp.Description("Optional slug; derived from entity when omitted")),
		mcp.WithString("body", mcp.Description("Markdown body")),
		mcp.WithArray("tags", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("links", mcp.Description("Links to existing entries: {targetSlug, type?, bidirectional?}"),
			mcp.Items(map[string]any{"type": "object"})),
	), s.wrap(s.create))

	s.mcp.AddTool(mcp.NewTool("archive_update",
		mcp.WithDescription("Update an entry: rename, replace or append to the body, and change tags. "+
			"Field names are lenient; see the archive contract."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entry slug")),
		mcp.WithString("entity", mcp.Description("New display name")),
		mcp.WithString("body", mcp.Description("Full body replacement")),
		mcp.WithString("appendBody", mcp.Description("Text appended to the body")),
		mcp.WithArray("addTags", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("removeTags", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("setTags", mcp.Description("Desired final tag set"), mcp.Items(map[string]any{"type": "string"})),
	), s.wrap(s.update))

	s.mcp.AddTool(mcp.NewTool("archive_delete",
		mcp.WithDescription("Delete an entry together with its links and pins."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entry slug")),
	), s.wrap(s.delete))

	s.mcp.AddTool(mcp.NewTool("archive_apply_edits",
		mcp.WithDescription("Apply anchored edits to an entry body in order. "+
			"Each edit is {mode: replace|insertAfter|insertBefore|remove, target, text?, occurrences: first|all}."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entry slug")),
		mcp.WithArray("edits", mcp.Required(), mcp.Items(map[string]any{"type": "object"})),
	), s.wrap(s.applyEdits))

	s.mcp.AddTool(mcp.NewTool("archive_link",
		mcp.WithDescription("Link two existing entries. Idempotent per pair and type."),
		mcp.WithString("sourceSlug", mcp.Required()),
		mcp.WithString("targetSlug", mcp.Required()),
		mcp.WithString("type", mcp.Description(`Link type (default "related")`)),
		mcp.WithBoolean("bidirectional"),
	), s.wrap(s.link))

	s.mcp.AddTool(mcp.NewTool("archive_unlink",
		mcp.WithDescription("Remove a link between two entries."),
		mcp.WithString("sourceSlug", mcp.Required()),
		mcp.WithString("targetSlug", mcp.Required()),
		mcp.WithString("type", mcp.Description(`Link type (default "related")`)),
	), s.wrap(s.unlink))

	s.mcp.AddTool(mcp.NewTool("archive_pin",
		mcp.WithDescription("Pin an entry so it is injected into the chat's system prompt."),
		mcp.WithString("slug", mcp.Required()),
		mcp.WithString("chatId", mcp.Description("Chat to pin into; defaults to the session chat")),
	), s.wrap(s.pin))

	s.mcp.AddTool(mcp.NewTool("archive_unpin",
		mcp.WithDescription("Unpin an entry from a chat."),
		mcp.WithString("slug", mcp.Required()),
		mcp.WithString("chatId", mcp.Description("Chat to unpin from; defaults to the session chat")),
	), s.wrap(s.unpin))

	s.mcp.AddTool(mcp.NewTool("get_archive_contract",
		mcp.WithDescription("Returns the archive contract. "+
			"Call this before creating or updating entries to learn the rules."),
	), s.getContract)

	// Resource: archive contract.
	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Archive Contract",
			mcp.WithResourceDescription("Rules for archive entries, updates, edits and links."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type toolFunc func(ctx context.Context, req mcp.CallToolRequest) (any, error)

// wrap charges the rate limiter and renders the result or a structured
// tool error as JSON text.
func (s *Server) wrap(fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.limiter != nil {
			if _, err := s.limiter.Consume(ctx, "user:"+s.userID, 1); err != nil {
				return toolError(err), nil
			}
		}
		out, err := fn(ctx, req)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func toolError(err error) *mcp.CallToolResult {
	data, _ := json.Marshal(apperr.ToTool(err))
	return mcp.NewToolResultError(string(data))
}

// requireString maps a missing argument onto a validation error so the
// caller gets hints like any other invalid input.
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v, err := req.RequireString(key)
	if err != nil || v == "" {
		return "", apperr.Invalid(key, "is required")
	}
	return v, nil
}

// decodeArg re-decodes a structured argument into out.
func decodeArg(req mcp.CallToolRequest, key string, out any) error {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return apperr.Invalid(key, err.Error())
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Invalid(key, "has the wrong shape: "+err.Error())
	}
	return nil
}

type entryOut struct {
	Slug      string            `json:"slug"`
	Entity    string            `json:"entity"`
	Tags      []string          `json:"tags"`
	Body      string            `json:"body,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Links     []models.LinkView `json:"links,omitempty"`
}

func toEntryOut(e models.Entry) entryOut {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return entryOut{
		Slug:      e.Slug,
		Entity:    e.Entity,
		Tags:      tags,
		Body:      e.Body,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	res, err := s.archive.Search(ctx, s.userID, archive.SearchRequest{
		Query:     req.GetString("query", ""),
		Tags:      lenient.Tags(req.GetArguments()["tags"]),
		MatchMode: req.GetString("matchMode", ""),
		Limit:     req.GetInt("limit", 0),
		Cursor:    req.GetString("cursor", ""),
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) read(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	slug, err := requireString(req, "slug")
	if err != nil {
		return nil, err
	}
	res, err := s.archive.Read(ctx, s.userID, slug, req.GetBool("includeLinks", false))
	if err != nil {
		return nil, err
	}
	out := toEntryOut(res.Entry)
	out.Links = res.Links
	return out, nil
}

type createOut struct {
	entryOut
	SlugAdjusted bool   `json:"slugAdjusted"`
	BaseSlug     string `json:"baseSlug"`
	Note         string `json:"note,omitempty"`
}

func (s *Server) create(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	p := models.CreateParams{
		Entity: req.GetString("entity", ""),
		Slug:   req.GetString("slug", ""),
		Body:   req.GetString("body", ""),
		Tags:   lenient.Tags(req.GetArguments()["tags"]),
	}
	if err := decodeArg(req, "links", &p.Links); err != nil {
		return nil, err
	}
	res, err := s.archive.Create(ctx, s.userID, p)
	if err != nil {
		return nil, err
	}
	out := createOut{
		entryOut:     toEntryOut(res.Entry),
		SlugAdjusted: res.Adjusted,
		BaseSlug:     res.BaseSlug,
	}
	out.Links = res.Links
	notes := res.Notes
	if res.Adjusted {
		notes = append([]string{fmt.Sprintf("slug %q was taken; stored as %q", res.BaseSlug, res.Entry.Slug)}, notes...)
	}
	out.Note = strings.Join(notes, "; ")
	return out, nil
}

type updateOut struct {
	entryOut
	NoOp  bool     `json:"noOp"`
	Notes []string `json:"notes,omitempty"`
}

func (s *Server) update(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	raw := req.GetArguments()
	slug, ok := lenient.Slug(raw)
	if !ok {
		_, err := lenient.Normalize(raw, nil)
		return nil, err
	}
	// The diff against cur is advisory; Update resolves SetTags against the
	// stored tags inside its own transaction.
	cur, err := s.archive.Read(ctx, s.userID, slug, false)
	if err != nil {
		return nil, err
	}
	u, err := lenient.Normalize(raw, cur.Entry.Tags)
	if err != nil {
		return nil, err
	}
	res, err := s.archive.Update(ctx, s.userID, u.Slug, u.Params)
	if err != nil {
		return nil, err
	}
	out := updateOut{entryOut: toEntryOut(res.Entry), NoOp: res.NoOp, Notes: u.Notes}
	if res.AppendIgnored && len(u.Notes) == 0 {
		out.Notes = []string{lenient.NoteAppendIgnored}
	}
	return out, nil
}

type deleteOut struct {
	Slug         string `json:"slug"`
	Deleted      bool   `json:"deleted"`
	RemovedLinks int    `json:"removedLinks"`
}

func (s *Server) delete(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	slug, err := requireString(req, "slug")
	if err != nil {
		return nil, err
	}
	res, err := s.archive.Delete(ctx, s.userID, slug)
	if err != nil {
		return nil, err
	}
	return deleteOut{Slug: res.Slug, Deleted: res.Deleted, RemovedLinks: res.RemovedLinks}, nil
}

type editsOut struct {
	Slug         string         `json:"slug"`
	AppliedEdits int            `json:"appliedEdits"`
	SkippedEdits int            `json:"skippedEdits"`
	Edits        []edits.Result `json:"edits"`
	BodyLength   int            `json:"bodyLength"`
	Updated      bool           `json:"updated"`
	OldBody      string         `json:"oldBody"`
	NewBody      string         `json:"newBody"`
}

func (s *Server) applyEdits(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	slug, err := requireString(req, "slug")
	if err != nil {
		return nil, err
	}
	var batch []edits.Edit
	if err := decodeArg(req, "edits", &batch); err != nil {
		return nil, err
	}
	res, err := s.archive.ApplyEdits(ctx, s.userID, slug, batch, req.GetString("ifMatch", ""))
	if err != nil {
		return nil, err
	}
	return editsOut{
		Slug:         res.Slug,
		AppliedEdits: res.AppliedEdits,
		SkippedEdits: res.SkippedEdits,
		Edits:        res.Edits,
		BodyLength:   res.BodyLength,
		Updated:      res.Updated,
		OldBody:      res.OldBody,
		NewBody:      res.NewBody,
	}, nil
}

type linkOut struct {
	SourceSlug    string `json:"sourceSlug"`
	TargetSlug    string `json:"targetSlug"`
	Type          string `json:"type"`
	Bidirectional bool   `json:"bidirectional"`
	Created       bool   `json:"created"`
}

func (s *Server) link(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	res, err := s.archive.Link(ctx, s.userID, archive.LinkParams{
		SourceSlug:    req.GetString("sourceSlug", ""),
		TargetSlug:    req.GetString("targetSlug", ""),
		Type:          req.GetString("type", ""),
		Bidirectional: req.GetBool("bidirectional", false),
	})
	if err != nil {
		return nil, err
	}
	return linkOut{
		SourceSlug:    res.SourceSlug,
		TargetSlug:    res.TargetSlug,
		Type:          res.Link.Type,
		Bidirectional: res.Link.Bidirectional,
		Created:       res.Created,
	}, nil
}

func (s *Server) unlink(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	src, err := requireString(req, "sourceSlug")
	if err != nil {
		return nil, err
	}
	tgt, err := requireString(req, "targetSlug")
	if err != nil {
		return nil, err
	}
	removed, err := s.archive.Unlink(ctx, s.userID, src, tgt, req.GetString("type", ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"sourceSlug": src, "targetSlug": tgt, "removed": removed}, nil
}

func (s *Server) pin(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	slug, err := requireString(req, "slug")
	if err != nil {
		return nil, err
	}
	return s.archive.Pin(ctx, s.userID, req.GetString("chatId", s.chatID), slug)
}

func (s *Server) unpin(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	slug, err := requireString(req, "slug")
	if err != nil {
		return nil, err
	}
	return s.archive.Unpin(ctx, s.userID, req.GetString("chatId", s.chatID), slug)
}

func (s *Server) getContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArchiveContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     ArchiveContract,
		},
	}, nil
}
