// Package archive implements the knowledge-base rules over a transactional
// repository: slug allocation, tag set updates, links, pins and search.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/checksum"
	"github.com/starford/lorekeeper/internal/edits"
	"github.com/starford/lorekeeper/internal/models"
)

// Event kinds passed to the Notifier.
const (
	EventEntryCreated = "entry.created"
	EventEntryUpdated = "entry.updated"
	EventEntryDeleted = "entry.deleted"
	EventPinsUpdated  = "pins.updated"
	EventGraphUpdated = "graph.updated"
)

// Notifier receives change events after a successful commit.
type Notifier interface {
	Notify(userID, kind string, data map[string]string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, map[string]string) {}

const (
	maxEntityLen = 500
	maxBodyLen   = 1_000_000
	maxTagLen    = 100
)

// Service is the archive entry store.
type Service struct {
	repo           Repository
	notify         Notifier
	now            func() time.Time
	searchLimit    int
	maxSearchLimit int
	previewChars   int
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the change-event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notify = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSearchLimits sets the default and maximum search page size.
func WithSearchLimits(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.searchLimit = def
		}
		if max > 0 {
			s.maxSearchLimit = max
		}
	}
}

// WithPreviewChars sets the body preview length of search results.
func WithPreviewChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewChars = n
		}
	}
}

// NewService creates an archive service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		notify:         nopNotifier{},
		now:            time.Now,
		searchLimit:    20,
		maxSearchLimit: 100,
		previewChars:   200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	Entry models.Entry
	// Adjusted is true when the slug was suffixed to avoid a collision.
	Adjusted bool
	BaseSlug string
	Links    []models.LinkView
	// Notes report links that could not be created.
	Notes []string
}

// Create stores a new entry. Without a slug one is derived from the
// entity; a taken slug is suffixed -2, -3, ... until free.
func (s *Service) Create(ctx context.Context, userID string, p models.CreateParams) (CreateResult, error) {
	p.Entity = strings.TrimSpace(p.Entity)
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Entity, validation.Required, validation.RuneLength(1, maxEntityLen)),
		validation.Field(&p.Body, validation.RuneLength(0, maxBodyLen)),
		validation.Field(&p.Tags, validation.Each(validation.RuneLength(0, maxTagLen))),
	); err != nil {
		return CreateResult{}, apperr.FromValidation(err)
	}

	base := Slugify(p.Slug)
	if base == "" {
		base = Slugify(p.Entity)
	}
	if base == "" {
		base = fallbackSlug
	}

	var res CreateResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		res = CreateResult{BaseSlug: base}
		slug := base
		for n := 2; ; n++ {
			taken, err := tx.SlugExists(userID, slug)
			if err != nil {
				return err
			}
			if !taken {
				break
			}
			slug = suffixed(base, n)
		}

		now := s.now().UTC()
		e := models.Entry{
			ID:        ulid.Make().String(),
			UserID:    userID,
			Slug:      slug,
			Entity:    p.Entity,
			Body:      p.Body,
			Tags:      normalizeTags(p.Tags),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertEntry(e); err != nil {
			return err
		}
		res.Entry = e
		res.Adjusted = slug != base

		for _, lr := range p.Links {
			target, err := tx.EntryBySlug(userID, strings.TrimSpace(lr.TargetSlug))
			if errors.Is(err, apperr.ErrNotFound) {
				res.Notes = append(res.Notes, fmt.Sprintf("link target %q not found; link skipped", lr.TargetSlug))
				continue
			}
			if err != nil {
				return err
			}
			if target.ID == e.ID {
				continue
			}
			if _, _, err := tx.UpsertLink(newLink(e.ID, target.ID, lr.Type, lr.Bidirectional, now)); err != nil {
				return err
			}
		}
		if len(p.Links) > 0 {
			links, err := tx.LinksFor(e.ID)
			if err != nil {
				return err
			}
			res.Links = links
		}
		return nil
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("archive: create: %w", err)
	}
	s.notify.Notify(userID, EventEntryCreated, map[string]string{"slug": res.Entry.Slug})
	if len(res.Links) > 0 {
		s.notify.Notify(userID, EventGraphUpdated, nil)
	}
	return res, nil
}

func newLink(sourceID, targetID, linkType string, bidirectional bool, at time.Time) models.Link {
	linkType = strings.ToLower(strings.TrimSpace(linkType))
	if linkType == "" {
		linkType = models.DefaultLinkType
	}
	return models.Link{
		ID:            uuid.NewString(),
		SourceID:      sourceID,
		TargetID:      targetID,
		Type:          linkType,
		Bidirectional: bidirectional,
		CreatedAt:     at,
	}
}

// ReadResult is an entry with its optional links.
type ReadResult struct {
	Entry models.Entry
	Links []models.LinkView
}

// Read returns userID's entry for slug.
func (s *Service) Read(ctx context.Context, userID, slug string, includeLinks bool) (ReadResult, error) {
	var res ReadResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.EntryBySlug(userID, slug)
		if err != nil {
			return err
		}
		res = ReadResult{Entry: e}
		if includeLinks {
			links, err := tx.LinksFor(e.ID)
			if err != nil {
				return err
			}
			res.Links = links
		}
		return nil
	})
	if err != nil {
		return ReadResult{}, fmt.Errorf("archive: read: %w", err)
	}
	return res, nil
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	Entry models.Entry
	// NoOp is true when nothing changed and nothing was written.
	NoOp bool
	// AppendIgnored is true when both Body and AppendBody were given.
	AppendIgnored bool
}

// Update renames, retags and rewrites an entry. Body replaces and wins over
// AppendBody. SetTags, when set, replaces the current tags before AddTags and
// RemoveTags apply. A tag in both AddTags and RemoveTags is kept.
func (s *Service) Update(ctx context.Context, userID, slug string, p models.UpdateParams) (UpdateResult, error) {
	if p.NewEntity != nil {
		trimmed := strings.TrimSpace(*p.NewEntity)
		p.NewEntity = &trimmed
		if err := validation.Validate(trimmed, validation.Required, validation.RuneLength(1, maxEntityLen)); err != nil {
			return UpdateResult{}, apperr.Invalid("newEntity", err.Error())
		}
	}

	var res UpdateResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		cur, err := tx.EntryBySlug(userID, slug)
		if err != nil {
			return err
		}
		if p.IfMatch != "" && !checksum.Matches(p.IfMatch, cur.Body) {
			return apperr.ErrConflict
		}

		next := cur
		if p.NewEntity != nil {
			next.Entity = *p.NewEntity
		}
		res = UpdateResult{}
		switch {
		case p.Body != nil:
			next.Body = *p.Body
			res.AppendIgnored = p.AppendBody != nil
		case p.AppendBody != nil && *p.AppendBody != "":
			next.Body = appendBody(cur.Body, *p.AppendBody)
		}
		if utf8.RuneCountInString(next.Body) > maxBodyLen {
			return apperr.Invalid("body", fmt.Sprintf("the length must be no more than %d", maxBodyLen))
		}
		base := cur.Tags
		if p.SetTags != nil {
			base = *p.SetTags
		}
		next.Tags = applyTagOps(base, p.AddTags, p.RemoveTags)

		if next.Entity == cur.Entity && next.Body == cur.Body && sameSet(next.Tags, cur.Tags) {
			res.Entry = cur
			res.NoOp = true
			return nil
		}
		next.UpdatedAt = s.later(cur.UpdatedAt)
		if err := tx.UpdateEntry(next); err != nil {
			return err
		}
		res.Entry = next
		return nil
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("archive: update: %w", err)
	}
	if !res.NoOp {
		s.notify.Notify(userID, EventEntryUpdated, map[string]string{"slug": slug})
	}
	return res, nil
}

// later returns now, nudged past prev so updatedAt strictly increases.
func (s *Service) later(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func appendBody(body, extra string) string {
	if strings.TrimSpace(body) == "" {
		return extra
	}
	return strings.TrimRight(body, "\n") + "\n\n" + extra
}

func applyTagOps(current, add, remove []string) []string {
	set := make(map[string]struct{}, len(current)+len(add))
	for _, t := range normalizeTags(current) {
		set[t] = struct{}{}
	}
	added := normalizeTags(add)
	keep := make(map[string]struct{}, len(added))
	for _, t := range added {
		keep[t] = struct{}{}
	}
	for _, t := range normalizeTags(remove) {
		if _, ok := keep[t]; !ok {
			delete(set, t)
		}
	}
	for _, t := range added {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]struct{}, len(a))
	for _, t := range a {
		m[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := m[t]; !ok {
			return false
		}
	}
	return true
}

// DeleteResult is the outcome of Delete.
type DeleteResult struct {
	Slug         string
	Deleted      bool
	RemovedLinks int
}

// Delete removes an entry with all its links and pins, atomically.
func (s *Service) Delete(ctx context.Context, userID, slug string) (DeleteResult, error) {
	var res DeleteResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.EntryBySlug(userID, slug)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteEntry(userID, e.ID)
		if err != nil {
			return err
		}
		res = DeleteResult{Slug: slug, Deleted: true, RemovedLinks: removed}
		return nil
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("archive: delete: %w", err)
	}
	s.notify.Notify(userID, EventEntryDeleted, map[string]string{"slug": slug})
	if res.RemovedLinks > 0 {
		s.notify.Notify(userID, EventGraphUpdated, nil)
	}
	return res, nil
}

// LinkParams describes a link between two of a user's entries.
type LinkParams struct {
	SourceSlug    string `json:"sourceSlug"`
	TargetSlug    string `json:"targetSlug"`
	Type          string `json:"type,omitempty"`
	Bidirectional bool   `json:"bidirectional,omitempty"`
}

// LinkResult is the outcome of Link.
type LinkResult struct {
	Link       models.Link
	SourceSlug string
	TargetSlug string
	Created    bool
}

// Link creates the edge, or updates the bidirectional flag of an existing
// edge of the same type.
func (s *Service) Link(ctx context.Context, userID string, p LinkParams) (LinkResult, error) {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.SourceSlug, validation.Required),
		validation.Field(&p.TargetSlug, validation.Required),
		validation.Field(&p.Type, validation.RuneLength(0, 64)),
	); err != nil {
		return LinkResult{}, apperr.FromValidation(err)
	}
	if p.SourceSlug == p.TargetSlug {
		return LinkResult{}, apperr.Invalid("targetSlug", "an entry cannot link to itself")
	}

	var res LinkResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		src, err := tx.EntryBySlug(userID, p.SourceSlug)
		if err != nil {
			return err
		}
		dst, err := tx.EntryBySlug(userID, p.TargetSlug)
		if err != nil {
			return err
		}
		link, created, err := tx.UpsertLink(newLink(src.ID, dst.ID, p.Type, p.Bidirectional, s.now().UTC()))
		if err != nil {
			return err
		}
		res = LinkResult{Link: link, SourceSlug: src.Slug, TargetSlug: dst.Slug, Created: created}
		return nil
	})
	if err != nil {
		return LinkResult{}, fmt.Errorf("archive: link: %w", err)
	}
	s.notify.Notify(userID, EventGraphUpdated, nil)
	return res, nil
}

// Unlink removes the source→target edge of linkType, or of every type when
// linkType is empty. It reports whether anything was removed.
func (s *Service) Unlink(ctx context.Context, userID, sourceSlug, targetSlug, linkType string) (bool, error) {
	var removed bool
	err := s.repo.InTx(ctx, func(tx Tx) error {
		src, err := tx.EntryBySlug(userID, sourceSlug)
		if err != nil {
			return err
		}
		dst, err := tx.EntryBySlug(userID, targetSlug)
		if err != nil {
			return err
		}
		removed, err = tx.DeleteLink(userID, src.ID, dst.ID, strings.ToLower(strings.TrimSpace(linkType)))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("archive: unlink: %w", err)
	}
	if removed {
		s.notify.Notify(userID, EventGraphUpdated, nil)
	}
	return removed, nil
}

// SearchRequest is a search as received from a caller.
type SearchRequest struct {
	Query     string   `json:"query,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	MatchMode string   `json:"matchMode,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Cursor    string   `json:"cursor,omitempty"`
}

// SearchItem is one search hit.
type SearchItem struct {
	Slug        string    `json:"slug"`
	Entity      string    `json:"entity"`
	Tags        []string  `json:"tags"`
	BodyPreview string    `json:"bodyPreview"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LinkCount   int       `json:"linkCount"`
}

// SearchResult is one page of hits.
type SearchResult struct {
	Items      []SearchItem `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// Search returns entries newest first. NextCursor is set when more pages exist.
func (s *Service) Search(ctx context.Context, userID string, r SearchRequest) (SearchResult, error) {
	r.MatchMode = strings.ToLower(strings.TrimSpace(r.MatchMode))
	if r.MatchMode == "" {
		r.MatchMode = models.MatchAny
	}
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.MatchMode, validation.In(models.MatchAny, models.MatchAll)),
		validation.Field(&r.Limit, validation.Min(0)),
	); err != nil {
		return SearchResult{}, apperr.FromValidation(err)
	}

	limit := r.Limit
	if limit == 0 {
		limit = s.searchLimit
	}
	if limit > s.maxSearchLimit {
		limit = s.maxSearchLimit
	}
	params := models.SearchParams{
		Query:     r.Query,
		Tags:      normalizeTags(r.Tags),
		MatchMode: r.MatchMode,
		Limit:     limit + 1,
	}
	if r.Cursor != "" {
		after, err := DecodeCursor(r.Cursor)
		if err != nil {
			return SearchResult{}, err
		}
		params.After = after
	}

	var entries []models.Entry
	var counts map[string]int
	more := false
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		entries, err = tx.Search(userID, params)
		if err != nil {
			return err
		}
		more = len(entries) > limit
		if more {
			entries = entries[:limit]
		}
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		counts, err = tx.LinkCounts(ids)
		return err
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("archive: search: %w", err)
	}

	res := SearchResult{Items: make([]SearchItem, 0, len(entries))}
	for _, e := range entries {
		res.Items = append(res.Items, SearchItem{
			Slug:        e.Slug,
			Entity:      e.Entity,
			Tags:        e.Tags,
			BodyPreview: Preview(e.Body, s.previewChars),
			CreatedAt:   e.CreatedAt,
			UpdatedAt:   e.UpdatedAt,
			LinkCount:   counts[e.ID],
		})
	}
	if more && len(entries) > 0 {
		res.NextCursor = EncodeCursor(entries[len(entries)-1])
	}
	return res, nil
}

// Preview collapses whitespace and cuts body to n characters.
func Preview(body string, n int) string {
	flat := strings.Join(strings.Fields(body), " ")
	r := []rune(flat)
	if n <= 0 || len(r) <= n {
		return flat
	}
	return strings.TrimRight(string(r[:n]), " ") + "…"
}

// EditResult is the outcome of ApplyEdits.
type EditResult struct {
	Slug         string
	AppliedEdits int
	SkippedEdits int
	Edits        []edits.Result
	BodyLength   int
	Updated      bool
	OldBody      string
	NewBody      string
	Diff         string
}

// ApplyEdits runs the edit batch against the entry body and stores the
// result when anything changed.
func (s *Service) ApplyEdits(ctx context.Context, userID, slug string, batch []edits.Edit, ifMatch string) (EditResult, error) {
	if len(batch) == 0 {
		return EditResult{}, apperr.Invalid("edits", "at least one edit is required")
	}

	var res EditResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		cur, err := tx.EntryBySlug(userID, slug)
		if err != nil {
			return err
		}
		if ifMatch != "" && !checksum.Matches(ifMatch, cur.Body) {
			return apperr.ErrConflict
		}
		out := edits.Apply(cur.Body, batch)
		res = EditResult{
			Slug:         cur.Slug,
			AppliedEdits: out.Applied(),
			SkippedEdits: out.Skipped(),
			Edits:        out.Results,
			BodyLength:   len([]rune(out.Body)),
			OldBody:      cur.Body,
			NewBody:      out.Body,
		}
		if out.Body == cur.Body {
			return nil
		}
		if utf8.RuneCountInString(out.Body) > maxBodyLen {
			return apperr.Invalid("edits", fmt.Sprintf("the resulting body exceeds %d characters", maxBodyLen))
		}
		next := cur
		next.Body = out.Body
		next.UpdatedAt = s.later(cur.UpdatedAt)
		if err := tx.UpdateEntry(next); err != nil {
			return err
		}
		res.Updated = true
		return nil
	})
	if err != nil {
		return EditResult{}, fmt.Errorf("archive: apply edits: %w", err)
	}
	res.Diff = edits.Diff(res.Slug, res.OldBody, res.NewBody)
	if res.Updated {
		s.notify.Notify(userID, EventEntryUpdated, map[string]string{"slug": slug})
	}
	return res, nil
}

// PinResult is the outcome of Pin and Unpin.
type PinResult struct {
	Slug   string `json:"slug"`
	ChatID string `json:"chatId"`
	Pinned bool   `json:"pinned"`
	// Changed is false when the call was a no-op (already pinned / not pinned).
	Changed bool `json:"changed"`
}

// Pin marks slug for injection into chatID's system prompt. Idempotent.
func (s *Service) Pin(ctx context.Context, userID, chatID, slug string) (PinResult, error) {
	if strings.TrimSpace(chatID) == "" {
		return PinResult{}, apperr.Invalid("chatId", "cannot be blank")
	}
	var changed bool
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.EntryBySlug(userID, slug)
		if err != nil {
			return err
		}
		changed, err = tx.Pin(userID, chatID, e.ID, s.now().UTC())
		return err
	})
	if err != nil {
		return PinResult{}, fmt.Errorf("archive: pin: %w", err)
	}
	if changed {
		s.notify.Notify(userID, EventPinsUpdated, map[string]string{"chatId": chatID})
	}
	return PinResult{Slug: slug, ChatID: chatID, Pinned: true, Changed: changed}, nil
}

// Unpin removes slug from chatID's pins. Unpinning an unpinned entry is not
// an error.
func (s *Service) Unpin(ctx context.Context, userID, chatID, slug string) (PinResult, error) {
	if strings.TrimSpace(chatID) == "" {
		return PinResult{}, apperr.Invalid("chatId", "cannot be blank")
	}
	var changed bool
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.EntryBySlug(userID, slug)
		if err != nil {
			return err
		}
		changed, err = tx.Unpin(userID, chatID, e.ID)
		return err
	})
	if err != nil {
		return PinResult{}, fmt.Errorf("archive: unpin: %w", err)
	}
	if changed {
		s.notify.Notify(userID, EventPinsUpdated, map[string]string{"chatId": chatID})
	}
	return PinResult{Slug: slug, ChatID: chatID, Pinned: false, Changed: changed}, nil
}

// ClearChat drops every pin of chatID, as when the chat is deleted.
func (s *Service) ClearChat(ctx context.Context, userID, chatID string) (int, error) {
	var n int
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.ClearChat(userID, chatID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("archive: clear chat: %w", err)
	}
	if n > 0 {
		s.notify.Notify(userID, EventPinsUpdated, map[string]string{"chatId": chatID})
	}
	return n, nil
}

// PinnedEntries returns chatID's pinned entries in pin order.
func (s *Service) PinnedEntries(ctx context.Context, userID, chatID string) ([]models.Entry, error) {
	var out []models.Entry
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.PinnedEntries(userID, chatID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: pinned entries: %w", err)
	}
	return out, nil
}
