package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/parser"
	"github.com/starford/lorekeeper/internal/storage"
)

// List returns all of userID's entries ordered by slug.
func (s *Service) List(ctx context.Context, userID string) ([]models.Entry, error) {
	var out []models.Entry
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListEntries(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// ImportResult summarizes an Import run.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Links   int `json:"links"`
	// Skipped lists files that could not be imported.
	Skipped []string `json:"skipped,omitempty"`
}

type imported struct {
	slug  string
	links []string
}

// Import loads every Markdown file of files into userID's archive. A file
// whose slug already exists updates that entry. [[slug]] wikilinks become
// related links once all files are in.
func (s *Service) Import(ctx context.Context, userID string, files storage.Provider, logger *slog.Logger) (ImportResult, error) {
	metas, err := files.List("")
	if err != nil {
		return ImportResult{}, fmt.Errorf("archive: import: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	var res ImportResult
	var docs []imported
	for _, meta := range metas {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := files.Read(meta.Path)
		if err != nil {
			return res, fmt.Errorf("archive: import: %w", err)
		}
		doc, err := parser.Parse(data)
		if err != nil {
			logger.Warn("import: parse failed", slog.String("path", meta.Path), slog.String("error", err.Error()))
			res.Skipped = append(res.Skipped, meta.Path)
			continue
		}
		stem := strings.TrimSuffix(path.Base(meta.Path), path.Ext(meta.Path))
		if doc.Entity == "" {
			doc.Entity = stem
		}
		slug := Slugify(doc.Slug)
		if slug == "" {
			slug = Slugify(stem)
		}

		final, created, err := s.importOne(ctx, userID, slug, doc)
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			logger.Warn("import: invalid entry", slog.String("path", meta.Path), slog.String("error", err.Error()))
			res.Skipped = append(res.Skipped, meta.Path)
			continue
		}
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		docs = append(docs, imported{slug: final, links: doc.Links})
	}

	for _, d := range docs {
		for _, target := range d.links {
			ts := Slugify(target)
			if ts == "" || ts == d.slug {
				continue
			}
			lr, err := s.Link(ctx, userID, LinkParams{SourceSlug: d.slug, TargetSlug: ts})
			if errors.Is(err, apperr.ErrNotFound) {
				logger.Debug("import: dangling wikilink", slog.String("slug", d.slug), slog.String("target", target))
				continue
			}
			if err != nil {
				return res, err
			}
			if lr.Created {
				res.Links++
			}
		}
	}
	return res, nil
}

func (s *Service) importOne(ctx context.Context, userID, slug string, doc *parser.Document) (string, bool, error) {
	if slug != "" {
		cur, err := s.Read(ctx, userID, slug, false)
		if err == nil {
			body := doc.Body
			entity := doc.Entity
			up, err := s.Update(ctx, userID, slug, models.UpdateParams{
				NewEntity:  &entity,
				Body:       &body,
				AddTags:    doc.Tags,
				RemoveTags: missing(cur.Entry.Tags, doc.Tags),
			})
			if err != nil {
				return "", false, err
			}
			return up.Entry.Slug, false, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return "", false, err
		}
	}
	cr, err := s.Create(ctx, userID, models.CreateParams{
		Entity: doc.Entity,
		Slug:   slug,
		Body:   doc.Body,
		Tags:   doc.Tags,
	})
	if err != nil {
		return "", false, err
	}
	return cr.Entry.Slug, true, nil
}

// missing returns the members of have not present in want.
func missing(have, want []string) []string {
	keep := make(map[string]struct{}, len(want))
	for _, t := range normalizeTags(want) {
		keep[t] = struct{}{}
	}
	var out []string
	for _, t := range have {
		if _, ok := keep[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Export writes each of userID's entries to <slug>.md. Outgoing links not
// already present in the body are appended as a wikilink footer so that a
// later Import restores them.
func (s *Service) Export(ctx context.Context, userID string, files storage.Provider) (int, error) {
	entries, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		rd, err := s.Read(ctx, userID, e.Slug, true)
		if err != nil {
			return i, err
		}
		data, err := parser.Render(parser.Document{
			Entity: e.Entity,
			Slug:   e.Slug,
			Tags:   e.Tags,
			Body:   withLinkFooter(e.Body, rd.Links),
		})
		if err != nil {
			return i, fmt.Errorf("archive: export %s: %w", e.Slug, err)
		}
		if err := files.Write(e.Slug+storage.MarkdownExt, data); err != nil {
			return i, fmt.Errorf("archive: export %s: %w", e.Slug, err)
		}
	}
	return len(entries), nil
}

func withLinkFooter(body string, links []models.LinkView) string {
	var extra []string
	for _, l := range links {
		if l.Direction != models.DirectionOutgoing {
			continue
		}
		ref := "[[" + l.Slug + "]]"
		if strings.Contains(body, ref) {
			continue
		}
		extra = append(extra, "- "+ref)
	}
	if len(extra) == 0 {
		return body
	}
	return appendBody(body, strings.Join(extra, "\n"))
}
