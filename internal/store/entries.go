package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
)

// txn implements archive.Tx on one sqlx transaction.
type txn struct {
	ctx context.Context
	tx  *sqlx.Tx
}

type entryRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Slug      string `db:"slug"`
	Entity    string `db:"entity"`
	Body      string `db:"body"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r entryRow) entry() models.Entry {
	return models.Entry{
		ID:        r.ID,
		UserID:    r.UserID,
		Slug:      r.Slug,
		Entity:    r.Entity,
		Body:      r.Body,
		Tags:      []string{},
		CreatedAt: fromNanos(r.CreatedAt),
		UpdatedAt: fromNanos(r.UpdatedAt),
	}
}

const entryColumns = `e.id, e.user_id, e.slug, e.entity, e.body, e.created_at, e.updated_at`

func (t *txn) EntryBySlug(userID, slug string) (models.Entry, error) {
	var row entryRow
	err := t.tx.GetContext(t.ctx, &row,
		`SELECT `+entryColumns+` FROM entries e WHERE e.user_id = ? AND e.slug = ?`, userID, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, fmt.Errorf("entry %q: %w", slug, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Entry{}, classify("get entry", err)
	}
	entries, err := t.withTags([]entryRow{row})
	if err != nil {
		return models.Entry{}, err
	}
	return entries[0], nil
}

func (t *txn) SlugExists(userID, slug string) (bool, error) {
	var n int
	if err := t.tx.GetContext(t.ctx, &n,
		`SELECT COUNT(*) FROM entries WHERE user_id = ? AND slug = ?`, userID, slug); err != nil {
		return false, classify("slug exists", err)
	}
	return n > 0, nil
}

func (t *txn) ListEntries(userID string) ([]models.Entry, error) {
	var rows []entryRow
	if err := t.tx.SelectContext(t.ctx, &rows,
		`SELECT `+entryColumns+` FROM entries e WHERE e.user_id = ? ORDER BY e.slug`, userID); err != nil {
		return nil, classify("list entries", err)
	}
	return t.withTags(rows)
}

func (t *txn) InsertEntry(e models.Entry) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO entries (id, user_id, slug, entity, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Slug, e.Entity, e.Body, toNanos(e.CreatedAt), toNanos(e.UpdatedAt))
	if err != nil {
		return classify("insert entry", err)
	}
	if err := t.replaceTags(e.ID, e.Tags); err != nil {
		return err
	}
	return ftsUpsert(t.ctx, t.tx, e)
}

func (t *txn) UpdateEntry(e models.Entry) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE entries SET entity = ?, body = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, e.Entity, e.Body, toNanos(e.UpdatedAt), e.ID, e.UserID)
	if err != nil {
		return classify("update entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %q: %w", e.Slug, apperr.ErrNotFound)
	}
	if err := t.replaceTags(e.ID, e.Tags); err != nil {
		return err
	}
	return ftsUpsert(t.ctx, t.tx, e)
}

func (t *txn) DeleteEntry(userID, entryID string) (int, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM links WHERE user_id = ? AND (source_id = ? OR target_id = ?)`, userID, entryID, entryID)
	if err != nil {
		return 0, classify("delete links", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM pins WHERE entry_id = ?`, entryID); err != nil {
		return 0, classify("delete pins", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return 0, classify("delete tags", err)
	}
	if err := ftsDelete(t.ctx, t.tx, entryID); err != nil {
		return 0, err
	}
	res, err = t.tx.ExecContext(t.ctx, `DELETE FROM entries WHERE id = ? AND user_id = ?`, entryID, userID)
	if err != nil {
		return 0, classify("delete entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("entry %s: %w", entryID, apperr.ErrNotFound)
	}
	return int(removed), nil
}

func (t *txn) replaceTags(entryID string, tags []string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return classify("clear tags", err)
	}
	for _, tag := range tags {
		if _, err := t.tx.ExecContext(t.ctx,
			`INSERT OR IGNORE INTO entry_tags (entry_id, tag) VALUES (?, ?)`, entryID, tag); err != nil {
			return classify("insert tag", err)
		}
	}
	return nil
}

// withTags converts rows to entries and loads their tags in one query.
func (t *txn) withTags(rows []entryRow) ([]models.Entry, error) {
	out := make([]models.Entry, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	pos := make(map[string]int, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
		ids[i] = r.ID
		pos[r.ID] = i
	}

	query, args, err := sqlx.In(`SELECT entry_id, tag FROM entry_tags WHERE entry_id IN (?) ORDER BY tag`, ids)
	if err != nil {
		return nil, fmt.Errorf("store: tags query: %w", err)
	}
	var tags []struct {
		EntryID string `db:"entry_id"`
		Tag     string `db:"tag"`
	}
	if err := t.tx.SelectContext(t.ctx, &tags, t.tx.Rebind(query), args...); err != nil {
		return nil, classify("load tags", err)
	}
	for _, tg := range tags {
		i := pos[tg.EntryID]
		out[i].Tags = append(out[i].Tags, tg.Tag)
	}
	return out, nil
}

// Search filters a user's entries by text and tags, newest first, keyset
// paginated on (updated_at, id).
func (t *txn) Search(userID string, p models.SearchParams) ([]models.Entry, error) {
	var where []string
	args := []any{userID}
	where = append(where, "e.user_id = ?")

	if q := strings.TrimSpace(p.Query); q != "" {
		clause, qargs := textFilter(q)
		where = append(where, clause)
		args = append(args, qargs...)
	}

	if tags := uniqueTags(p.Tags); len(tags) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
		if p.MatchMode == models.MatchAll {
			where = append(where, `(SELECT COUNT(DISTINCT t.tag) FROM entry_tags t
				WHERE t.entry_id = e.id AND t.tag IN (`+marks+`)) = ?`)
			for _, tg := range tags {
				args = append(args, tg)
			}
			args = append(args, len(tags))
		} else {
			where = append(where, `EXISTS (SELECT 1 FROM entry_tags t
				WHERE t.entry_id = e.id AND t.tag IN (`+marks+`))`)
			for _, tg := range tags {
				args = append(args, tg)
			}
		}
	}

	if p.After != nil {
		at := toNanos(p.After.UpdatedAt)
		where = append(where, "(e.updated_at < ? OR (e.updated_at = ? AND e.id < ?))")
		args = append(args, at, at, p.After.ID)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := `SELECT ` + entryColumns + ` FROM entries e WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY e.updated_at DESC, e.id DESC LIMIT ?`

	var rows []entryRow
	if err := t.tx.SelectContext(t.ctx, &rows, query, args...); err != nil {
		return nil, classify("search", err)
	}
	return t.withTags(rows)
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tg := range tags {
		tg = strings.ToLower(strings.TrimSpace(tg))
		if tg == "" {
			continue
		}
		if _, ok := seen[tg]; ok {
			continue
		}
		seen[tg] = struct{}{}
		out = append(out, tg)
	}
	sort.Strings(out)
	return out
}

// likePattern escapes LIKE wildcards in s.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
