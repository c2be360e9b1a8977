package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/starford/lorekeeper/internal/models"
)

type linkRow struct {
	ID            string `db:"id"`
	SourceID      string `db:"source_id"`
	TargetID      string `db:"target_id"`
	Type          string `db:"type"`
	Bidirectional bool   `db:"bidirectional"`
	CreatedAt     int64  `db:"created_at"`
}

func (t *txn) UpsertLink(l models.Link) (models.Link, bool, error) {
	var existing linkRow
	err := t.tx.GetContext(t.ctx, &existing, `
		SELECT id, source_id, target_id, type, bidirectional, created_at
		FROM links WHERE source_id = ? AND target_id = ? AND type = ?
	`, l.SourceID, l.TargetID, l.Type)
	switch {
	case err == nil:
		if existing.Bidirectional != l.Bidirectional {
			if _, err := t.tx.ExecContext(t.ctx,
				`UPDATE links SET bidirectional = ? WHERE id = ?`, l.Bidirectional, existing.ID); err != nil {
				return models.Link{}, false, classify("update link", err)
			}
			existing.Bidirectional = l.Bidirectional
		}
		return existing.link(), false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Link{}, false, classify("get link", err)
	}

	var userID string
	if err := t.tx.GetContext(t.ctx, &userID, `SELECT user_id FROM entries WHERE id = ?`, l.SourceID); err != nil {
		return models.Link{}, false, classify("link owner", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO links (id, user_id, source_id, target_id, type, bidirectional, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, userID, l.SourceID, l.TargetID, l.Type, l.Bidirectional, toNanos(l.CreatedAt)); err != nil {
		return models.Link{}, false, classify("insert link", err)
	}
	return l, true, nil
}

func (r linkRow) link() models.Link {
	return models.Link{
		ID:            r.ID,
		SourceID:      r.SourceID,
		TargetID:      r.TargetID,
		Type:          r.Type,
		Bidirectional: r.Bidirectional,
		CreatedAt:     fromNanos(r.CreatedAt),
	}
}

func (t *txn) DeleteLink(userID, sourceID, targetID, linkType string) (bool, error) {
	query := `DELETE FROM links WHERE user_id = ? AND source_id = ? AND target_id = ?`
	args := []any{userID, sourceID, targetID}
	if linkType != "" {
		query += ` AND type = ?`
		args = append(args, linkType)
	}
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return false, classify("delete link", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LinksFor lists the links touching entryID: outgoing ones by target, then
// incoming ones by source.
func (t *txn) LinksFor(entryID string) ([]models.LinkView, error) {
	var out []models.LinkView
	err := t.tx.SelectContext(t.ctx, &out, `
		SELECT e.slug AS slug, e.entity AS entity, l.type AS type, 'outgoing' AS direction, l.bidirectional AS bidirectional
		FROM links l JOIN entries e ON e.id = l.target_id
		WHERE l.source_id = ?
		UNION ALL
		SELECT e.slug, e.entity, l.type, 'incoming', l.bidirectional
		FROM links l JOIN entries e ON e.id = l.source_id
		WHERE l.target_id = ?
		ORDER BY direction DESC, slug, type
	`, entryID, entryID)
	if err != nil {
		return nil, classify("links for", err)
	}
	return out, nil
}

// LinkCounts counts links touching each entry, in either direction.
func (t *txn) LinkCounts(entryIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(entryIDs))
	if len(entryIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, COUNT(*) AS n FROM (
			SELECT source_id AS id FROM links WHERE source_id IN (?)
			UNION ALL
			SELECT target_id AS id FROM links WHERE target_id IN (?)
		) GROUP BY id
	`, entryIDs, entryIDs)
	if err != nil {
		return nil, fmt.Errorf("store: link counts query: %w", err)
	}
	var rows []struct {
		ID string `db:"id"`
		N  int    `db:"n"`
	}
	if err := t.tx.SelectContext(t.ctx, &rows, t.tx.Rebind(query), args...); err != nil {
		return nil, classify("link counts", err)
	}
	for _, r := range rows {
		out[r.ID] = r.N
	}
	return out, nil
}
