//go:build sqlite_fts5

package store

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/starford/lorekeeper/internal/models"
)

func initFTS(conn *sqlx.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			entry_id UNINDEXED,
			entity,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sqlx.Tx, e models.Entry) error {
	if err := ftsDelete(ctx, tx, e.ID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO entries_fts (entry_id, entity, body, tags) VALUES (?, ?, ?, ?)`,
		e.ID, e.Entity, e.Body, strings.Join(e.Tags, " "))
	if err != nil {
		return classify("upsert fts", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sqlx.Tx, entryID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries_fts WHERE entry_id = ?`, entryID); err != nil {
		return classify("delete fts", err)
	}
	return nil
}

// textFilter matches every query term as a quoted FTS5 prefix token, so
// user input cannot inject FTS syntax.
func textFilter(q string) (string, []any) {
	return `e.id IN (SELECT entry_id FROM entries_fts WHERE entries_fts MATCH ?)`, []any{matchExpr(q)}
}

func matchExpr(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}
