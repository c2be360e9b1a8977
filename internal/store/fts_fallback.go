//go:build !sqlite_fts5

package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/starford/lorekeeper/internal/models"
)

// FTS5 not compiled in: text search uses LIKE over the entries table.
func initFTS(_ *sqlx.DB) error { return nil }

func ftsUpsert(_ context.Context, _ *sqlx.Tx, _ models.Entry) error { return nil }

func ftsDelete(_ context.Context, _ *sqlx.Tx, _ string) error { return nil }

func textFilter(q string) (string, []any) {
	like := likePattern(q)
	return `(e.entity LIKE ? ESCAPE '\' OR e.body LIKE ? ESCAPE '\' OR EXISTS (
		SELECT 1 FROM entry_tags t WHERE t.entry_id = e.id AND t.tag LIKE ? ESCAPE '\'))`,
		[]any{like, like, like}
}
