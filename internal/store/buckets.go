package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/starford/lorekeeper/internal/ratelimit"
)

// Buckets persists token buckets; each Update runs in its own immediate
// transaction so concurrent consumers of one key serialize.
type Buckets struct {
	db *DB
}

var _ ratelimit.Store = (*Buckets)(nil)

// Buckets returns the rate-limit store backed by db.
func (db *DB) Buckets() *Buckets { return &Buckets{db: db} }

// Update implements ratelimit.Store.
func (b *Buckets) Update(ctx context.Context, key string, fn ratelimit.Mutator) error {
	return b.db.withTx(ctx, "bucket", func(tx *sqlx.Tx) error {
		var row struct {
			Tokens     int   `db:"tokens"`
			LastRefill int64 `db:"last_refill"`
		}
		err := tx.GetContext(ctx, &row, `SELECT tokens, last_refill FROM rate_buckets WHERE key = ?`, key)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return classify("get bucket", err)
		}

		cur := ratelimit.State{}
		if exists {
			cur = ratelimit.State{Tokens: row.Tokens, LastRefill: fromNanos(row.LastRefill)}
		}
		next, save := fn(cur, exists)
		if !save {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rate_buckets (key, tokens, last_refill) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET tokens = excluded.tokens, last_refill = excluded.last_refill
		`, key, next.Tokens, toNanos(next.LastRefill))
		return classify("save bucket", err)
	})
}
