// Package store is the SQLite persistence layer: archive entries, links,
// chat pins, the agent catalog and rate-limit buckets.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/archive"
)

// dsnParams make every transaction take the write lock up front
// (BEGIN IMMEDIATE), which serializes read-modify-write sequences.
const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

const (
	txAttempts = 5
	txDelay    = 25 * time.Millisecond
)

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sqlx.DB
}

var _ archive.Repository = (*DB)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// PingContext reports whether the database is reachable.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// InTx implements archive.Repository.
func (db *DB) InTx(ctx context.Context, fn func(archive.Tx) error) error {
	return db.withTx(ctx, "archive", func(tx *sqlx.Tx) error {
		return fn(&txn{ctx: ctx, tx: tx})
	})
}

// withTx runs fn in an immediate transaction, retrying when SQLite reports
// the database busy or locked.
func (db *DB) withTx(ctx context.Context, op string, fn func(*sqlx.Tx) error) error {
	return retry.Do(
		func() error {
			tx, err := db.conn.BeginTxx(ctx, nil)
			if err != nil {
				return classify(op+": begin", err)
			}
			defer tx.Rollback() //nolint:errcheck // no-op after commit

			if err := fn(tx); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return classify(op+": commit", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(txAttempts),
		retry.Delay(txDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(apperr.IsBusy),
		retry.LastErrorOnly(true),
	)
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
