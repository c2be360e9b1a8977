package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
)

type agentRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Description  string         `db:"description"`
	PromptConfig sql.NullString `db:"prompt_config"`
	Checksum     string         `db:"checksum"`
	UpdatedAt    int64          `db:"updated_at"`
}

func (r agentRow) agent() models.Agent {
	a := models.Agent{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Checksum:    r.Checksum,
		UpdatedAt:   fromNanos(r.UpdatedAt),
	}
	if r.PromptConfig.Valid {
		a.PromptConfig = []byte(r.PromptConfig.String)
	}
	return a
}

func nullable(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// UpsertAgent inserts or replaces a catalog agent.
func (db *DB) UpsertAgent(ctx context.Context, a models.Agent) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	return db.withTx(ctx, "upsert agent", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (id, name, description, prompt_config, checksum, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name          = excluded.name,
				description   = excluded.description,
				prompt_config = excluded.prompt_config,
				checksum      = excluded.checksum,
				updated_at    = excluded.updated_at
		`, a.ID, a.Name, a.Description, nullable(a.PromptConfig), a.Checksum, toNanos(a.UpdatedAt))
		return classify("upsert agent", err)
	})
}

// DeleteAgent removes an agent; a missing id is not an error.
func (db *DB) DeleteAgent(ctx context.Context, id string) error {
	return db.withTx(ctx, "delete agent", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
		return classify("delete agent", err)
	})
}

// AgentChecksums maps every agent id to its definition checksum.
func (db *DB) AgentChecksums(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		ID       string `db:"id"`
		Checksum string `db:"checksum"`
	}
	if err := db.conn.SelectContext(ctx, &rows, `SELECT id, checksum FROM agents`); err != nil {
		return nil, classify("agent checksums", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Checksum
	}
	return out, nil
}

// Agent returns one agent.
func (db *DB) Agent(ctx context.Context, id string) (models.Agent, error) {
	var row agentRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT id, name, description, prompt_config, checksum, updated_at FROM agents WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Agent{}, fmt.Errorf("agent %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Agent{}, classify("get agent", err)
	}
	return row.agent(), nil
}

// ListAgents returns every agent ordered by name.
func (db *DB) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var rows []agentRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT id, name, description, prompt_config, checksum, updated_at FROM agents ORDER BY name, id
	`); err != nil {
		return nil, classify("list agents", err)
	}
	out := make([]models.Agent, len(rows))
	for i, r := range rows {
		out[i] = r.agent()
	}
	return out, nil
}

// SetAgentPrompt stores a prompt override; nil clears it.
func (db *DB) SetAgentPrompt(ctx context.Context, id string, config []byte) error {
	return db.withTx(ctx, "set agent prompt", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE agents SET prompt_config = ?, updated_at = ? WHERE id = ?`,
			nullable(config), toNanos(time.Now()), id)
		if err != nil {
			return classify("set agent prompt", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("agent %q: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}
