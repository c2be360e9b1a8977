package store

import (
	"time"

	"github.com/starford/lorekeeper/internal/models"
)

// Pin is idempotent: pinning an already pinned entry reports false.
func (t *txn) Pin(userID, chatID, entryID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT OR IGNORE INTO pins (user_id, chat_id, entry_id, pinned_at) VALUES (?, ?, ?, ?)
	`, userID, chatID, entryID, toNanos(at))
	if err != nil {
		return false, classify("pin", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *txn) Unpin(userID, chatID, entryID string) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM pins WHERE user_id = ? AND chat_id = ? AND entry_id = ?`, userID, chatID, entryID)
	if err != nil {
		return false, classify("unpin", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *txn) ClearChat(userID, chatID string) (int, error) {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM pins WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		return 0, classify("clear chat", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PinnedEntries returns a chat's pinned entries in pin order.
func (t *txn) PinnedEntries(userID, chatID string) ([]models.Entry, error) {
	var rows []entryRow
	err := t.tx.SelectContext(t.ctx, &rows, `
		SELECT `+entryColumns+`
		FROM pins p JOIN entries e ON e.id = p.entry_id
		WHERE p.user_id = ? AND p.chat_id = ? AND e.user_id = p.user_id
		ORDER BY p.pinned_at, e.slug
	`, userID, chatID)
	if err != nil {
		return nil, classify("pinned entries", err)
	}
	return t.withTags(rows)
}
