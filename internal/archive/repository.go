package archive

import (
	"context"
	"time"

	"github.com/starford/lorekeeper/internal/models"
)

// Repository is the persistence collaborator. InTx runs fn in one
// serializable transaction and commits when fn returns nil; busy conflicts
// may cause fn to run again.
type Repository interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of keyed operations available inside a transaction. Lookups
// of missing rows return an error matching apperr.ErrNotFound.
type Tx interface {
	EntryBySlug(userID, slug string) (models.Entry, error)
	SlugExists(userID, slug string) (bool, error)
	ListEntries(userID string) ([]models.Entry, error)
	InsertEntry(e models.Entry) error
	UpdateEntry(e models.Entry) error
	// DeleteEntry removes the entry with its links, pins and tags and
	// returns the number of links removed.
	DeleteEntry(userID, entryID string) (int, error)

	// UpsertLink creates the (source, target, type) edge or updates its
	// bidirectional flag. created is false when the edge already existed.
	UpsertLink(l models.Link) (link models.Link, created bool, err error)
	DeleteLink(userID, sourceID, targetID, linkType string) (bool, error)
	LinksFor(entryID string) ([]models.LinkView, error)
	LinkCounts(entryIDs []string) (map[string]int, error)

	Search(userID string, p models.SearchParams) ([]models.Entry, error)

	Pin(userID, chatID, entryID string, at time.Time) (bool, error)
	Unpin(userID, chatID, entryID string) (bool, error)
	ClearChat(userID, chatID string) (int, error)
	PinnedEntries(userID, chatID string) ([]models.Entry, error)
}
