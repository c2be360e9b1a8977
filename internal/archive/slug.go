package archive

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
)

const (
	maxSlugLen   = 120
	fallbackSlug = "entry"
)

// Slugify lowercases s, folds accents, and joins runs of ASCII letters and
// digits with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			if b.Len() >= maxSlugLen {
				break
			}
			continue
		}
		pendingHyphen = true
	}
	return strings.TrimRight(b.String(), "-")
}

// suffixed returns base-n for n >= 2.
func suffixed(base string, n int) string {
	return fmt.Sprintf("%s-%d", base, n)
}

// EncodeCursor renders the opaque "<RFC3339Nano updatedAt>|<id>" cursor.
func EncodeCursor(e models.Entry) string {
	return e.UpdatedAt.UTC().Format(time.RFC3339Nano) + "|" + e.ID
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(s string) (*models.Cursor, error) {
	ts, id, ok := strings.Cut(s, "|")
	if !ok || id == "" {
		return nil, apperr.Invalid("cursor", "malformed cursor")
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, apperr.Invalid("cursor", "malformed cursor timestamp")
	}
	return &models.Cursor{UpdatedAt: at, ID: id}, nil
}

// normalizeTags lowercases, trims and dedupes tags, dropping empty ones.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
