// Package checksum computes the SHA-256 digests used for entry ETags and
// for agent definition change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Body returns the checksum of an entry body.
func Body(body string) string { return Sum([]byte(body)) }

// ETag formats the body checksum as a strong HTTP entity tag.
func ETag(body string) string { return `"` + Body(body) + `"` }

// Matches reports whether expected names the current body. expected may be
// a bare digest or an entity tag, optionally weak ("W/").
func Matches(expected, body string) bool {
	e := strings.TrimSpace(expected)
	e = strings.TrimPrefix(e, "W/")
	e = strings.Trim(e, `"`)
	return strings.EqualFold(e, Body(body))
}
