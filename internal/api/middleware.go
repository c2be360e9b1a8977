// Package api implements the Lorekeeper REST API using chi.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/ratelimit"
)

// Auth modes.
const (
	AuthDisabled = "disabled"
	AuthToken    = "token"
)

// UserHeader names the caller in disabled auth mode.
const UserHeader = "X-User-ID"

// AuthConfig selects how requests are mapped to a user id.
type AuthConfig struct {
	Mode string
	// Tokens maps bearer tokens to user ids in token mode.
	Tokens map[string]string
	// DefaultUser is used in disabled mode when no X-User-ID header is sent.
	DefaultUser string
}

type userKey struct{}

// WithUser stores the caller's user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user id stored by AuthMiddleware.
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// AuthMiddleware resolves the caller's user id. Token mode requires a known
// "Authorization: Bearer <token>"; disabled mode trusts X-User-ID and falls
// back to the default user. Requests without an identity get 401.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if cfg.Mode == AuthToken {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					userID = cfg.Tokens[strings.TrimPrefix(auth, "Bearer ")]
				}
			} else {
				userID = strings.TrimSpace(r.Header.Get(UserHeader))
				if userID == "" {
					userID = cfg.DefaultUser
				}
			}
			if userID == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// RateLimitMiddleware charges one token per request from the caller's
// bucket. A nil limiter disables the check.
func RateLimitMiddleware(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Consume(r.Context(), "user:"+UserFrom(r.Context()), 1)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Capacity()))
			if err != nil {
				var rl *apperr.RateLimitError
				if errors.As(err, &rl) {
					w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
				}
				writeError(w, "rate limit", err)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
