package oauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/server"
	"github.com/oakward/oauth-core/storage"
)

type contextKey string

const (
	subjectContextKey contextKey = "oauth_subject"
	tokenContextKey   contextKey = "oauth_access_token"
	profileContextKey contextKey = "oauth_profile"
)

// Subject returns the authenticated subject stored by the Authorize
// middleware, or "".
func Subject(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}

// AccessToken returns the access token record stored by the Authorize
// middleware, or nil.
func AccessToken(ctx context.Context) *storage.AccessToken {
	record, _ := ctx.Value(tokenContextKey).(*storage.AccessToken)
	return record
}

// Profile returns the subject profile resolved by the server's
// SubjectLookup, or nil when no lookup is installed.
func Profile(ctx context.Context) any {
	return ctx.Value(profileContextKey)
}

// Authorize is a resource-server guard: it verifies the request's Bearer
// token, checks the backing record is live, and requires the granted
// scope to cover requiredScope (empty means any valid token). On success
// the request context carries the subject, the token record, and the
// SubjectLookup result when a lookup is installed.
func (h *Handler) Authorize(requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			security.SetSecurityHeaders(w, r)

			tokenString, ok := bearerToken(r)
			if !ok {
				h.writeOAuthError(w, server.ErrInvalidToken("missing or malformed Authorization header"))
				return
			}

			ctx := r.Context()
			record, err := h.server.ValidateAccessToken(ctx, tokenString, requiredScope)
			if err != nil {
				h.writeOAuthError(w, normalizeError(err))
				return
			}

			ctx = context.WithValue(ctx, subjectContextKey, record.Subject)
			ctx = context.WithValue(ctx, tokenContextKey, record)

			if lookup := h.server.SubjectLookup(); lookup != nil {
				profile, err := lookup(ctx, record.Subject)
				if err != nil {
					h.logger.Error("Subject lookup failed", "error", err)
					h.writeOAuthError(w, server.ErrServerError("failed to resolve subject"))
					return
				}
				ctx = context.WithValue(ctx, profileContextKey, profile)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
