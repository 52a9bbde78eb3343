package server

import (
	"context"
	"errors"
	"time"

	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/storage"
	"github.com/oakward/oauth-core/token"
)

// ValidateAccessToken verifies a bearer token for a protected resource:
// the signature and expiry of the JWT, the existence and liveness of the
// backing record, and the granted scope against requiredScope.
//
// The record, not the JWT, is authoritative: a cryptographically valid
// token whose record was revoked or purged is rejected.
func (s *Server) ValidateAccessToken(ctx context.Context, tokenString, requiredScope string) (*storage.AccessToken, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken("bearer token is required")
	}

	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrInvalidToken("token is expired")
		}
		return nil, ErrInvalidToken("invalid token")
	}

	record, err := s.tokenStore.FindAccessTokenByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken("token is not recognized")
		}
		s.logger.Error("Failed to load access token", "error", err, "token_id", claims.ID)
		return nil, ErrServerError("failed to validate token")
	}

	if record.Revoked() {
		return nil, ErrInvalidToken("token has been revoked")
	}
	if security.IsExpiredWithGracePeriod(record.ExpiresAt, s.config.ClockSkewGracePeriod) {
		return nil, ErrInvalidToken("token is expired")
	}
	if time.Now().Before(record.CreatedAt.Add(-s.config.ClockSkewGracePeriod)) {
		return nil, ErrInvalidToken("token is not yet valid")
	}

	if !ScopeSatisfies(record.Scope, requiredScope) {
		return nil, ErrInsufficientScope("token scope does not cover this resource", requiredScope)
	}

	return record, nil
}
