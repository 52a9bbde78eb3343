package server

import (
	"context"

	"github.com/oakward/oauth-core/storage"
)

// PurgeResult reports how many records of each kind a maintenance purge
// removed.
type PurgeResult struct {
	AccessTokens       int
	RefreshTokens      int
	AuthorizationCodes int
}

// Purge permanently deletes token and authorization code records matching
// the target: revoked records, expired records (expiry at or before now),
// or both. Live records are never touched.
func (s *Server) Purge(ctx context.Context, target storage.PurgeTarget) (*PurgeResult, error) {
	if !target.Valid() {
		return nil, ErrInvalidRequest("unknown purge target: " + string(target))
	}

	result := &PurgeResult{}
	var err error

	if result.AccessTokens, err = s.tokenStore.PurgeAccessTokens(ctx, target); err != nil {
		s.logger.Error("Failed to purge access tokens", "error", err, "target", target)
		return nil, ErrServerError("purge failed")
	}
	if result.RefreshTokens, err = s.tokenStore.PurgeRefreshTokens(ctx, target); err != nil {
		s.logger.Error("Failed to purge refresh tokens", "error", err, "target", target)
		return nil, ErrServerError("purge failed")
	}
	if result.AuthorizationCodes, err = s.codeStore.PurgeAuthorizationCodes(ctx, target); err != nil {
		s.logger.Error("Failed to purge authorization codes", "error", err, "target", target)
		return nil, ErrServerError("purge failed")
	}

	s.logger.Info("Purge completed",
		"target", target,
		"access_tokens", result.AccessTokens,
		"refresh_tokens", result.RefreshTokens,
		"authorization_codes", result.AuthorizationCodes)
	s.auditor.LogPurgeCompleted(string(target), result.AccessTokens, result.RefreshTokens, result.AuthorizationCodes)

	return result, nil
}
