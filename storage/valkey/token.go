package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oakward/oauth-core/storage"
)

// ============================================================
// TokenStore Implementation
// ============================================================

// accessTokenJSON is the JSON representation of an access token record
type accessTokenJSON struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Grant     string `json:"grant"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	RevokedAt int64  `json:"revoked_at,omitempty"`
}

func toAccessTokenJSON(token *storage.AccessToken) *accessTokenJSON {
	return &accessTokenJSON{
		ID:        token.ID,
		Subject:   token.Subject,
		Grant:     token.Grant,
		ClientID:  token.ClientID,
		Scope:     token.Scope,
		UserAgent: token.UserAgent,
		CreatedAt: token.CreatedAt.Unix(),
		ExpiresAt: token.ExpiresAt.Unix(),
		RevokedAt: unixOrNil(token.RevokedAt),
	}
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	if j == nil {
		return nil
	}
	return &storage.AccessToken{
		ID:        j.ID,
		Subject:   j.Subject,
		Grant:     j.Grant,
		ClientID:  j.ClientID,
		Scope:     j.Scope,
		UserAgent: j.UserAgent,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
		RevokedAt: timeOrNil(j.RevokedAt),
	}
}

// refreshTokenJSON is the JSON representation of a refresh token record
type refreshTokenJSON struct {
	ID            string `json:"id"`
	AccessTokenID string `json:"access_token_id"`
	Subject       string `json:"subject"`
	Grant         string `json:"grant"`
	ClientID      string `json:"client_id"`
	Scope         string `json:"scope,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	ExpiresAt     int64  `json:"expires_at"`
	RevokedAt     int64  `json:"revoked_at,omitempty"`
}

func toRefreshTokenJSON(token *storage.RefreshToken) *refreshTokenJSON {
	return &refreshTokenJSON{
		ID:            token.ID,
		AccessTokenID: token.AccessTokenID,
		Subject:       token.Subject,
		Grant:         token.Grant,
		ClientID:      token.ClientID,
		Scope:         token.Scope,
		CreatedAt:     token.CreatedAt.Unix(),
		ExpiresAt:     token.ExpiresAt.Unix(),
		RevokedAt:     unixOrNil(token.RevokedAt),
	}
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	if j == nil {
		return nil
	}
	return &storage.RefreshToken{
		ID:            j.ID,
		AccessTokenID: j.AccessTokenID,
		Subject:       j.Subject,
		Grant:         j.Grant,
		ClientID:      j.ClientID,
		Scope:         j.Scope,
		CreatedAt:     time.Unix(j.CreatedAt, 0),
		ExpiresAt:     time.Unix(j.ExpiresAt, 0),
		RevokedAt:     timeOrNil(j.RevokedAt),
	}
}

// CreateAccessToken persists a new access token record. The key TTL is
// the token lifetime plus the retention window, so revocation checks can
// still see a just-expired token.
func (s *Store) CreateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("invalid access token")
	}

	if err := s.setJSON(ctx, s.accessKey(token.ID), toAccessTokenJSON(token), s.recordTTL(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	s.logger.Debug("Saved access token", "id", safeTruncate(token.ID, tokenIDLogLength))
	return nil
}

// FindAccessTokenByID retrieves an access token record by ID.
func (s *Store) FindAccessTokenByID(ctx context.Context, id string) (*storage.AccessToken, error) {
	return getAndUnmarshal(ctx, s, s.accessKey(id), fromAccessTokenJSON)
}

// RevokeAccessToken sets the revocation timestamp. Idempotent.
func (s *Store) RevokeAccessToken(ctx context.Context, id string, at time.Time) error {
	token, err := s.FindAccessTokenByID(ctx, id)
	if err != nil {
		return err
	}

	if token.RevokedAt != nil {
		return nil
	}
	token.RevokedAt = &at

	if err := s.setJSON(ctx, s.accessKey(id), toAccessTokenJSON(token), s.recordTTL(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	s.logger.Debug("Revoked access token", "id", safeTruncate(id, tokenIDLogLength))
	return nil
}

// CreateRefreshToken persists a new refresh token record.
func (s *Store) CreateRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("invalid refresh token")
	}

	if err := s.setJSON(ctx, s.refreshKey(token.ID), toRefreshTokenJSON(token), s.recordTTL(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.logger.Debug("Saved refresh token", "id", safeTruncate(token.ID, tokenIDLogLength))
	return nil
}

// FindRefreshTokenByID retrieves a refresh token record by ID.
func (s *Store) FindRefreshTokenByID(ctx context.Context, id string) (*storage.RefreshToken, error) {
	return getAndUnmarshal(ctx, s, s.refreshKey(id), fromRefreshTokenJSON)
}

// RevokeRefreshToken sets the revocation timestamp. Idempotent.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	token, err := s.FindRefreshTokenByID(ctx, id)
	if err != nil {
		return err
	}

	if token.RevokedAt != nil {
		return nil
	}
	token.RevokedAt = &at

	if err := s.setJSON(ctx, s.refreshKey(id), toRefreshTokenJSON(token), s.recordTTL(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.logger.Debug("Revoked refresh token", "id", safeTruncate(id, tokenIDLogLength))
	return nil
}

// ConsumeRefreshToken atomically revokes an unrevoked refresh token and
// returns it.
//
// SECURITY: the revoked check and the revoked-marking run in one Lua
// script, so two concurrent redemptions of the same refresh token can
// never both succeed.
func (s *Store) ConsumeRefreshToken(ctx context.Context, id string, at time.Time) (*storage.RefreshToken, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaConsumeRefresh).
			Numkeys(1).
			Key(s.refreshKey(id)).
			Arg(fmt.Sprintf("%d", at.Unix())).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic refresh redemption: %w", err)
	}

	switch result {
	case "NOT_FOUND":
		return nil, storage.ErrNotFound
	case "ALREADY_USED":
		return nil, storage.ErrAlreadyConsumed
	}

	var j refreshTokenJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to parse refresh token: %w", err)
	}

	s.logger.Debug("Consumed refresh token", "id", safeTruncate(id, tokenIDLogLength))
	return fromRefreshTokenJSON(&j), nil
}

// PurgeAccessTokens deletes access token records matching the target.
func (s *Store) PurgeAccessTokens(ctx context.Context, target storage.PurgeTarget) (int, error) {
	return s.purgeRecords(ctx, s.accessKey("*"), target, func(data []byte) (revokedAt *time.Time, expiresAt time.Time, err error) {
		var j accessTokenJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, time.Time{}, err
		}
		return timeOrNil(j.RevokedAt), time.Unix(j.ExpiresAt, 0), nil
	})
}

// PurgeRefreshTokens deletes refresh token records matching the target.
func (s *Store) PurgeRefreshTokens(ctx context.Context, target storage.PurgeTarget) (int, error) {
	return s.purgeRecords(ctx, s.refreshKey("*"), target, func(data []byte) (revokedAt *time.Time, expiresAt time.Time, err error) {
		var j refreshTokenJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, time.Time{}, err
		}
		return timeOrNil(j.RevokedAt), time.Unix(j.ExpiresAt, 0), nil
	})
}

// purgeRecords scans keys matching pattern and deletes records whose
// lifecycle state matches the purge target.
func (s *Store) purgeRecords(
	ctx context.Context,
	pattern string,
	target storage.PurgeTarget,
	extract func(data []byte) (revokedAt *time.Time, expiresAt time.Time, err error),
) (int, error) {
	now := time.Now()
	removed := 0

	err := s.scanKeys(ctx, pattern, func(key string) error {
		data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
		if err != nil {
			if isNilError(err) {
				return nil // key expired between SCAN and GET
			}
			return fmt.Errorf("failed to get record: %w", err)
		}

		revokedAt, expiresAt, err := extract([]byte(data))
		if err != nil {
			s.logger.Warn("Failed to unmarshal record during purge, skipping", "key", key, "error", err)
			return nil
		}
		if !purgeMatches(target, revokedAt, expiresAt, now) {
			return nil
		}

		if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	return removed, nil
}
