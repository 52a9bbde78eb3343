package server

import (
	"context"
	"errors"
	"time"

	"github.com/oakward/oauth-core/storage"
)

// Token type hints per RFC 7009 Section 2.1.
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// RevocationRequest carries the parsed parameters of a token revocation
// request per RFC 7009.
type RevocationRequest struct {
	Token         string
	TokenTypeHint string

	ClientID     string
	ClientSecret string

	IPAddress string
}

// Revoke invalidates a previously issued token. Per RFC 7009 an unknown
// or already-invalid token is not an error: the caller's desired outcome
// (the token is unusable) already holds, so the call succeeds. The only
// failures are bad requests, bad client authentication, an unsupported
// hint, and tokens belonging to a different client.
func (s *Server) Revoke(ctx context.Context, req *RevocationRequest) error {
	if req == nil || req.Token == "" {
		return ErrInvalidRequest("token is required")
	}

	switch req.TokenTypeHint {
	case "", TokenTypeHintAccessToken, TokenTypeHintRefreshToken:
	default:
		return ErrUnsupportedTokenType("unsupported token_type_hint: " + req.TokenTypeHint)
	}

	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, req.IPAddress)
	if err != nil {
		return err
	}

	claims, err := s.codec.Verify(req.Token)
	if err != nil {
		// Malformed or forged tokens reference nothing revocable.
		return nil
	}

	if claims.ClientID != "" && claims.ClientID != client.ClientID {
		return ErrInvalidGrant("token was issued to a different client")
	}

	// The hint is advisory: when it misses, the other kind is tried.
	switch req.TokenTypeHint {
	case TokenTypeHintAccessToken:
		if done, err := s.revokeAccessToken(ctx, client, claims.ID, req.IPAddress); done || err != nil {
			return err
		}
		_, err := s.revokeRefreshToken(ctx, client, claims.ID, req.IPAddress)
		return err
	case TokenTypeHintRefreshToken:
		if done, err := s.revokeRefreshToken(ctx, client, claims.ID, req.IPAddress); done || err != nil {
			return err
		}
		_, err := s.revokeAccessToken(ctx, client, claims.ID, req.IPAddress)
		return err
	default:
		if done, err := s.revokeAccessToken(ctx, client, claims.ID, req.IPAddress); done || err != nil {
			return err
		}
		_, err := s.revokeRefreshToken(ctx, client, claims.ID, req.IPAddress)
		return err
	}
}

// revokeAccessToken revokes the access token record with the given ID, if
// it exists and belongs to the client. Reports whether a record was found.
func (s *Server) revokeAccessToken(ctx context.Context, client *storage.Client, id, ipAddress string) (bool, error) {
	access, err := s.tokenStore.FindAccessTokenByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("Failed to load access token", "error", err, "token_id", id)
		return false, ErrServerError("failed to process request")
	}

	if access.ClientID != client.ClientID {
		return true, ErrInvalidGrant("token was issued to a different client")
	}

	if err := s.tokenStore.RevokeAccessToken(ctx, id, time.Now()); err != nil {
		s.logger.Error("Failed to revoke access token", "error", err, "token_id", id)
		return true, ErrServerError("failed to process request")
	}

	s.auditor.LogTokenRevoked(access.Subject, client.ClientID, ipAddress, TokenTypeHintAccessToken)
	return true, nil
}

// revokeRefreshToken revokes the refresh token record with the given ID
// and its paired access token, if it exists and belongs to the client.
// Reports whether a record was found.
func (s *Server) revokeRefreshToken(ctx context.Context, client *storage.Client, id, ipAddress string) (bool, error) {
	refresh, err := s.tokenStore.FindRefreshTokenByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("Failed to load refresh token", "error", err, "token_id", id)
		return false, ErrServerError("failed to process request")
	}

	access, err := s.tokenStore.FindAccessTokenByID(ctx, refresh.AccessTokenID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("Failed to load access token", "error", err, "token_id", refresh.AccessTokenID)
		return true, ErrServerError("failed to process request")
	}
	if access != nil && access.ClientID != client.ClientID {
		return true, ErrInvalidGrant("token was issued to a different client")
	}

	now := time.Now()
	if err := s.tokenStore.RevokeRefreshToken(ctx, id, now); err != nil {
		s.logger.Error("Failed to revoke refresh token", "error", err, "token_id", id)
		return true, ErrServerError("failed to process request")
	}

	// RFC 7009 Section 2.1: revoking a refresh token should also
	// invalidate the access tokens based on it.
	if access != nil && !access.Revoked() {
		if err := s.tokenStore.RevokeAccessToken(ctx, access.ID, now); err != nil {
			s.logger.Error("Failed to revoke paired access token", "error", err, "token_id", access.ID)
		}
	}

	subject := ""
	if access != nil {
		subject = access.Subject
	}
	s.auditor.LogTokenRevoked(subject, client.ClientID, ipAddress, TokenTypeHintRefreshToken)
	return true, nil
}
