package server

import (
	"context"
	"time"

	"github.com/oakward/oauth-core/storage"
	"github.com/oakward/oauth-core/token"
)

// TokenGrant is the outcome of a successful grant: the signed tokens and
// the response metadata the transport serializes.
type TokenGrant struct {
	// AccessToken is the signed access JWT.
	AccessToken string

	// TokenType is the configured token type, normally "Bearer".
	TokenType string

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64

	// RefreshToken is the signed refresh JWT. Empty when the grant or
	// client type does not qualify for one.
	RefreshToken string

	// Scope is the scope actually granted.
	Scope string
}

// issueTokens creates the persistent token records and signs the JWTs for
// a validated grant. The allowed-grant check happens before anything is
// persisted; a failure there leaves no trace.
//
// A refresh token accompanies the access token only when the issuing
// grant can be repeated offline (not client_credentials, not implicit)
// and the client can keep the refresh token secret (confidential).
func (s *Server) issueTokens(ctx context.Context, client *storage.Client, grant, subject, scope, userAgent string) (*TokenGrant, error) {
	if !client.HasGrant(grant) {
		return nil, ErrUnauthorizedClient("client is not authorized for grant type: " + grant)
	}

	now := time.Now()
	accessTTL := s.accessTokenLifetime(client)

	access := &storage.AccessToken{
		ID:        newRecordID(),
		Subject:   subject,
		Grant:     grant,
		ClientID:  client.ClientID,
		Scope:     scope,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(accessTTL),
	}

	azp := client.Domain
	if azp == "" {
		azp = client.ClientID
	}

	accessJWT, err := s.codec.Sign(token.Claims{
		Subject:         subject,
		AuthorizedParty: azp,
		ClientID:        client.ClientID,
		Scope:           scope,
		ID:              access.ID,
		IssuedAt:        now,
		ExpiresAt:       access.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("Failed to sign access token", "error", err, "client_id", client.ClientID)
		return nil, ErrServerError("failed to issue token")
	}

	if err := s.tokenStore.CreateAccessToken(ctx, access); err != nil {
		s.logger.Error("Failed to store access token", "error", err, "client_id", client.ClientID)
		return nil, ErrServerError("failed to issue token")
	}

	grantResult := &TokenGrant{
		AccessToken: accessJWT,
		TokenType:   s.config.TokenType,
		ExpiresIn:   int64(accessTTL.Seconds()),
		Scope:       scope,
	}

	if s.refreshEligible(client, grant) {
		refresh := &storage.RefreshToken{
			ID:            newRecordID(),
			AccessTokenID: access.ID,
			Subject:       subject,
			Grant:         grant,
			ClientID:      client.ClientID,
			Scope:         scope,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.refreshTokenLifetime(client)),
		}

		// Same claims as the access token minus scope: the refresh token
		// confers no access by itself.
		refreshJWT, err := s.codec.Sign(token.Claims{
			Subject:         subject,
			AuthorizedParty: azp,
			ClientID:        client.ClientID,
			ID:              refresh.ID,
			IssuedAt:        now,
			ExpiresAt:       refresh.ExpiresAt,
		})
		if err != nil {
			s.logger.Error("Failed to sign refresh token", "error", err, "client_id", client.ClientID)
			s.rollbackAccessToken(ctx, access.ID)
			return nil, ErrServerError("failed to issue token")
		}

		if err := s.tokenStore.CreateRefreshToken(ctx, refresh); err != nil {
			s.logger.Error("Failed to store refresh token", "error", err, "client_id", client.ClientID)
			s.rollbackAccessToken(ctx, access.ID)
			return nil, ErrServerError("failed to issue token")
		}

		grantResult.RefreshToken = refreshJWT
	}

	return grantResult, nil
}

// refreshEligible reports whether a grant qualifies for a refresh token.
func (s *Server) refreshEligible(client *storage.Client, grant string) bool {
	if grant == GrantClientCredentials || grant == GrantImplicit {
		return false
	}
	return client.Confidential()
}

// rollbackAccessToken revokes a just-created access token record after a
// later issuance step failed, so no half-issued pair stays redeemable.
func (s *Server) rollbackAccessToken(ctx context.Context, id string) {
	if err := s.tokenStore.RevokeAccessToken(ctx, id, time.Now()); err != nil {
		s.logger.Error("Failed to roll back access token", "error", err, "token_id", id)
	}
}
