package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/storage"
	"github.com/oakward/oauth-core/token"
)

// TokenRequest carries the parsed parameters of a token endpoint request.
// The transport layer fills it from the form body (and Basic auth header);
// the grant engine never touches the HTTP request itself.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code parameters
	Code         string
	RedirectURI  string
	CodeVerifier string

	// password parameters
	Username string
	Password string

	// refresh_token parameters
	RefreshToken string

	// Scope is the requested scope, space-delimited.
	Scope string

	// UserAgent and IPAddress are recorded for auditing.
	UserAgent string
	IPAddress string
}

// Token processes a token endpoint request and dispatches to the matching
// grant handler. Every error returned is a *Error carrying an OAuth error
// code and HTTP status.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*TokenGrant, error) {
	if req == nil || req.GrantType == "" {
		return nil, ErrInvalidRequest("grant_type is required")
	}

	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, req.IPAddress)
	if err != nil {
		return nil, err
	}

	if err := s.validateRequestedScope(ctx, client, req.Scope); err != nil {
		return nil, err
	}

	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.handleAuthorizationCode(ctx, client, req)
	case GrantClientCredentials:
		return s.handleClientCredentials(ctx, client, req)
	case GrantPassword:
		return s.handlePassword(ctx, client, req)
	case GrantRefreshToken:
		return s.handleRefreshToken(ctx, client, req)
	case GrantImplicit:
		// Implicit tokens come from the authorization endpoint only.
		return nil, ErrUnsupportedGrantType("implicit grant is not available at the token endpoint")
	default:
		return nil, ErrUnsupportedGrantType("unsupported grant type: " + req.GrantType)
	}
}

// authenticateClient resolves and authenticates the requesting client.
// Unknown, revoked, and badly authenticated clients all collapse into
// invalid_client so callers cannot probe which client IDs exist.
func (s *Server) authenticateClient(ctx context.Context, clientID, clientSecret, ipAddress string) (*storage.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.clientStore.FindClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.auditor.LogAuthFailure("", clientID, ipAddress, "unknown client")
			return nil, ErrInvalidClient("client authentication failed")
		}
		s.logger.Error("Failed to load client", "error", err, "client_id", clientID)
		return nil, ErrServerError("failed to process request")
	}

	if client.Revoked() {
		s.auditor.LogAuthFailure("", clientID, ipAddress, "revoked client")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if client.Confidential() && clientSecret == "" {
		s.auditor.LogAuthFailure("", clientID, ipAddress, "missing client secret")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if clientSecret != "" {
		if err := s.clientStore.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
			s.auditor.LogAuthFailure("", clientID, ipAddress, "bad client secret")
			return nil, ErrInvalidClient("client authentication failed")
		}
	}

	return client, nil
}

// validateRequestedScope checks scope syntax, the client's declared scope,
// and (when a scope store is configured) scope existence.
func (s *Server) validateRequestedScope(ctx context.Context, client *storage.Client, requested string) error {
	if requested == "" {
		return nil
	}

	if err := validateScopeSyntax(requested); err != nil {
		return ErrInvalidScope(err.Error())
	}

	if !ValidateClientScope(client, requested) {
		return ErrInvalidScope("requested scope exceeds the client's declared scope")
	}

	if s.scopeStore != nil && requested != WildcardScope {
		names := scopeTokens(requested)
		scopes, err := s.scopeStore.FindScopesByNames(ctx, names)
		if err != nil {
			s.logger.Error("Failed to look up scopes", "error", err)
			return ErrServerError("failed to process request")
		}
		if len(scopes) != len(names) {
			return ErrInvalidScope("requested scope contains unknown scopes")
		}
	}

	return nil
}

// handleAuthorizationCode redeems a one-time authorization code.
//
// The code is consumed before the remaining checks run: a code presented
// with a bad verifier or redirect URI is burned, not left redeemable.
func (s *Server) handleAuthorizationCode(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenGrant, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	code, err := s.codeStore.ConsumeAuthorizationCode(ctx, client.ClientID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyConsumed):
			s.auditor.LogEvent(security.Event{
				Type:      security.EventAuthorizationCodeReplayDetected,
				ClientID:  client.ClientID,
				IPAddress: req.IPAddress,
			})
			return nil, ErrInvalidGrant("authorization code has already been used")
		case errors.Is(err, storage.ErrExpired):
			return nil, ErrInvalidGrant("authorization code is expired")
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrInvalidGrant("authorization code not found")
		}
		s.logger.Error("Failed to consume authorization code", "error", err, "client_id", client.ClientID)
		return nil, ErrServerError("failed to process request")
	}

	if code.Subject == "" {
		// Created but never authenticated: not redeemable.
		return nil, ErrInvalidGrant("authorization code not found")
	}

	if code.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if err := s.validatePKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier); err != nil {
		s.auditor.LogEvent(security.Event{
			Type:      security.EventInvalidPKCE,
			Subject:   code.Subject,
			ClientID:  client.ClientID,
			IPAddress: req.IPAddress,
		})
		return nil, ErrInvalidGrant(err.Error())
	}

	grant, err := s.issueTokens(ctx, client, GrantAuthorizationCode, code.Subject, code.Scope, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenIssued(code.Subject, client.ClientID, req.IPAddress, GrantAuthorizationCode, grant.Scope)
	return grant, nil
}

// handleClientCredentials issues a token for the client's own identity.
// Confidential clients only; never paired with a refresh token.
func (s *Server) handleClientCredentials(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenGrant, error) {
	if !client.Confidential() {
		return nil, ErrUnauthorizedClient("client_credentials grant requires a confidential client")
	}

	scope := MergeScopes(client.Scope, req.Scope, client.Scope)

	grant, err := s.issueTokens(ctx, client, GrantClientCredentials, client.ClientID, scope, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenIssued(client.ClientID, client.ClientID, req.IPAddress, GrantClientCredentials, grant.Scope)
	return grant, nil
}

// handlePassword exchanges resource-owner credentials for a token via the
// embedder-installed CredentialAuthenticator.
func (s *Server) handlePassword(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenGrant, error) {
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidRequest("username and password are required")
	}

	if s.authenticator == nil {
		return nil, ErrUnsupportedGrantType("password grant is not configured")
	}

	identity, err := s.authenticator(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Error("Credential authenticator failed", "error", err, "client_id", client.ClientID)
		return nil, ErrServerError("failed to process request")
	}
	if identity == nil {
		s.auditor.LogAuthFailure(req.Username, client.ClientID, req.IPAddress, "invalid credentials")
		return nil, ErrInvalidGrant("invalid resource owner credentials")
	}

	scope := MergeScopes(identity.Scope, req.Scope, client.Scope)

	grant, err := s.issueTokens(ctx, client, GrantPassword, identity.Subject, scope, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenIssued(identity.Subject, client.ClientID, req.IPAddress, GrantPassword, grant.Scope)
	return grant, nil
}

// handleRefreshToken redeems a refresh token for a fresh access/refresh
// pair. A refresh token is single-use and only valid once its paired
// access token has expired.
func (s *Server) handleRefreshToken(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenGrant, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	claims, err := s.codec.Verify(req.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrInvalidGrant("refresh token is expired")
		}
		return nil, ErrInvalidGrant("invalid refresh token")
	}

	record, err := s.tokenStore.FindRefreshTokenByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidGrant("refresh token not found")
		}
		s.logger.Error("Failed to load refresh token", "error", err)
		return nil, ErrServerError("failed to process request")
	}

	if record.ClientID != client.ClientID || claims.ClientID != client.ClientID {
		s.auditor.LogAuthFailure(record.Subject, client.ClientID, req.IPAddress, "refresh token client mismatch")
		return nil, ErrInvalidGrant("refresh token was issued to a different client")
	}

	now := time.Now()

	if record.Expired(now) {
		return nil, ErrInvalidGrant("refresh token is expired")
	}
	if record.Revoked() {
		s.auditor.LogEvent(security.Event{
			Type:      security.EventRefreshTokenReplayDetected,
			Subject:   record.Subject,
			ClientID:  client.ClientID,
			IPAddress: req.IPAddress,
		})
		return nil, ErrInvalidGrant("refresh token has already been used")
	}

	// Refresh cannot pre-empt the paired access token: redemption waits
	// for its expiry, revoked or not. The access record expires before
	// the refresh token and may already be swept away; a missing record
	// counts as expired.
	access, err := s.tokenStore.FindAccessTokenByID(ctx, record.AccessTokenID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("Failed to load access token", "error", err)
		return nil, ErrServerError("failed to process request")
	}
	if access != nil && !access.Expired(now) {
		return nil, ErrInvalidGrant("access token associated with the refresh token is still active")
	}

	// Requested scope widens the previous grant; overlapping tokens are
	// rejected rather than deduplicated.
	scope := record.Scope
	if req.Scope != "" {
		if overlap := scopeOverlap(record.Scope, req.Scope); overlap != "" {
			return nil, ErrInvalidScope(fmt.Sprintf("%s is already in the previous access token scope", overlap))
		}
		scope = appendScope(record.Scope, req.Scope)
	}

	if _, err := s.tokenStore.ConsumeRefreshToken(ctx, record.ID, now); err != nil {
		if errors.Is(err, storage.ErrAlreadyConsumed) {
			s.auditor.LogEvent(security.Event{
				Type:      security.EventRefreshTokenReplayDetected,
				Subject:   record.Subject,
				ClientID:  client.ClientID,
				IPAddress: req.IPAddress,
			})
			return nil, ErrInvalidGrant("refresh token has already been used")
		}
		s.logger.Error("Failed to consume refresh token", "error", err)
		return nil, ErrServerError("failed to process request")
	}

	grant, err := s.issueTokens(ctx, client, record.Grant, record.Subject, scope, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.auditor.LogTokenRefreshed(record.Subject, client.ClientID, req.IPAddress, grant.Scope)
	return grant, nil
}
