package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/storage"
)

// AuthorizationRequest carries the parsed parameters of an authorization
// endpoint request.
type AuthorizationRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Nonce        string

	// PKCE parameters, optional unless RequirePKCE is set.
	CodeChallenge       string
	CodeChallengeMethod string

	// UserAgent and IPAddress are recorded for auditing.
	UserAgent string
	IPAddress string
}

// PendingAuthorization is a validated authorization request awaiting
// end-user authentication. The embedder renders its login dialog against
// this and later calls CompleteAuthentication or CancelAuthorization
// with the ID.
type PendingAuthorization struct {
	// ID identifies the pending request across the login round trip.
	ID string

	ClientID     string
	ClientName   string
	ResponseType string
	Scope        string
	RedirectURI  string
	State        string

	// CallbackToken correlates a federated-strategy callback with this
	// pending request.
	CallbackToken string

	ExpiresAt time.Time
}

// AuthorizationRedirect is the browser redirect concluding an
// authorization flow, successful or not.
type AuthorizationRedirect struct {
	// URL is the fully assembled redirect target.
	URL string

	// Fragment reports whether the response parameters live in the URI
	// fragment (implicit flow) rather than the query string.
	Fragment bool
}

// RedirectError is an OAuth error that must be delivered to the client's
// redirect URI rather than as a direct response. It only wraps errors
// raised after the redirect URI has been proven registered.
type RedirectError struct {
	Err         *Error
	RedirectURI string
	Fragment    bool
}

func (e *RedirectError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped OAuth error to errors.As/Is.
func (e *RedirectError) Unwrap() error { return e.Err }

// URL assembles the redirect target carrying error, error_description,
// and state parameters.
func (e *RedirectError) URL() string {
	params := url.Values{}
	params.Set("error", e.Err.Code)
	if e.Err.Description != "" {
		params.Set("error_description", e.Err.Description)
	}
	if e.Err.State != "" {
		params.Set("state", e.Err.State)
	}
	return appendParams(e.RedirectURI, params, e.Fragment)
}

// redirectError wraps an OAuth error for redirect delivery.
func redirectError(err *Error, req *AuthorizationRequest) *RedirectError {
	return &RedirectError{
		Err:         err.WithState(req.State),
		RedirectURI: req.RedirectURI,
		Fragment:    req.ResponseType == storage.ResponseTypeToken,
	}
}

// BeginAuthorization validates an authorization request and persists a
// pending authorization code record in the created state (no subject, no
// code value yet).
//
// Validation failures before the redirect URI is proven registered are
// returned as plain *Error values the transport must answer directly;
// anything after comes back as a *RedirectError for delivery to the
// client's redirect URI.
func (s *Server) BeginAuthorization(ctx context.Context, req *AuthorizationRequest) (*PendingAuthorization, error) {
	if req == nil {
		return nil, ErrInvalidRequest("authorization request is required")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.clientStore.FindClientByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidClient("unknown client")
		}
		s.logger.Error("Failed to load client", "error", err, "client_id", req.ClientID)
		return nil, ErrServerError("failed to process request")
	}
	if client.Revoked() {
		return nil, ErrInvalidClient("client has been revoked")
	}

	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}
	if err := s.validateRedirectURI(client, req.RedirectURI); err != nil {
		// The URI is unproven: never redirect to it.
		return nil, ErrInvalidRequest(err.Error())
	}

	// From here on the redirect URI is trusted and errors go to it.
	if err := validateResponseType(req.ResponseType); err != nil {
		return nil, redirectError(ErrUnsupportedResponseType(err.Error()), req)
	}

	if req.CodeChallenge == "" && s.config.RequirePKCE {
		return nil, redirectError(ErrInvalidRequest("code_challenge is required"), req)
	}
	if req.CodeChallenge != "" {
		if err := s.validateChallengeMethod(req.CodeChallengeMethod); err != nil {
			return nil, redirectError(ErrInvalidRequest(err.Error()), req)
		}
	}

	if err := s.validateRequestedScope(ctx, client, req.Scope); err != nil {
		var oauthErr *Error
		if errors.As(err, &oauthErr) {
			return nil, redirectError(oauthErr, req)
		}
		return nil, err
	}

	now := time.Now()
	code := &storage.AuthorizationCode{
		ID:                  newRecordID(),
		ClientID:            client.ClientID,
		Scope:               req.Scope,
		ResponseType:        req.ResponseType,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Nonce:               req.Nonce,
		CallbackToken:       generateRandomToken(),
		UserAgent:           req.UserAgent,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.config.AuthorizationCodeTTL),
	}

	if err := s.codeStore.CreateAuthorizationCode(ctx, code); err != nil {
		s.logger.Error("Failed to create authorization code", "error", err, "client_id", client.ClientID)
		return nil, redirectError(ErrServerError("failed to process request"), req)
	}

	s.auditor.LogEvent(security.Event{
		Type:      security.EventAuthorizationStarted,
		ClientID:  client.ClientID,
		IPAddress: req.IPAddress,
		Details:   map[string]any{"response_type": req.ResponseType},
	})

	return &PendingAuthorization{
		ID:            code.ID,
		ClientID:      client.ClientID,
		ClientName:    client.Name,
		ResponseType:  code.ResponseType,
		Scope:         code.Scope,
		RedirectURI:   code.RedirectURI,
		State:         code.State,
		CallbackToken: code.CallbackToken,
		ExpiresAt:     code.ExpiresAt,
	}, nil
}

// CompleteAuthentication attaches an authenticated identity to a pending
// authorization and produces the concluding redirect: a one-time code for
// response_type=code, or tokens directly for response_type=token.
//
// A failed authentication attempt should simply not call this; the
// pending request stays valid for retry until it expires.
func (s *Server) CompleteAuthentication(ctx context.Context, pendingID string, identity *Identity) (*AuthorizationRedirect, error) {
	if identity == nil || identity.Subject == "" {
		return nil, ErrAccessDenied("authentication did not produce an identity")
	}

	code, err := s.codeStore.FindAuthorizationCodeByID(ctx, pendingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAccessDenied("authorization request not found")
		}
		s.logger.Error("Failed to load authorization code", "error", err)
		return nil, ErrServerError("failed to process request")
	}

	return s.finishAuthorization(ctx, code, identity)
}

// finishAuthorization runs the shared tail of CompleteAuthentication and
// CompleteStrategyCallback.
func (s *Server) finishAuthorization(ctx context.Context, code *storage.AuthorizationCode, identity *Identity) (*AuthorizationRedirect, error) {
	now := time.Now()
	if code.Revoked() || code.Expired(now) {
		return nil, ErrAccessDenied("authorization request has expired")
	}

	client, err := s.clientStore.FindClientByClientID(ctx, code.ClientID)
	if err != nil {
		s.logger.Error("Failed to load client", "error", err, "client_id", code.ClientID)
		return nil, ErrServerError("failed to process request")
	}
	if client.Revoked() {
		return nil, ErrAccessDenied("client has been revoked")
	}

	granted := MergeScopes(identity.Scope, code.Scope, client.Scope)

	switch code.ResponseType {
	case storage.ResponseTypeCode:
		code.Subject = identity.Subject
		code.Scope = granted
		code.Code = generateRandomToken()

		if err := s.codeStore.UpdateAuthorizationCode(ctx, code); err != nil {
			s.logger.Error("Failed to update authorization code", "error", err, "code_id", code.ID)
			return nil, ErrServerError("failed to process request")
		}

		s.auditor.LogEvent(security.Event{
			Type:     security.EventAuthorizationCodeIssued,
			Subject:  identity.Subject,
			ClientID: client.ClientID,
		})

		params := url.Values{}
		params.Set("code", code.Code)
		if code.State != "" {
			params.Set("state", code.State)
		}
		return &AuthorizationRedirect{
			URL: appendParams(code.RedirectURI, params, false),
		}, nil

	case storage.ResponseTypeToken:
		// Implicit flow: tokens straight to the fragment, the pending
		// record is consumed, never a refresh token.
		grant, err := s.issueTokens(ctx, client, GrantImplicit, identity.Subject, granted, code.UserAgent)
		if err != nil {
			var oauthErr *Error
			if errors.As(err, &oauthErr) {
				return nil, &RedirectError{Err: oauthErr.WithState(code.State), RedirectURI: code.RedirectURI, Fragment: true}
			}
			return nil, err
		}

		if err := s.codeStore.RevokeAuthorizationCode(ctx, code.ID, now); err != nil {
			s.logger.Error("Failed to revoke authorization code", "error", err, "code_id", code.ID)
		}

		s.auditor.LogTokenIssued(identity.Subject, client.ClientID, "", GrantImplicit, grant.Scope)

		params := url.Values{}
		params.Set("access_token", grant.AccessToken)
		params.Set("token_type", grant.TokenType)
		params.Set("expires_in", strconv.FormatInt(grant.ExpiresIn, 10))
		if grant.Scope != "" {
			params.Set("scope", grant.Scope)
		}
		if code.State != "" {
			params.Set("state", code.State)
		}
		return &AuthorizationRedirect{
			URL:      appendParams(code.RedirectURI, params, true),
			Fragment: true,
		}, nil
	}

	return nil, ErrServerError("unknown response type on stored authorization")
}

// CancelAuthorization revokes a pending authorization after the resource
// owner declined the login dialog, and returns the access_denied redirect.
func (s *Server) CancelAuthorization(ctx context.Context, pendingID string) (*AuthorizationRedirect, error) {
	code, err := s.codeStore.FindAuthorizationCodeByID(ctx, pendingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAccessDenied("authorization request not found")
		}
		s.logger.Error("Failed to load authorization code", "error", err)
		return nil, ErrServerError("failed to process request")
	}

	if err := s.codeStore.RevokeAuthorizationCode(ctx, code.ID, time.Now()); err != nil {
		s.logger.Error("Failed to revoke authorization code", "error", err, "code_id", code.ID)
		return nil, ErrServerError("failed to process request")
	}

	s.auditor.LogEvent(security.Event{
		Type:     security.EventAuthorizationCancelled,
		ClientID: code.ClientID,
	})

	denied := &RedirectError{
		Err:         ErrAccessDenied("the resource owner denied the request").WithState(code.State),
		RedirectURI: code.RedirectURI,
		Fragment:    code.ResponseType == storage.ResponseTypeToken,
	}
	return &AuthorizationRedirect{
		URL:      denied.URL(),
		Fragment: denied.Fragment,
	}, nil
}

// CompleteStrategyCallback finishes an authorization that was delegated
// to a federated identity strategy: the upstream callback code is
// exchanged, the end user resolved, and the flow concluded exactly as
// CompleteAuthentication would.
func (s *Server) CompleteStrategyCallback(ctx context.Context, strategyName, callbackToken, upstreamCode, verifier string) (*AuthorizationRedirect, error) {
	st := s.strategies[strategyName]
	if st == nil {
		return nil, ErrAccessDenied("unknown identity strategy")
	}

	code, err := s.codeStore.FindAuthorizationCodeByCallbackToken(ctx, callbackToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAccessDenied("authorization request not found")
		}
		s.logger.Error("Failed to load authorization code by callback token", "error", err)
		return nil, ErrServerError("failed to process request")
	}

	upstream, err := st.Exchange(ctx, upstreamCode, verifier)
	if err != nil {
		s.logger.Error("Strategy exchange failed", "error", err, "strategy", strategyName)
		s.auditor.LogEvent(security.Event{
			Type:     security.EventStrategyCallbackFailed,
			ClientID: code.ClientID,
			Details:  map[string]any{"strategy": strategyName},
		})
		return nil, ErrAccessDenied("upstream authentication failed")
	}

	user, err := st.UserLookup(ctx, upstream)
	if err != nil {
		s.logger.Error("Strategy user lookup failed", "error", err, "strategy", strategyName)
		return nil, ErrAccessDenied("upstream authentication failed")
	}
	if user == nil {
		return nil, ErrAccessDenied(fmt.Sprintf("strategy %s did not recognize the user", strategyName))
	}

	return s.finishAuthorization(ctx, code, &Identity{
		Subject: user.Subject,
		Scope:   user.Scope,
		Extra:   user.Extra,
	})
}

// appendParams attaches params to base as either query or fragment
// parameters, preserving any query already present on base.
func appendParams(base string, params url.Values, fragment bool) string {
	parsed, err := url.Parse(base)
	if err != nil {
		// Validated upstream; fall back to naive assembly.
		sep := "?"
		if fragment {
			sep = "#"
		}
		return base + sep + params.Encode()
	}

	if fragment {
		parsed.Fragment = params.Encode()
	} else {
		q := parsed.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
