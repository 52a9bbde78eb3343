// Package storage defines the persistence contract for the OAuth
// authorization server: record types for clients, scopes, authorization
// codes, and tokens, plus the store interfaces backends must implement.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common storage errors. Backends must return these sentinel values (or
// wrap them) so callers can distinguish "not found" from infrastructure
// failures without string matching.
var (
	ErrNotFound        = errors.New("storage: record not found")
	ErrAlreadyConsumed = errors.New("storage: record already consumed")
	ErrExpired         = errors.New("storage: record expired")
)

// Client profiles describe how the application is deployed, which in turn
// determines the client type (web apps can keep a secret, user-agent-based
// and native apps cannot).
const (
	ProfileWeb           = "web"
	ProfileUserAgentBase = "user-agent-based"
	ProfileNative        = "native"
)

// Client types per RFC 6749 Section 2.1.
const (
	TypeConfidential = "confidential"
	TypePublic       = "public"
)

// Client is a registered OAuth application.
//
// Type and Grants are derived values: they are computed from Profile and
// Internal by the policy layer whenever a client is created or edited,
// never set directly by callers.
type Client struct {
	// ID is the internal record identifier.
	ID string

	// ClientID is the public OAuth client identifier.
	ClientID string

	// Name is the human-readable client name.
	Name string

	// SecretHash is the bcrypt hash of the client secret.
	// Empty for public clients, which cannot keep a secret.
	SecretHash string

	// Internal marks first-party clients operated by the same
	// organization as the authorization server. Internal clients get
	// longer token lifetimes and may hold the wildcard scope.
	Internal bool

	// Profile is one of ProfileWeb, ProfileUserAgentBase, ProfileNative.
	Profile string

	// Type is TypeConfidential or TypePublic, derived from Profile.
	Type string

	// Grants lists the grant types this client may use, derived from
	// Type and Internal.
	Grants []string

	// Scope is the client's declared scope: space-delimited tokens, or
	// "*" meaning all scopes (internal clients only).
	Scope string

	// Domain is the client's origin, used as the azp claim when set.
	Domain string

	// RedirectURIs lists the registered redirect URIs.
	RedirectURIs []string

	CreatedAt time.Time

	// RevokedAt soft-deletes the client. Revoked clients fail every
	// grant with invalid_client; records are never hard-deleted while
	// issued tokens reference them.
	RevokedAt *time.Time
}

// Revoked reports whether the client has been soft-revoked.
func (c *Client) Revoked() bool {
	return c.RevokedAt != nil
}

// Confidential reports whether the client can keep a secret.
func (c *Client) Confidential() bool {
	return c.Type == TypeConfidential
}

// HasGrant reports whether the grant type is in the client's derived set.
func (c *Client) HasGrant(grant string) bool {
	for _, g := range c.Grants {
		if g == grant {
			return true
		}
	}
	return false
}

// Scope is a named permission unit. Scopes form an optional tree via
// Parent; token logic only checks existence, never expands the hierarchy.
type Scope struct {
	Name        string
	Parent      string
	Description string
	CreatedAt   time.Time
}

// Response types for the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// AuthorizationCode tracks a pending authorization request from creation
// through user authentication to redemption or denial.
//
// A freshly created record has neither Subject nor Code: those are set
// together when the end user authenticates (a code must never be
// redeemable before a subject is attached). Redeemed codes are revoked,
// not deleted; maintenance purges remove expired and revoked rows.
type AuthorizationCode struct {
	// ID is the internal record identifier.
	ID string

	// ClientID references the owning client's public identifier.
	ClientID string

	// Subject is the resource owner's identifier, set on authentication.
	Subject string

	// Code is the one-time code value, set on authentication and only
	// when ResponseType is "code".
	Code string

	// Scope is the scope granted to this authorization.
	Scope string

	// ResponseType is ResponseTypeCode or ResponseTypeToken.
	ResponseType string

	// CodeChallenge and CodeChallengeMethod carry the PKCE parameters
	// from the authorization request, if any.
	CodeChallenge       string
	CodeChallengeMethod string

	// RedirectURI is the redirect URI bound at creation time. Redemption
	// must present the exact same value.
	RedirectURI string

	// State and Nonce are echoed back to the client unmodified.
	State string
	Nonce string

	// CallbackToken correlates federated-strategy callbacks with this
	// pending authorization.
	CallbackToken string

	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the code has been consumed or denied.
func (a *AuthorizationCode) Revoked() bool {
	return a.RevokedAt != nil
}

// Expired reports whether the code is past its expiry at the given time.
func (a *AuthorizationCode) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// AccessToken is the record backing an issued bearer token. The record,
// not the signed JWT, is authoritative: its ID is embedded in the token as
// the jti claim, and revocation and purge operate on the record.
type AccessToken struct {
	// ID is the record identifier and the token's jti claim.
	ID string

	// Subject is the resource owner (or the client id itself for
	// client_credentials grants).
	Subject string

	// Grant is the grant type that produced this token.
	Grant string

	// ClientID references the owning client's public identifier.
	ClientID string

	// Scope is the space-delimited scope granted to this token.
	Scope string

	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token has been revoked.
func (t *AccessToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at the given time.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// RefreshToken pairs with exactly one AccessToken. A refresh token is
// usable only after its paired access token has expired, only before its
// own expiry, and only once: redemption revokes it atomically.
//
// The record embeds the issuing grant's subject, scope, and client so
// redemption does not depend on the paired access record, which expires
// first and may be deleted by maintenance sweeps long before the refresh
// token is spent.
type RefreshToken struct {
	// ID is the record identifier and the refresh JWT's jti claim.
	ID string

	// AccessTokenID references the paired access token record. The
	// record may no longer exist at redemption time.
	AccessTokenID string

	// Subject is the resource owner the pair was issued to.
	Subject string

	// Grant is the grant type that produced the pair.
	Grant string

	// ClientID is the public id of the issuing client.
	ClientID string

	// Scope is the scope of the paired access token at issuance.
	Scope string

	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the refresh token has been revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at the given time.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// PurgeTarget selects which records a maintenance purge removes.
type PurgeTarget string

const (
	// PurgeRevoked removes records with RevokedAt set.
	PurgeRevoked PurgeTarget = "revoked"

	// PurgeExpired removes records whose expiry is at or before now.
	PurgeExpired PurgeTarget = "expired"

	// PurgeAll removes records that are either revoked or expired.
	PurgeAll PurgeTarget = "all"
)

// Valid reports whether the target is one of the defined values.
func (t PurgeTarget) Valid() bool {
	switch t {
	case PurgeRevoked, PurgeExpired, PurgeAll:
		return true
	}
	return false
}

// ClientStore manages OAuth client records.
type ClientStore interface {
	// FindClientByID retrieves a client by its internal record ID.
	// Returns ErrNotFound if no client exists.
	FindClientByID(ctx context.Context, id string) (*Client, error)

	// FindClientByClientID retrieves a client by its public client_id.
	// Returns ErrNotFound if no client exists.
	FindClientByClientID(ctx context.Context, clientID string) (*Client, error)

	// SaveClient creates or replaces a client record.
	SaveClient(ctx context.Context, client *Client) error

	// RevokeClient sets the client's revocation timestamp. Revocation is
	// idempotent: revoking an already-revoked client keeps the original
	// timestamp.
	RevokeClient(ctx context.Context, clientID string, at time.Time) error

	// ValidateClientSecret checks a plaintext secret against the stored
	// hash. Must return a generic error on mismatch or unknown client so
	// callers cannot distinguish the two.
	ValidateClientSecret(ctx context.Context, clientID, secret string) error
}

// ScopeStore manages named scopes. Used for existence validation only.
type ScopeStore interface {
	// FindScopesByNames returns the scopes matching the given names.
	// Missing names are simply absent from the result, not an error.
	FindScopesByNames(ctx context.Context, names []string) ([]*Scope, error)

	// SaveScope creates or replaces a scope.
	SaveScope(ctx context.Context, scope *Scope) error
}

// AuthCodeStore manages authorization code records.
type AuthCodeStore interface {
	// CreateAuthorizationCode persists a new pending authorization.
	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// FindAuthorizationCode retrieves a code by owning client and code
	// value. Returns ErrNotFound if absent.
	FindAuthorizationCode(ctx context.Context, clientID, code string) (*AuthorizationCode, error)

	// FindAuthorizationCodeByID retrieves a code by record ID.
	FindAuthorizationCodeByID(ctx context.Context, id string) (*AuthorizationCode, error)

	// FindAuthorizationCodeByCallbackToken retrieves a pending
	// authorization by its strategy correlation token.
	FindAuthorizationCodeByCallbackToken(ctx context.Context, token string) (*AuthorizationCode, error)

	// UpdateAuthorizationCode replaces an existing record.
	UpdateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically redeems a code by client and
	// code value: exactly one concurrent caller receives the record, all
	// others receive ErrAlreadyConsumed. Expired codes return ErrExpired.
	//
	// SECURITY: the lookup and the consumed-marking must be a single
	// atomic step. A check-then-act pair here opens an authorization code
	// replay window.
	ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*AuthorizationCode, error)

	// RevokeAuthorizationCode sets the revocation timestamp.
	RevokeAuthorizationCode(ctx context.Context, id string, at time.Time) error

	// PurgeAuthorizationCodes deletes records matching the target and
	// returns the number removed.
	PurgeAuthorizationCodes(ctx context.Context, target PurgeTarget) (int, error)
}

// TokenStore manages access and refresh token records.
type TokenStore interface {
	// CreateAccessToken persists a new access token record.
	CreateAccessToken(ctx context.Context, token *AccessToken) error

	// FindAccessTokenByID retrieves an access token record by ID (the
	// jti claim of the signed token). Returns ErrNotFound if absent.
	FindAccessTokenByID(ctx context.Context, id string) (*AccessToken, error)

	// RevokeAccessToken sets the revocation timestamp. Idempotent.
	RevokeAccessToken(ctx context.Context, id string, at time.Time) error

	// CreateRefreshToken persists a new refresh token record.
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error

	// FindRefreshTokenByID retrieves a refresh token record by ID.
	FindRefreshTokenByID(ctx context.Context, id string) (*RefreshToken, error)

	// RevokeRefreshToken sets the revocation timestamp. Idempotent.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error

	// ConsumeRefreshToken atomically revokes an unrevoked refresh token
	// and returns it. If the token is already revoked, returns
	// ErrAlreadyConsumed.
	//
	// SECURITY: this must be an atomic revoke-if-unrevoked update, not a
	// read-then-write pair. Two concurrent redemptions of the same
	// refresh token must never both succeed (double-spend).
	ConsumeRefreshToken(ctx context.Context, id string, at time.Time) (*RefreshToken, error)

	// PurgeAccessTokens deletes access token records matching the target
	// and returns the number removed.
	PurgeAccessTokens(ctx context.Context, target PurgeTarget) (int, error)

	// PurgeRefreshTokens deletes refresh token records matching the
	// target and returns the number removed.
	PurgeRefreshTokens(ctx context.Context, target PurgeTarget) (int, error)
}
