// Package strategy defines the federated-identity strategy contract:
// pluggable external identity providers the authorization server can
// delegate end-user authentication to during the authorize flow.
package strategy

import (
	"context"

	"golang.org/x/oauth2"
)

// Grant kinds a strategy can operate with against its upstream provider.
const (
	GrantAuthorizationCode     = "authorization_code"
	GrantAuthorizationCodePKCE = "authorization_code_pkce"
	GrantImplicit              = "implicit"
	GrantPassword              = "password"
)

// EndUser is the identity a strategy resolves from its upstream provider.
type EndUser struct {
	// Subject is the end user's identifier as known to this server.
	Subject string

	// Scope is the scope the user is allowed, space-delimited. Empty
	// means no restriction contributed by the strategy.
	Scope string

	// Extra carries provider-specific profile data (email, name, ...).
	Extra map[string]any
}

// Strategy is a federated identity provider, identified by a string key.
// Implementations wrap the upstream provider's redirect choreography and
// expose it as three steps: build the redirect URL, exchange the callback
// code, and look up the authenticated end user.
type Strategy interface {
	// Name is the registry key, e.g. "github" or "corp-sso".
	Name() string

	// Grant is the grant kind used against the upstream provider, one of
	// the Grant* constants.
	Grant() string

	// AuthorizationURL builds the upstream redirect URL carrying the
	// given state.
	AuthorizationURL(state string, opts ...oauth2.AuthCodeOption) string

	// Exchange trades the upstream callback code for an upstream token.
	// verifier is the PKCE verifier for GrantAuthorizationCodePKCE
	// strategies, empty otherwise.
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)

	// UserLookup resolves the authenticated end user from the upstream
	// token. A nil EndUser with a nil error means the provider did not
	// recognize the user.
	UserLookup(ctx context.Context, tok *oauth2.Token) (*EndUser, error)
}
