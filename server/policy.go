package server

import (
	"strings"
	"time"

	"github.com/oakward/oauth-core/storage"
)

// Grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
	GrantImplicit          = "implicit"
)

// WildcardScope grants every scope. Only internal clients may declare it.
const WildcardScope = "*"

// DeriveClientType derives the client type from its deployment profile.
// Web applications run server-side and can keep a secret; user-agent-based
// and native applications cannot.
func DeriveClientType(profile string) string {
	if profile == storage.ProfileWeb {
		return storage.TypeConfidential
	}
	return storage.TypePublic
}

// DeriveAllowedGrants derives the grant types a client may use from its
// type and trust tier. The table is fixed:
//
//	public + internal       -> implicit, authorization_code, password
//	public + external       -> implicit, authorization_code
//	confidential + internal -> implicit, authorization_code, password, client_credentials
//	confidential + external -> implicit, authorization_code
//
// refresh_token eligibility is not part of this set: it follows from the
// issuing grant and the client type at issuance time.
func DeriveAllowedGrants(clientType string, internal bool) []string {
	grants := []string{GrantImplicit, GrantAuthorizationCode}
	if internal {
		grants = append(grants, GrantPassword)
		if clientType == storage.TypeConfidential {
			grants = append(grants, GrantClientCredentials)
		}
	}
	return grants
}

// Lifetime selects the table cell matching the client's trust tier.
func (t ExpiryTable) Lifetime(client *storage.Client) time.Duration {
	if client.Confidential() {
		if client.Internal {
			return t.ConfidentialInternal
		}
		return t.ConfidentialExternal
	}
	if client.Internal {
		return t.PublicInternal
	}
	return t.PublicExternal
}

// accessTokenLifetime resolves the access token TTL for a client.
func (s *Server) accessTokenLifetime(client *storage.Client) time.Duration {
	return s.config.AccessTokenTTL.Lifetime(client)
}

// refreshTokenLifetime resolves the refresh token TTL for a client.
func (s *Server) refreshTokenLifetime(client *storage.Client) time.Duration {
	return s.config.RefreshTokenTTL.Lifetime(client)
}

// ValidateClientScope reports whether the client may request the given
// scope. A wildcard client scope accepts anything; an empty requested
// scope is always valid; otherwise every requested token must appear in
// the client's declared scope. A wildcard in the requested scope is only
// acceptable for wildcard clients.
func ValidateClientScope(client *storage.Client, requested string) bool {
	if client.Scope == WildcardScope {
		return true
	}
	if requested == "" {
		return true
	}

	declared := scopeTokens(client.Scope)
	for _, tok := range scopeTokens(requested) {
		if !containsToken(declared, tok) {
			return false
		}
	}
	return true
}

// MergeScopes computes the scope actually granted to a token. The subject
// scope is what the authenticated subject is allowed; it is intersected
// with the request scope when one was supplied, otherwise with the
// client's declared scope. An empty subject scope imposes no restriction,
// and a wildcard on either side yields the other side verbatim. Token
// order follows the subject scope operand.
func MergeScopes(subjectScope, requestScope, clientScope string) string {
	operand := requestScope
	if operand == "" {
		operand = clientScope
	}
	if subjectScope == "" {
		return operand
	}
	return intersectScopes(subjectScope, operand)
}

// intersectScopes returns the tokens present in both operands, preserving
// the left operand's order. A wildcard operand yields the other side.
func intersectScopes(left, right string) string {
	if left == WildcardScope {
		return right
	}
	if right == WildcardScope {
		return left
	}

	rightTokens := scopeTokens(right)
	var out []string
	for _, tok := range scopeTokens(left) {
		if containsToken(rightTokens, tok) {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

// ScopeSatisfies reports whether a token's granted scope covers the
// required scope. A wildcard grant covers everything; an empty
// requirement is always satisfied.
func ScopeSatisfies(granted, required string) bool {
	if required == "" || granted == WildcardScope {
		return true
	}

	grantedTokens := scopeTokens(granted)
	for _, tok := range scopeTokens(required) {
		if !containsToken(grantedTokens, tok) {
			return false
		}
	}
	return true
}

// scopeOverlap returns the first requested token already present in the
// previous scope, or "" when the two are disjoint. Refresh grants reject
// any overlap rather than deduplicating.
func scopeOverlap(previous, requested string) string {
	prevTokens := scopeTokens(previous)
	for _, tok := range scopeTokens(requested) {
		if containsToken(prevTokens, tok) {
			return tok
		}
	}
	return ""
}

// appendScope appends the requested tokens to the previous scope string.
// Callers must have already established the two are disjoint.
func appendScope(previous, requested string) string {
	if requested == "" {
		return previous
	}
	if previous == "" {
		return requested
	}
	return previous + " " + requested
}

func scopeTokens(scope string) []string {
	return strings.Fields(scope)
}

func containsToken(tokens []string, tok string) bool {
	for _, t := range tokens {
		if t == tok {
			return true
		}
	}
	return false
}
