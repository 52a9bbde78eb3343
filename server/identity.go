package server

import "context"

// Identity is the result of authenticating a resource owner, either
// through local credentials or a federated strategy.
type Identity struct {
	// Subject is the resource owner's identifier.
	Subject string

	// Scope is the scope the subject is allowed, space-delimited.
	// Empty means the subject carries no scope restriction of its own.
	Scope string

	// Extra carries application-specific data attached by the
	// authenticator. The server passes it through untouched.
	Extra map[string]any
}

// CredentialAuthenticator validates resource-owner credentials for the
// password grant and the login dialog. A nil Identity with a nil error
// means the credentials were wrong; errors are reserved for
// infrastructure failures.
type CredentialAuthenticator func(ctx context.Context, username, password string) (*Identity, error)

// ClaimsLookup resolves OpenID-style claims for a subject. Returning nil
// omits the claims without failing the flow.
type ClaimsLookup func(ctx context.Context, subject string) (map[string]any, error)

// SubjectLookup resolves an application-defined profile for a subject
// after token validation. The result is attached to the request context
// by the resource-server guard.
type SubjectLookup func(ctx context.Context, subject string) (any, error)
