package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/storage"
)

// ClientRegistration carries the caller-supplied fields of a client
// record. Type and Grants are never part of it: they are derived.
type ClientRegistration struct {
	// Name is the human-readable application name.
	Name string

	// Profile is one of the storage.Profile* constants and determines
	// the client type.
	Profile string

	// Internal marks a first-party client. Internal clients get longer
	// token lifetimes, the password grant, and may hold the wildcard
	// scope.
	Internal bool

	// Scope is the declared scope. Empty defaults to the wildcard for
	// internal clients.
	Scope string

	// Domain is the client's origin, embedded as the azp claim.
	Domain string

	// RedirectURIs lists the redirect URIs to register.
	RedirectURIs []string

	// IPAddress is recorded for auditing and registration rate limiting.
	IPAddress string
}

// RegisteredClient is the outcome of a successful registration. Secret is
// the plaintext client secret, returned exactly once; only its bcrypt
// hash is stored. Empty for public clients.
type RegisteredClient struct {
	Client *storage.Client
	Secret string
}

// RegisterClient creates a new OAuth client. The client type follows
// from the profile (web applications are confidential, everything else
// public) and the allowed grants follow from type and trust tier; callers
// cannot override either.
func (s *Server) RegisterClient(ctx context.Context, reg *ClientRegistration) (*RegisteredClient, error) {
	if reg == nil {
		return nil, ErrInvalidRequest("client registration is required")
	}

	if s.registrationLimiter != nil && reg.IPAddress != "" {
		if !s.registrationLimiter.Allow(reg.IPAddress) {
			s.auditor.LogRateLimitExceeded(reg.IPAddress, "")
			return nil, ErrTemporarilyUnavailable("too many client registrations from this address")
		}
	}

	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	scope := reg.Scope
	if scope == "" && reg.Internal {
		scope = WildcardScope
	}

	now := time.Now()
	client := &storage.Client{
		ID:           newRecordID(),
		ClientID:     newRecordID(),
		Name:         reg.Name,
		Internal:     reg.Internal,
		Profile:      reg.Profile,
		Type:         DeriveClientType(reg.Profile),
		Scope:        scope,
		Domain:       reg.Domain,
		RedirectURIs: reg.RedirectURIs,
		CreatedAt:    now,
	}
	client.Grants = DeriveAllowedGrants(client.Type, client.Internal)

	var secret string
	if client.Confidential() {
		secret = generateRandomToken()
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("Failed to hash client secret", "error", err)
			return nil, ErrServerError("failed to register client")
		}
		client.SecretHash = string(hash)
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		s.logger.Error("Failed to save client", "error", err, "client_name", reg.Name)
		return nil, ErrServerError("failed to register client")
	}

	s.logger.Info("Registered OAuth client",
		"client_id", client.ClientID,
		"type", client.Type,
		"internal", client.Internal)
	s.auditor.LogClientRegistered(client.ClientID, client.Type, reg.IPAddress)

	return &RegisteredClient{Client: client, Secret: secret}, nil
}

// UpdateClient edits a client's caller-supplied fields and re-runs the
// derivation, so a profile or trust tier change updates the type and
// allowed grants consistently. The secret is never changed here.
func (s *Server) UpdateClient(ctx context.Context, clientID string, reg *ClientRegistration) (*storage.Client, error) {
	if reg == nil {
		return nil, ErrInvalidRequest("client registration is required")
	}

	client, err := s.clientStore.FindClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidClient("unknown client")
		}
		s.logger.Error("Failed to load client", "error", err, "client_id", clientID)
		return nil, ErrServerError("failed to update client")
	}
	if client.Revoked() {
		return nil, ErrInvalidClient("client has been revoked")
	}

	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	scope := reg.Scope
	if scope == "" && reg.Internal {
		scope = WildcardScope
	}

	client.Name = reg.Name
	client.Profile = reg.Profile
	client.Internal = reg.Internal
	client.Scope = scope
	client.Domain = reg.Domain
	client.RedirectURIs = reg.RedirectURIs
	client.Type = DeriveClientType(reg.Profile)
	client.Grants = DeriveAllowedGrants(client.Type, client.Internal)

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		s.logger.Error("Failed to save client", "error", err, "client_id", clientID)
		return nil, ErrServerError("failed to update client")
	}

	return client, nil
}

// RevokeClient soft-revokes a client. Every subsequent grant for it fails
// with invalid_client; issued tokens keep their own lifecycle.
func (s *Server) RevokeClient(ctx context.Context, clientID string) error {
	client, err := s.clientStore.FindClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidClient("unknown client")
		}
		s.logger.Error("Failed to load client", "error", err, "client_id", clientID)
		return ErrServerError("failed to revoke client")
	}
	if client.Revoked() {
		return nil
	}

	if err := s.clientStore.RevokeClient(ctx, clientID, time.Now()); err != nil {
		s.logger.Error("Failed to revoke client", "error", err, "client_id", clientID)
		return ErrServerError("failed to revoke client")
	}

	s.logger.Info("Revoked OAuth client", "client_id", clientID)
	s.auditor.LogEvent(security.Event{
		Type:     security.EventClientRevoked,
		ClientID: clientID,
	})
	return nil
}

// validateRegistration checks the caller-supplied registration fields.
func validateRegistration(reg *ClientRegistration) error {
	if reg.Name == "" {
		return ErrInvalidRequest("client name is required")
	}

	switch reg.Profile {
	case storage.ProfileWeb, storage.ProfileUserAgentBase, storage.ProfileNative:
	default:
		return ErrInvalidRequest(fmt.Sprintf("unknown client profile: %q", reg.Profile))
	}

	if reg.Scope != "" {
		if err := validateScopeSyntax(reg.Scope); err != nil {
			return ErrInvalidScope(err.Error())
		}
		if !reg.Internal {
			for _, tok := range scopeTokens(reg.Scope) {
				if tok == WildcardScope {
					return ErrInvalidScope("wildcard scope is reserved for internal clients")
				}
			}
		}
	}

	for _, uri := range reg.RedirectURIs {
		if err := validateRedirectURISecurity(uri, ""); err != nil {
			return ErrInvalidRequest(err.Error())
		}
	}

	return nil
}
