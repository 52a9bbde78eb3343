package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakward/oauth-core/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

// clientJSON is the JSON representation of an OAuth client
type clientJSON struct {
	ID           string   `json:"id"`
	ClientID     string   `json:"client_id"`
	Name         string   `json:"name"`
	SecretHash   string   `json:"secret_hash,omitempty"`
	Internal     bool     `json:"internal,omitempty"`
	Profile      string   `json:"profile"`
	Type         string   `json:"type"`
	Grants       []string `json:"grants,omitempty"`
	Scope        string   `json:"scope,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	RevokedAt    int64    `json:"revoked_at,omitempty"`
}

func toClientJSON(client *storage.Client) *clientJSON {
	return &clientJSON{
		ID:           client.ID,
		ClientID:     client.ClientID,
		Name:         client.Name,
		SecretHash:   client.SecretHash,
		Internal:     client.Internal,
		Profile:      client.Profile,
		Type:         client.Type,
		Grants:       client.Grants,
		Scope:        client.Scope,
		Domain:       client.Domain,
		RedirectURIs: client.RedirectURIs,
		CreatedAt:    client.CreatedAt.Unix(),
		RevokedAt:    unixOrNil(client.RevokedAt),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	if j == nil {
		return nil
	}
	return &storage.Client{
		ID:           j.ID,
		ClientID:     j.ClientID,
		Name:         j.Name,
		SecretHash:   j.SecretHash,
		Internal:     j.Internal,
		Profile:      j.Profile,
		Type:         j.Type,
		Grants:       j.Grants,
		Scope:        j.Scope,
		Domain:       j.Domain,
		RedirectURIs: j.RedirectURIs,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
		RevokedAt:    timeOrNil(j.RevokedAt),
	}
}

// SaveClient creates or replaces a client record. Client records carry no
// TTL: they are never hard-deleted while issued tokens reference them.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	if err := s.setJSON(ctx, s.clientKey(client.ClientID), toClientJSON(client), 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	// Record-ID index for FindClientByID
	if client.ID != "" {
		if err := s.client.Do(ctx,
			s.client.B().Set().Key(s.clientRecordKey(client.ID)).Value(client.ClientID).Build(),
		).Error(); err != nil {
			return fmt.Errorf("failed to save client record index: %w", err)
		}
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// FindClientByClientID retrieves a client by its public client_id.
func (s *Store) FindClientByClientID(ctx context.Context, clientID string) (*storage.Client, error) {
	return getAndUnmarshal(ctx, s, s.clientKey(clientID), fromClientJSON)
}

// FindClientByID retrieves a client by its internal record ID.
func (s *Store) FindClientByID(ctx context.Context, id string) (*storage.Client, error) {
	clientID, err := s.client.Do(ctx, s.client.B().Get().Key(s.clientRecordKey(id)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client record index: %w", err)
	}
	return s.FindClientByClientID(ctx, clientID)
}

// RevokeClient sets the client's revocation timestamp. Idempotent: an
// already-revoked client keeps its original timestamp.
func (s *Store) RevokeClient(ctx context.Context, clientID string, at time.Time) error {
	client, err := s.FindClientByClientID(ctx, clientID)
	if err != nil {
		return err
	}

	if client.RevokedAt != nil {
		return nil
	}
	client.RevokedAt = &at

	if err := s.setJSON(ctx, s.clientKey(clientID), toClientJSON(client), 0); err != nil {
		return fmt.Errorf("failed to revoke client: %w", err)
	}

	s.logger.Debug("Revoked client", "client_id", clientID)
	return nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
//
// SECURITY: Always performs a bcrypt comparison, even when the client does
// not exist or has no stored hash, so response latency does not reveal
// whether a client_id is registered. The error is the same for an unknown
// client, a public client, and a bad secret.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, secret string) error {
	client, err := s.FindClientByClientID(ctx, clientID)

	hashToCompare := timingDummyHash
	known := err == nil && client.SecretHash != ""
	if known {
		hashToCompare = []byte(client.SecretHash)
	}

	bcryptErr := bcrypt.CompareHashAndPassword(hashToCompare, []byte(secret))

	if !known || bcryptErr != nil {
		return storage.ErrNotFound
	}
	return nil
}

// timingDummyHash is a bcrypt hash of an unguessable throwaway value,
// compared against when the client has no stored hash.
var timingDummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("timing-equalization-dummy"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// ============================================================
// ScopeStore Implementation
// ============================================================

// scopeJSON is the JSON representation of a scope
type scopeJSON struct {
	Name        string `json:"name"`
	Parent      string `json:"parent,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func toScopeJSON(scope *storage.Scope) *scopeJSON {
	return &scopeJSON{
		Name:        scope.Name,
		Parent:      scope.Parent,
		Description: scope.Description,
		CreatedAt:   scope.CreatedAt.Unix(),
	}
}

func fromScopeJSON(j *scopeJSON) *storage.Scope {
	if j == nil {
		return nil
	}
	return &storage.Scope{
		Name:        j.Name,
		Parent:      j.Parent,
		Description: j.Description,
		CreatedAt:   time.Unix(j.CreatedAt, 0),
	}
}

// SaveScope creates or replaces a scope.
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) error {
	if scope == nil || scope.Name == "" {
		return fmt.Errorf("invalid scope")
	}

	if err := s.setJSON(ctx, s.scopeKey(scope.Name), toScopeJSON(scope), 0); err != nil {
		return fmt.Errorf("failed to save scope: %w", err)
	}
	return nil
}

// FindScopesByNames returns the scopes matching the given names. Missing
// names are absent from the result.
func (s *Store) FindScopesByNames(ctx context.Context, names []string) ([]*storage.Scope, error) {
	var out []*storage.Scope
	for _, name := range names {
		scope, err := getAndUnmarshal(ctx, s, s.scopeKey(name), fromScopeJSON)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, scope)
	}
	return out, nil
}
