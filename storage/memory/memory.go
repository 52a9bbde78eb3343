// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and
// single-instance deployments.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakward/oauth-core/storage"
)

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients     map[string]*storage.Client // keyed by public client_id
	clientsByID map[string]string          // record ID -> client_id

	scopes map[string]*storage.Scope // keyed by name

	codes           map[string]*storage.AuthorizationCode // keyed by record ID
	codesByValue    map[codeKey]string                    // (client_id, code value) -> record ID
	codesByCallback map[string]string                     // callback token -> record ID
	accessTokens    map[string]*storage.AccessToken       // keyed by record ID (jti)
	refreshTokens   map[string]*storage.RefreshToken      // keyed by record ID (jti)

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

type codeKey struct {
	clientID string
	code     string
}

// Compile-time interface checks
var (
	_ storage.ClientStore   = (*Store)(nil)
	_ storage.ScopeStore    = (*Store)(nil)
	_ storage.AuthCodeStore = (*Store)(nil)
	_ storage.TokenStore    = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store whose janitor sweeps
// expired records every cleanupInterval. A non-positive interval
// disables the janitor.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	s := &Store{
		clients:         make(map[string]*storage.Client),
		clientsByID:     make(map[string]string),
		scopes:          make(map[string]*storage.Scope),
		codes:           make(map[string]*storage.AuthorizationCode),
		codesByValue:    make(map[codeKey]string),
		codesByCallback: make(map[string]string),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// SetLogger sets the logger used by the janitor.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than
// once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// --- ClientStore ---

// FindClientByID retrieves a client by its internal record ID.
func (s *Store) FindClientByID(ctx context.Context, id string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clientID, ok := s.clientsByID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneClient(s.clients[clientID]), nil
}

// FindClientByClientID retrieves a client by its public client_id.
func (s *Store) FindClientByClientID(ctx context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneClient(client), nil
}

// SaveClient creates or replaces a client record.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ClientID] = cloneClient(client)
	s.clientsByID[client.ID] = client.ClientID
	return nil
}

// RevokeClient sets the client's revocation timestamp. Idempotent: an
// already-revoked client keeps its original timestamp.
func (s *Store) RevokeClient(ctx context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return storage.ErrNotFound
	}
	if client.RevokedAt == nil {
		client.RevokedAt = &at
	}
	return nil
}

// ValidateClientSecret checks a plaintext secret against the stored
// bcrypt hash. The error is the same for an unknown client, a public
// client, and a bad secret, so callers cannot distinguish them.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, secret string) error {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	var hash string
	if ok {
		hash = client.SecretHash
	}
	s.mu.RUnlock()

	if hash == "" {
		// Burn comparable time so unknown clients are not detectable by
		// response latency.
		_ = bcrypt.CompareHashAndPassword(timingDummyHash, []byte(secret))
		return storage.ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
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

// --- ScopeStore ---

// FindScopesByNames returns the scopes matching the given names. Missing
// names are absent from the result.
func (s *Store) FindScopesByNames(ctx context.Context, names []string) ([]*storage.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Scope
	for _, name := range names {
		if scope, ok := s.scopes[name]; ok {
			clone := *scope
			out = append(out, &clone)
		}
	}
	return out, nil
}

// SaveScope creates or replaces a scope.
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *scope
	s.scopes[scope.Name] = &clone
	return nil
}

// --- AuthCodeStore ---

// CreateAuthorizationCode persists a new pending authorization.
func (s *Store) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertCodeLocked(cloneCode(code))
	return nil
}

// insertCodeLocked stores a code record and its lookup indexes.
// Must be called with the mutex held.
func (s *Store) insertCodeLocked(code *storage.AuthorizationCode) {
	s.codes[code.ID] = code
	if code.Code != "" {
		s.codesByValue[codeKey{code.ClientID, code.Code}] = code.ID
	}
	if code.CallbackToken != "" {
		s.codesByCallback[code.CallbackToken] = code.ID
	}
}

// deleteCodeLocked removes a code record and its lookup indexes.
// Must be called with the mutex held.
func (s *Store) deleteCodeLocked(code *storage.AuthorizationCode) {
	delete(s.codes, code.ID)
	if code.Code != "" {
		delete(s.codesByValue, codeKey{code.ClientID, code.Code})
	}
	if code.CallbackToken != "" {
		delete(s.codesByCallback, code.CallbackToken)
	}
}

// FindAuthorizationCode retrieves a code by owning client and code value.
func (s *Store) FindAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codesByValue[codeKey{clientID, code}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCode(s.codes[id]), nil
}

// FindAuthorizationCodeByID retrieves a code by record ID.
func (s *Store) FindAuthorizationCodeByID(ctx context.Context, id string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code, ok := s.codes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCode(code), nil
}

// FindAuthorizationCodeByCallbackToken retrieves a pending authorization
// by its strategy correlation token.
func (s *Store) FindAuthorizationCodeByCallbackToken(ctx context.Context, token string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codesByCallback[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCode(s.codes[id]), nil
}

// UpdateAuthorizationCode replaces an existing record and refreshes its
// indexes (the code value is set after creation, on authentication).
func (s *Store) UpdateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.codes[code.ID]
	if !ok {
		return storage.ErrNotFound
	}

	s.deleteCodeLocked(existing)
	s.insertCodeLocked(cloneCode(code))
	return nil
}

// ConsumeAuthorizationCode atomically redeems a code: the lookup and the
// consumed-marking happen inside one critical section, so exactly one
// concurrent caller wins.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.codesByValue[codeKey{clientID, code}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	record := s.codes[id]

	if record.Revoked() {
		return nil, storage.ErrAlreadyConsumed
	}
	if record.Expired(now) {
		return nil, storage.ErrExpired
	}

	record.RevokedAt = &now
	return cloneCode(record), nil
}

// RevokeAuthorizationCode sets the revocation timestamp. Idempotent.
func (s *Store) RevokeAuthorizationCode(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[id]
	if !ok {
		return storage.ErrNotFound
	}
	if code.RevokedAt == nil {
		code.RevokedAt = &at
	}
	return nil
}

// PurgeAuthorizationCodes deletes records matching the target.
func (s *Store) PurgeAuthorizationCodes(ctx context.Context, target storage.PurgeTarget) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, code := range s.codes {
		if purgeMatches(target, code.RevokedAt, code.ExpiresAt, now) {
			s.deleteCodeLocked(code)
			removed++
		}
	}
	return removed, nil
}

// --- TokenStore ---

// CreateAccessToken persists a new access token record.
func (s *Store) CreateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.accessTokens[token.ID] = &clone
	return nil
}

// FindAccessTokenByID retrieves an access token record by ID.
func (s *Store) FindAccessTokenByID(ctx context.Context, id string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.accessTokens[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

// RevokeAccessToken sets the revocation timestamp. Idempotent.
func (s *Store) RevokeAccessToken(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.accessTokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	if token.RevokedAt == nil {
		token.RevokedAt = &at
	}
	return nil
}

// CreateRefreshToken persists a new refresh token record.
func (s *Store) CreateRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.refreshTokens[token.ID] = &clone
	return nil
}

// FindRefreshTokenByID retrieves a refresh token record by ID.
func (s *Store) FindRefreshTokenByID(ctx context.Context, id string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.refreshTokens[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

// RevokeRefreshToken sets the revocation timestamp. Idempotent.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshTokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	if token.RevokedAt == nil {
		token.RevokedAt = &at
	}
	return nil
}

// ConsumeRefreshToken atomically revokes an unrevoked refresh token and
// returns it. The check and the revocation share one critical section,
// so two concurrent redemptions can never both succeed.
func (s *Store) ConsumeRefreshToken(ctx context.Context, id string, at time.Time) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshTokens[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if token.Revoked() {
		return nil, storage.ErrAlreadyConsumed
	}

	token.RevokedAt = &at
	clone := *token
	return &clone, nil
}

// PurgeAccessTokens deletes access token records matching the target.
func (s *Store) PurgeAccessTokens(ctx context.Context, target storage.PurgeTarget) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, token := range s.accessTokens {
		if purgeMatches(target, token.RevokedAt, token.ExpiresAt, now) {
			delete(s.accessTokens, id)
			removed++
		}
	}
	return removed, nil
}

// PurgeRefreshTokens deletes refresh token records matching the target.
func (s *Store) PurgeRefreshTokens(ctx context.Context, target storage.PurgeTarget) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, token := range s.refreshTokens {
		if purgeMatches(target, token.RevokedAt, token.ExpiresAt, now) {
			delete(s.refreshTokens, id)
			removed++
		}
	}
	return removed, nil
}

// purgeMatches reports whether a record falls under the purge target.
// Expired means the expiry is at or before now.
func purgeMatches(target storage.PurgeTarget, revokedAt *time.Time, expiresAt, now time.Time) bool {
	revoked := revokedAt != nil
	expired := !expiresAt.After(now)

	switch target {
	case storage.PurgeRevoked:
		return revoked
	case storage.PurgeExpired:
		return expired
	case storage.PurgeAll:
		return revoked || expired
	}
	return false
}

// --- janitor ---

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops expired records. Revoked-but-unexpired records are kept
// for the maintenance purge, which reports counts.
func (s *Store) cleanup() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, code := range s.codes {
		if code.Expired(now) {
			s.deleteCodeLocked(code)
			removed++
		}
	}
	for id, token := range s.accessTokens {
		if token.Expired(now) {
			delete(s.accessTokens, id)
			removed++
		}
	}
	for id, token := range s.refreshTokens {
		if token.Expired(now) {
			delete(s.refreshTokens, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Memory store cleanup completed", "removed", removed)
	}
}

// --- clone helpers ---

func cloneClient(c *storage.Client) *storage.Client {
	clone := *c
	clone.Grants = append([]string(nil), c.Grants...)
	clone.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	if c.RevokedAt != nil {
		at := *c.RevokedAt
		clone.RevokedAt = &at
	}
	return &clone
}

func cloneCode(c *storage.AuthorizationCode) *storage.AuthorizationCode {
	clone := *c
	if c.RevokedAt != nil {
		at := *c.RevokedAt
		clone.RevokedAt = &at
	}
	return &clone
}
