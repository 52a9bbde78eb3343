package server

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/storage"
	"github.com/oakward/oauth-core/strategy"
	"github.com/oakward/oauth-core/token"
)

// Server implements the OAuth 2.0 grant-processing and token-lifecycle
// engine. It validates client, scope, credential, and code constraints
// per RFC 6749 (and PKCE per RFC 7636) and produces signed, revocable
// tokens with expiry conditioned on the client's trust tier.
//
// A Server holds no request state of its own: concurrency correctness is
// delegated to the stores' atomicity guarantees.
type Server struct {
	codec       *token.Codec
	clientStore storage.ClientStore
	scopeStore  storage.ScopeStore
	codeStore   storage.AuthCodeStore
	tokenStore  storage.TokenStore

	authenticator CredentialAuthenticator
	claimsLookup  ClaimsLookup
	subjectLookup SubjectLookup
	strategies    map[string]strategy.Strategy

	auditor             *security.Auditor
	rateLimiter         *security.RateLimiter
	registrationLimiter *security.RegistrationLimiter
	ownsRegLimiter      bool
	logger              *slog.Logger
	config              *Config
}

// New creates a new OAuth server. The scope store may be nil, in which
// case scope existence validation is skipped.
func New(
	codec *token.Codec,
	clientStore storage.ClientStore,
	scopeStore storage.ScopeStore,
	codeStore storage.AuthCodeStore,
	tokenStore storage.TokenStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if codeStore == nil {
		return nil, fmt.Errorf("authorization code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	s := &Server{
		codec:       codec,
		clientStore: clientStore,
		scopeStore:  scopeStore,
		codeStore:   codeStore,
		tokenStore:  tokenStore,
		strategies:  make(map[string]strategy.Strategy),
		config:      config,
		logger:      logger,
	}

	// Default per-IP registration limit from config. Replaced wholesale
	// when the embedder installs a limiter of their own.
	if config.MaxClientsPerIP > 0 {
		s.registrationLimiter = security.NewRegistrationLimiter(
			config.MaxClientsPerIP, security.DefaultRegistrationWindow, logger)
		s.ownsRegLimiter = true
	}

	return s, nil
}

// Close releases resources the server created itself. Limiters installed
// by the embedder are the embedder's to stop.
func (s *Server) Close() {
	if s.ownsRegLimiter && s.registrationLimiter != nil {
		s.registrationLimiter.Stop()
		s.ownsRegLimiter = false
	}
}

// SetCredentialAuthenticator installs the callback that validates
// resource-owner credentials for the password grant and the login dialog.
func (s *Server) SetCredentialAuthenticator(fn CredentialAuthenticator) {
	s.authenticator = fn
}

// SetClaimsLookup installs the OpenID-style claims resolver.
func (s *Server) SetClaimsLookup(fn ClaimsLookup) {
	s.claimsLookup = fn
}

// SetSubjectLookup installs the subject profile resolver used by the
// resource-server guard.
func (s *Server) SetSubjectLookup(fn SubjectLookup) {
	s.subjectLookup = fn
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.auditor = aud
}

// SetRateLimiter sets the rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.rateLimiter = rl
}

// SetRegistrationLimiter sets the per-IP client registration limiter,
// replacing the default one built from Config.MaxClientsPerIP.
func (s *Server) SetRegistrationLimiter(rl *security.RegistrationLimiter) {
	if s.ownsRegLimiter && s.registrationLimiter != nil {
		s.registrationLimiter.Stop()
		s.ownsRegLimiter = false
	}
	s.registrationLimiter = rl
}

// RegisterStrategy registers a federated-identity strategy under its
// name. Registering a second strategy with the same name replaces the
// first.
func (s *Server) RegisterStrategy(st strategy.Strategy) error {
	if st == nil {
		return fmt.Errorf("strategy is required")
	}
	if st.Name() == "" {
		return fmt.Errorf("strategy name is required")
	}
	s.strategies[st.Name()] = st
	s.logger.Debug("Registered identity strategy", "strategy", st.Name(), "grant", st.Grant())
	return nil
}

// Strategy returns the registered strategy with the given name, or nil.
func (s *Server) Strategy(name string) strategy.Strategy {
	return s.strategies[name]
}

// Config returns the server's effective configuration (after defaults).
func (s *Server) Config() *Config {
	return s.config
}

// Codec returns the token codec used for signing and verification.
func (s *Server) Codec() *token.Codec {
	return s.codec
}

// SubjectLookup returns the installed subject profile resolver, if any.
func (s *Server) SubjectLookup() SubjectLookup {
	return s.subjectLookup
}

// CredentialAuthenticator returns the installed credential callback, if
// any.
func (s *Server) CredentialAuthenticator() CredentialAuthenticator {
	return s.authenticator
}

// ClaimsLookup returns the installed claims resolver, if any.
func (s *Server) ClaimsLookup() ClaimsLookup {
	return s.claimsLookup
}

// RateLimiter returns the installed request rate limiter, if any.
func (s *Server) RateLimiter() *security.RateLimiter {
	return s.rateLimiter
}

// Auditor returns the installed security auditor, if any.
func (s *Server) Auditor() *security.Auditor {
	return s.auditor
}

// generateRandomToken generates a cryptographically secure random token.
// Same construction as PKCE verifiers: 32 bytes of entropy, base64url.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// newRecordID generates a record identifier, used as the jti claim.
func newRecordID() string {
	return uuid.New().String()
}
