package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/oakward/oauth-core/internal/util"
	"github.com/oakward/oauth-core/storage"
)

// PKCE code challenge methods per RFC 7636.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// validatePKCE validates the PKCE code verifier against the challenge per RFC 7636
func (s *Server) validatePKCE(challenge, method, verifier string) error {
	if challenge == "" {
		// No PKCE bound to this authorization
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	// No length gate at redemption: a verifier that matches the stored
	// challenge redeems regardless of how it was generated. RFC 7636's
	// 43-128 rule binds the client creating the verifier, not the server
	// checking it.
	for _, ch := range verifier {
		// RFC 7636: code_verifier alphabet is [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') &&
			ch != '-' && ch != '.' && ch != '_' && ch != '~' {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computedChallenge string

	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])

	case PKCEMethodPlain:
		if !s.config.AllowPKCEPlain {
			return fmt.Errorf("'plain' code_challenge_method is not allowed (configure AllowPKCEPlain=true if needed for legacy clients)")
		}
		computedChallenge = verifier
		s.logger.Warn("Using insecure 'plain' PKCE method",
			"recommendation", "Upgrade client to use S256")

	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(computedChallenge), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// validateChallengeMethod checks the code_challenge_method of an incoming
// authorization request before a code is created.
func (s *Server) validateChallengeMethod(method string) error {
	switch method {
	case PKCEMethodS256:
		return nil
	case PKCEMethodPlain:
		if !s.config.AllowPKCEPlain {
			return fmt.Errorf("'plain' code_challenge_method is not allowed")
		}
		return nil
	case "":
		return fmt.Errorf("code_challenge_method is required when code_challenge is provided")
	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}
}

// validateRedirectURI checks that a redirect URI is registered for the
// client and passes security validation.
func (s *Server) validateRedirectURI(client *storage.Client, redirectURI string) error {
	found := false
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("redirect URI not registered for client")
	}

	return validateRedirectURISecurity(redirectURI, s.config.Issuer)
}

// validateRedirectURISecurity performs security validation on redirect
// URIs per OAuth 2.0 Security Best Current Practice.
func validateRedirectURISecurity(redirectURI, serverIssuer string) error {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %w", err)
	}

	if !parsed.IsAbs() {
		return fmt.Errorf("redirect_uri must be an absolute URL")
	}

	// OAuth 2.0 Security BCP Section 4.1.3: redirect_uri MUST NOT contain fragments
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain fragments (security risk)")
	}

	scheme := strings.ToLower(parsed.Scheme)

	// Reject schemes that could lead to XSS or local file access
	dangerousSchemes := []string{"javascript", "data", "file", "vbscript", "about"}
	for _, dangerous := range dangerousSchemes {
		if scheme == dangerous {
			return fmt.Errorf("redirect_uri scheme '%s' is not allowed (security risk)", scheme)
		}
	}

	if scheme == "http" {
		// Loopback redirects stay allowed for development and native
		// apps per RFC 8252; anything else requires HTTPS when the
		// server itself runs on HTTPS.
		if !util.IsLoopbackHostname(strings.ToLower(parsed.Hostname())) {
			if serverParsed, err := url.Parse(serverIssuer); err == nil && serverParsed.Scheme == "https" {
				return fmt.Errorf("redirect_uri must use HTTPS in production (got %s://)", scheme)
			}
		}
	}
	// Custom schemes (myapp://, etc.) are allowed for native/mobile apps

	return nil
}

// validateResponseType checks the response_type of an authorization
// request.
func validateResponseType(responseType string) error {
	switch responseType {
	case storage.ResponseTypeCode, storage.ResponseTypeToken:
		return nil
	case "":
		return fmt.Errorf("response_type is required")
	default:
		return fmt.Errorf("unsupported response_type: %s", responseType)
	}
}

// validateScopeSyntax rejects scope strings with characters outside the
// RFC 6749 scope-token alphabet.
func validateScopeSyntax(scope string) error {
	for _, tok := range scopeTokens(scope) {
		if tok == WildcardScope {
			continue
		}
		for _, ch := range tok {
			// RFC 6749 Appendix A.4: %x21 / %x23-5B / %x5D-7E
			if ch < 0x21 || ch > 0x7e || ch == '"' || ch == '\\' {
				return fmt.Errorf("scope token %q contains invalid characters", tok)
			}
		}
	}
	return nil
}
