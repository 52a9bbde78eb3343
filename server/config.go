package server

import (
	"log/slog"
	"time"
)

// ExpiryTable holds token lifetimes keyed by the client's trust tier:
// (confidential|public) x (internal|external). The four cells are
// independent so operators can tune each tier separately.
type ExpiryTable struct {
	ConfidentialInternal time.Duration
	ConfidentialExternal time.Duration
	PublicInternal       time.Duration
	PublicExternal       time.Duration
}

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). Embedded as
	// the iss claim of every signed token.
	Issuer string

	// TokenType is the token_type returned in token responses.
	// Default: "Bearer"
	TokenType string

	// AuthorizationCodeTTL is how long authorization codes are valid
	// Default: 5 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the access token lifetime per trust tier.
	// Defaults: confidential-internal 24h, confidential-external 12h,
	// public-internal 2h, public-external 1h
	AccessTokenTTL ExpiryTable

	// RefreshTokenTTL is the refresh token lifetime per trust tier.
	// Defaults: confidential-internal 8760h (1 year),
	// confidential-external 720h (30 days), public-internal 720h,
	// public-external 168h (7 days)
	RefreshTokenTTL ExpiryTable

	// RequirePKCE makes code_challenge mandatory on every authorization
	// request. PKCE is always verified when a challenge was stored; this
	// only controls whether codes may be created without one.
	// Default: false
	RequirePKCE bool

	// AllowPKCEPlain allows the 'plain' code_challenge_method.
	// WARNING: 'plain' offers much weaker protection than S256; every
	// use is logged. Disable to accept S256 only.
	// Default: true
	AllowPKCEPlain bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses direct connection IP (secure by default)
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Default: 1
	TrustedProxyCount int

	// ClockSkewGracePeriod is the grace period applied to expiry checks
	// to absorb time drift between servers.
	// Default: 5 seconds
	ClockSkewGracePeriod time.Duration

	// MaxClientsPerIP limits client registrations per IP address per
	// hour. New builds a registration limiter from it; installing one
	// via SetRegistrationLimiter overrides it.
	// Default: 10
	MaxClientsPerIP int
}

// applySecureDefaults applies secure-by-default configuration values
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.TokenType == "" {
		config.TokenType = "Bearer"
	}
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 5 * time.Minute
	}

	if config.AccessTokenTTL.ConfidentialInternal == 0 {
		config.AccessTokenTTL.ConfidentialInternal = 24 * time.Hour
	}
	if config.AccessTokenTTL.ConfidentialExternal == 0 {
		config.AccessTokenTTL.ConfidentialExternal = 12 * time.Hour
	}
	if config.AccessTokenTTL.PublicInternal == 0 {
		config.AccessTokenTTL.PublicInternal = 2 * time.Hour
	}
	if config.AccessTokenTTL.PublicExternal == 0 {
		config.AccessTokenTTL.PublicExternal = 1 * time.Hour
	}

	if config.RefreshTokenTTL.ConfidentialInternal == 0 {
		config.RefreshTokenTTL.ConfidentialInternal = 365 * 24 * time.Hour
	}
	if config.RefreshTokenTTL.ConfidentialExternal == 0 {
		config.RefreshTokenTTL.ConfidentialExternal = 30 * 24 * time.Hour
	}
	if config.RefreshTokenTTL.PublicInternal == 0 {
		config.RefreshTokenTTL.PublicInternal = 30 * 24 * time.Hour
	}
	if config.RefreshTokenTTL.PublicExternal == 0 {
		config.RefreshTokenTTL.PublicExternal = 7 * 24 * time.Hour
	}

	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = 5 * time.Second
	}
	if config.MaxClientsPerIP == 0 {
		config.MaxClientsPerIP = 10
	}
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.AllowPKCEPlain {
		logger.Debug("Plain PKCE method is allowed",
			"recommendation", "Set AllowPKCEPlain=false to require S256",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc7636#section-4.2")
	}
	if config.TrustProxy {
		logger.Warn("⚠️  SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
	if !config.RequirePKCE {
		logger.Debug("PKCE is optional for authorization requests",
			"recommendation", "Set RequirePKCE=true to enforce it for all clients")
	}
}
