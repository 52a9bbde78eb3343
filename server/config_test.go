package server

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestApplySecureDefaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := applySecureDefaults(&Config{}, logger)

	if config.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", config.TokenType)
	}
	if config.AuthorizationCodeTTL != 5*time.Minute {
		t.Errorf("AuthorizationCodeTTL = %v, want 5m", config.AuthorizationCodeTTL)
	}
	if config.ClockSkewGracePeriod != 5*time.Second {
		t.Errorf("ClockSkewGracePeriod = %v, want 5s", config.ClockSkewGracePeriod)
	}
	if config.TrustedProxyCount != 1 {
		t.Errorf("TrustedProxyCount = %d, want 1", config.TrustedProxyCount)
	}
	if config.MaxClientsPerIP != 10 {
		t.Errorf("MaxClientsPerIP = %d, want 10", config.MaxClientsPerIP)
	}

	accessWant := ExpiryTable{
		ConfidentialInternal: 24 * time.Hour,
		ConfidentialExternal: 12 * time.Hour,
		PublicInternal:       2 * time.Hour,
		PublicExternal:       1 * time.Hour,
	}
	if config.AccessTokenTTL != accessWant {
		t.Errorf("AccessTokenTTL = %+v, want %+v", config.AccessTokenTTL, accessWant)
	}

	refreshWant := ExpiryTable{
		ConfidentialInternal: 365 * 24 * time.Hour,
		ConfidentialExternal: 30 * 24 * time.Hour,
		PublicInternal:       30 * 24 * time.Hour,
		PublicExternal:       7 * 24 * time.Hour,
	}
	if config.RefreshTokenTTL != refreshWant {
		t.Errorf("RefreshTokenTTL = %+v, want %+v", config.RefreshTokenTTL, refreshWant)
	}
}

func TestApplySecureDefaultsKeepsOverrides(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := applySecureDefaults(&Config{
		TokenType:            "DPoP",
		AuthorizationCodeTTL: time.Minute,
		AccessTokenTTL:       ExpiryTable{ConfidentialInternal: time.Hour},
	}, logger)

	if config.TokenType != "DPoP" {
		t.Errorf("TokenType = %q, want DPoP", config.TokenType)
	}
	if config.AuthorizationCodeTTL != time.Minute {
		t.Errorf("AuthorizationCodeTTL = %v, want 1m", config.AuthorizationCodeTTL)
	}
	if config.AccessTokenTTL.ConfidentialInternal != time.Hour {
		t.Errorf("ConfidentialInternal = %v, want 1h", config.AccessTokenTTL.ConfidentialInternal)
	}
	// Untouched cells still get their defaults.
	if config.AccessTokenTTL.PublicExternal != time.Hour {
		t.Errorf("PublicExternal = %v, want 1h", config.AccessTokenTTL.PublicExternal)
	}
}
