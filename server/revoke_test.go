package server

import (
	"context"
	"testing"
	"time"

	"github.com/oakward/oauth-core/internal/testutil"
	"github.com/oakward/oauth-core/token"
)

func TestRevoke_AccessToken(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	grant := env.passwordGrant(t, client, "")

	err := env.srv.Revoke(context.Background(), &RevocationRequest{
		Token:         grant.AccessToken,
		TokenTypeHint: TokenTypeHintAccessToken,
		ClientID:      client.ClientID,
		ClientSecret:  testutil.TestClientSecret,
	})
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// The revoked token no longer validates.
	_, err = env.srv.ValidateAccessToken(context.Background(), grant.AccessToken, "")
	oauthErr := wantOAuthError(t, err, ErrorCodeInvalidToken)
	if oauthErr.Description != "token has been revoked" {
		t.Errorf("description = %q", oauthErr.Description)
	}

	// Revoking again still succeeds per RFC 7009.
	err = env.srv.Revoke(context.Background(), &RevocationRequest{
		Token:        grant.AccessToken,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
	})
	if err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
}

func TestRevoke_RefreshTokenCascades(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	grant := env.passwordGrant(t, client, "")

	err := env.srv.Revoke(context.Background(), &RevocationRequest{
		Token:         grant.RefreshToken,
		TokenTypeHint: TokenTypeHintRefreshToken,
		ClientID:      client.ClientID,
		ClientSecret:  testutil.TestClientSecret,
	})
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// The paired access token is invalidated with it.
	_, err = env.srv.ValidateAccessToken(context.Background(), grant.AccessToken, "")
	wantOAuthError(t, err, ErrorCodeInvalidToken)

	// And the refresh token itself cannot be redeemed.
	_, err = env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantRefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		RefreshToken: grant.RefreshToken,
	})
	wantOAuthError(t, err, ErrorCodeInvalidGrant)
}

func TestRevoke_WrongHintStillFinds(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	grant := env.passwordGrant(t, client, "")

	// An access token presented with the refresh hint is still revoked.
	err := env.srv.Revoke(context.Background(), &RevocationRequest{
		Token:         grant.AccessToken,
		TokenTypeHint: TokenTypeHintRefreshToken,
		ClientID:      client.ClientID,
		ClientSecret:  testutil.TestClientSecret,
	})
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	_, err = env.srv.ValidateAccessToken(context.Background(), grant.AccessToken, "")
	wantOAuthError(t, err, ErrorCodeInvalidToken)
}

func TestRevoke_Failures(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	other := env.seed(t, internalConfidential("other-app"))
	grant := env.passwordGrant(t, client, "")

	t.Run("missing token", func(t *testing.T) {
		err := env.srv.Revoke(context.Background(), &RevocationRequest{
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
		})
		wantOAuthError(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("unknown hint", func(t *testing.T) {
		err := env.srv.Revoke(context.Background(), &RevocationRequest{
			Token:         grant.AccessToken,
			TokenTypeHint: "id_token",
			ClientID:      client.ClientID,
			ClientSecret:  testutil.TestClientSecret,
		})
		wantOAuthError(t, err, ErrorCodeUnsupportedTokenType)
	})

	t.Run("bad client authentication", func(t *testing.T) {
		err := env.srv.Revoke(context.Background(), &RevocationRequest{
			Token:        grant.AccessToken,
			ClientID:     client.ClientID,
			ClientSecret: "wrong",
		})
		wantOAuthError(t, err, ErrorCodeInvalidClient)
	})

	t.Run("different client", func(t *testing.T) {
		err := env.srv.Revoke(context.Background(), &RevocationRequest{
			Token:        grant.AccessToken,
			ClientID:     other.ClientID,
			ClientSecret: testutil.TestClientSecret,
		})
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "token was issued to a different client" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("garbage token succeeds", func(t *testing.T) {
		// Malformed tokens reference nothing revocable; RFC 7009 says
		// the call succeeds.
		err := env.srv.Revoke(context.Background(), &RevocationRequest{
			Token:        "not-a-jwt",
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
		})
		if err != nil {
			t.Errorf("Revoke of a malformed token failed: %v", err)
		}
	})

	t.Run("signed token without a record succeeds", func(t *testing.T) {
		orphan := env.signOrphanToken(t, client.ClientID)
		err := env.srv.Revoke(context.Background(), &RevocationRequest{
			Token:        orphan,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
		})
		if err != nil {
			t.Errorf("Revoke of an unknown token failed: %v", err)
		}
	})
}

// signOrphanToken signs a JWT with no backing store record.
func (e *testEnv) signOrphanToken(t *testing.T, clientID string) string {
	t.Helper()
	signed, err := e.codec.Sign(token.Claims{
		Subject:   "user-alice",
		ClientID:  clientID,
		ID:        "orphan-" + testutil.RandomString(8),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return signed
}
