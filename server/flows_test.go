package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oakward/oauth-core/internal/testutil"
	"github.com/oakward/oauth-core/storage"
	"github.com/oakward/oauth-core/token"
)

// seedCode stores a redeemable authorization code bound to the client.
func (e *testEnv) seedCode(t *testing.T, client *storage.Client, mutate func(*storage.AuthorizationCode)) *storage.AuthorizationCode {
	t.Helper()
	now := time.Now()
	code := &storage.AuthorizationCode{
		ID:           "code-" + testutil.RandomString(8),
		ClientID:     client.ClientID,
		Subject:      "user-1",
		ResponseType: storage.ResponseTypeCode,
		Scope:        "read",
		RedirectURI:  client.RedirectURIs[0],
		Code:         testutil.RandomString(32),
		CreatedAt:    now,
		ExpiresAt:    now.Add(5 * time.Minute),
	}
	if mutate != nil {
		mutate(code)
	}
	if err := e.store.CreateAuthorizationCode(context.Background(), code); err != nil {
		t.Fatalf("CreateAuthorizationCode failed: %v", err)
	}
	return code
}

// passwordGrant runs a password grant for the client and returns the result.
func (e *testEnv) passwordGrant(t *testing.T, client *storage.Client, scope string) *TokenGrant {
	t.Helper()
	e.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*Identity, error) {
		if username == "alice" && password == "s3cret" {
			return &Identity{Subject: "user-alice"}, nil
		}
		return nil, nil
	})
	grant, err := e.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		Username:     "alice",
		Password:     "s3cret",
		Scope:        scope,
	})
	if err != nil {
		t.Fatalf("password grant failed: %v", err)
	}
	return grant
}

// expireAccessFor backdates the access token paired with the grant so
// its refresh token becomes redeemable.
func (e *testEnv) expireAccessFor(t *testing.T, grant *TokenGrant) {
	t.Helper()
	claims, err := e.codec.Verify(grant.AccessToken)
	if err != nil {
		t.Fatalf("Verify access token failed: %v", err)
	}
	record, err := e.store.FindAccessTokenByID(context.Background(), claims.ID)
	if err != nil {
		t.Fatalf("FindAccessTokenByID failed: %v", err)
	}
	record.ExpiresAt = time.Now().Add(-time.Minute)
	if err := e.store.CreateAccessToken(context.Background(), record); err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}
}

func TestToken_GrantTypeRequired(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.srv.Token(context.Background(), nil)
	wantOAuthError(t, err, ErrorCodeInvalidRequest)

	_, err = env.srv.Token(context.Background(), &TokenRequest{ClientID: "x"})
	wantOAuthError(t, err, ErrorCodeInvalidRequest)
}

func TestToken_ClientAuthentication(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))

	revoked := env.seed(t, internalConfidential("revoked-app"))
	if err := env.store.RevokeClient(context.Background(), revoked.ClientID, time.Now()); err != nil {
		t.Fatalf("RevokeClient failed: %v", err)
	}

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantCode string
	}{
		{"missing client_id", "", "", ErrorCodeInvalidRequest},
		{"unknown client", "no-such-client", testutil.TestClientSecret, ErrorCodeInvalidClient},
		{"revoked client", revoked.ClientID, testutil.TestClientSecret, ErrorCodeInvalidClient},
		{"missing secret for confidential client", client.ClientID, "", ErrorCodeInvalidClient},
		{"wrong secret", client.ClientID, "not-the-secret", ErrorCodeInvalidClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.srv.Token(context.Background(), &TokenRequest{
				GrantType:    GrantClientCredentials,
				ClientID:     tt.clientID,
				ClientSecret: tt.secret,
			})
			oauthErr := wantOAuthError(t, err, tt.wantCode)
			if tt.wantCode == ErrorCodeInvalidClient {
				if oauthErr.Description != "client authentication failed" {
					t.Errorf("description = %q, want the uniform authentication failure", oauthErr.Description)
				}
				if oauthErr.Status != 401 {
					t.Errorf("status = %d, want 401", oauthErr.Status)
				}
			}
		})
	}
}

func TestToken_UnsupportedGrantTypes(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))

	_, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    "device_code",
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
	})
	wantOAuthError(t, err, ErrorCodeUnsupportedGrantType)

	_, err = env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantImplicit,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
	})
	oauthErr := wantOAuthError(t, err, ErrorCodeUnsupportedGrantType)
	if oauthErr.Description != "implicit grant is not available at the token endpoint" {
		t.Errorf("description = %q", oauthErr.Description)
	}
}

func TestToken_ScopeValidation(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app")) // scope "read write"

	wildcard := internalConfidential("admin-app")
	wildcard.Scope = WildcardScope
	env.seed(t, wildcard)

	t.Run("exceeds client scope", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantClientCredentials,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			Scope:        "read delete",
		})
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidScope)
		if oauthErr.Description != "requested scope exceeds the client's declared scope" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantClientCredentials,
			ClientID:     wildcard.ClientID,
			ClientSecret: testutil.TestClientSecret,
			Scope:        "bogus",
		})
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidScope)
		if oauthErr.Description != "requested scope contains unknown scopes" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("malformed scope", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantClientCredentials,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			Scope:        `re"ad`,
		})
		wantOAuthError(t, err, ErrorCodeInvalidScope)
	})
}

func TestClientCredentialsGrant(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("service"))

	grant, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantClientCredentials,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
	})
	if err != nil {
		t.Fatalf("client_credentials grant failed: %v", err)
	}

	if grant.AccessToken == "" {
		t.Error("missing access token")
	}
	if grant.RefreshToken != "" {
		t.Error("client_credentials must not issue a refresh token")
	}
	if grant.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", grant.TokenType)
	}
	if grant.ExpiresIn != 86400 {
		t.Errorf("ExpiresIn = %d, want 86400 for a confidential internal client", grant.ExpiresIn)
	}
	if grant.Scope != "read write" {
		t.Errorf("Scope = %q, want the client's declared scope", grant.Scope)
	}

	claims, err := env.codec.Verify(grant.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != client.ClientID {
		t.Errorf("sub = %q, want the client id %q", claims.Subject, client.ClientID)
	}
	if claims.AuthorizedParty != client.Domain {
		t.Errorf("azp = %q, want the client domain %q", claims.AuthorizedParty, client.Domain)
	}
	if claims.Issuer != testIssuer {
		t.Errorf("iss = %q, want %q", claims.Issuer, testIssuer)
	}

	// The record is persisted under the jti.
	if _, err := env.store.FindAccessTokenByID(context.Background(), claims.ID); err != nil {
		t.Errorf("access token record not found: %v", err)
	}
}

func TestClientCredentialsGrant_ScopeNarrowing(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("service"))

	grant, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantClientCredentials,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		Scope:        "read",
	})
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if grant.Scope != "read" {
		t.Errorf("Scope = %q, want read", grant.Scope)
	}
}

func TestClientCredentialsGrant_Rejections(t *testing.T) {
	env := newTestEnv(t)

	public := testutil.PublicClient("native-app")
	public.Internal = true
	env.seed(t, public)

	external := env.seed(t, testutil.ConfidentialClient("partner-app"))

	t.Run("public client", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType: GrantClientCredentials,
			ClientID:  public.ClientID,
		})
		wantOAuthError(t, err, ErrorCodeUnauthorizedClient)
	})

	t.Run("external confidential client", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantClientCredentials,
			ClientID:     external.ClientID,
			ClientSecret: testutil.TestClientSecret,
		})
		wantOAuthError(t, err, ErrorCodeUnauthorizedClient)
	})
}

func TestPasswordGrant(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))

	grant := env.passwordGrant(t, client, "")

	if grant.Scope != "read write" {
		t.Errorf("Scope = %q, want the client's declared scope", grant.Scope)
	}
	if grant.RefreshToken == "" {
		t.Error("confidential client should receive a refresh token")
	}

	claims, err := env.codec.Verify(grant.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-alice" {
		t.Errorf("sub = %q, want user-alice", claims.Subject)
	}

	refreshClaims, err := env.codec.Verify(grant.RefreshToken)
	if err != nil {
		t.Fatalf("Verify refresh failed: %v", err)
	}
	if refreshClaims.Scope != "" {
		t.Errorf("refresh token scope = %q, want empty", refreshClaims.Scope)
	}
	if refreshClaims.Subject != "user-alice" {
		t.Errorf("refresh sub = %q, want user-alice", refreshClaims.Subject)
	}
}

func TestPasswordGrant_SubjectScopeRestricts(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))

	env.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*Identity, error) {
		return &Identity{Subject: "user-bob", Scope: "read"}, nil
	})

	grant, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		Username:     "bob",
		Password:     "pw",
	})
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if grant.Scope != "read" {
		t.Errorf("Scope = %q, want the subject's allowed scope", grant.Scope)
	}
}

func TestPasswordGrant_PublicClientNoRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	public := testutil.PublicClient("native-app")
	public.Internal = true
	env.seed(t, public)

	env.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*Identity, error) {
		return &Identity{Subject: "user-alice"}, nil
	})

	grant, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType: GrantPassword,
		ClientID:  public.ClientID,
		Username:  "alice",
		Password:  "pw",
	})
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if grant.RefreshToken != "" {
		t.Error("public client must not receive a refresh token")
	}
	if grant.ExpiresIn != 7200 {
		t.Errorf("ExpiresIn = %d, want 7200 for a public internal client", grant.ExpiresIn)
	}
}

func TestPasswordGrant_Failures(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	external := env.seed(t, testutil.ConfidentialClient("partner-app"))

	base := func() *TokenRequest {
		return &TokenRequest{
			GrantType:    GrantPassword,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			Username:     "alice",
			Password:     "pw",
		}
	}

	t.Run("not configured", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), base())
		oauthErr := wantOAuthError(t, err, ErrorCodeUnsupportedGrantType)
		if oauthErr.Description != "password grant is not configured" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		req := base()
		req.Password = ""
		_, err := env.srv.Token(context.Background(), req)
		wantOAuthError(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("bad credentials", func(t *testing.T) {
		env.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*Identity, error) {
			return nil, nil
		})
		_, err := env.srv.Token(context.Background(), base())
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "invalid resource owner credentials" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("authenticator error", func(t *testing.T) {
		env.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*Identity, error) {
			return nil, errors.New("directory unavailable")
		})
		_, err := env.srv.Token(context.Background(), base())
		wantOAuthError(t, err, ErrorCodeServerError)
	})

	t.Run("external client not authorized", func(t *testing.T) {
		env.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*Identity, error) {
			return &Identity{Subject: "user-alice"}, nil
		})
		req := base()
		req.ClientID = external.ClientID
		_, err := env.srv.Token(context.Background(), req)
		wantOAuthError(t, err, ErrorCodeUnauthorizedClient)
	})
}

func TestAuthorizationCodeGrant(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	challenge, verifier := testutil.PKCEPair()
	code := env.seedCode(t, client, func(c *storage.AuthorizationCode) {
		c.CodeChallenge = challenge
		c.CodeChallengeMethod = PKCEMethodS256
	})

	req := &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		Code:         code.Code,
		RedirectURI:  code.RedirectURI,
		CodeVerifier: verifier,
	}

	grant, err := env.srv.Token(context.Background(), req)
	if err != nil {
		t.Fatalf("authorization_code grant failed: %v", err)
	}
	if grant.Scope != "read" {
		t.Errorf("Scope = %q, want the code's scope", grant.Scope)
	}
	if grant.RefreshToken == "" {
		t.Error("confidential client should receive a refresh token")
	}

	claims, err := env.codec.Verify(grant.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != code.Subject {
		t.Errorf("sub = %q, want %q", claims.Subject, code.Subject)
	}

	// Replaying the code fails.
	_, err = env.srv.Token(context.Background(), req)
	oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
	if oauthErr.Description != "authorization code has already been used" {
		t.Errorf("description = %q", oauthErr.Description)
	}
}

func TestAuthorizationCodeGrant_BadVerifierBurnsCode(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	challenge, verifier := testutil.PKCEPair()
	code := env.seedCode(t, client, func(c *storage.AuthorizationCode) {
		c.CodeChallenge = challenge
		c.CodeChallengeMethod = PKCEMethodS256
	})

	req := &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		Code:         code.Code,
		RedirectURI:  code.RedirectURI,
		CodeVerifier: testutil.RandomString(50),
	}

	_, err := env.srv.Token(context.Background(), req)
	wantOAuthError(t, err, ErrorCodeInvalidGrant)

	// The failed attempt consumed the code: the correct verifier no
	// longer redeems it.
	req.CodeVerifier = verifier
	_, err = env.srv.Token(context.Background(), req)
	oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
	if oauthErr.Description != "authorization code has already been used" {
		t.Errorf("description = %q", oauthErr.Description)
	}
}

func TestAuthorizationCodeGrant_Failures(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))

	send := func(code, redirectURI, verifier string) error {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantAuthorizationCode,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			Code:         code,
			RedirectURI:  redirectURI,
			CodeVerifier: verifier,
		})
		return err
	}

	t.Run("missing code", func(t *testing.T) {
		wantOAuthError(t, send("", "", ""), ErrorCodeInvalidRequest)
	})

	t.Run("unknown code", func(t *testing.T) {
		err := send("no-such-code", "https://app.example.com/callback", "")
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "authorization code not found" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		code := env.seedCode(t, client, func(c *storage.AuthorizationCode) {
			c.ExpiresAt = time.Now().Add(-time.Minute)
		})
		err := send(code.Code, code.RedirectURI, "")
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "authorization code is expired" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("pending code without subject", func(t *testing.T) {
		code := env.seedCode(t, client, func(c *storage.AuthorizationCode) {
			c.Subject = ""
		})
		err := send(code.Code, code.RedirectURI, "")
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "authorization code not found" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		code := env.seedCode(t, client, nil)
		err := send(code.Code, "https://evil.example.com/callback", "")
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "redirect_uri does not match the authorization request" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("code bound to another client", func(t *testing.T) {
		other := env.seed(t, internalConfidential("other-app"))
		code := env.seedCode(t, other, nil)
		err := send(code.Code, code.RedirectURI, "")
		wantOAuthError(t, err, ErrorCodeInvalidGrant)
	})
}

func TestRefreshTokenGrant(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	grant := env.passwordGrant(t, client, "")

	refresh := func(refreshToken, scope string) (*TokenGrant, error) {
		return env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantRefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			RefreshToken: refreshToken,
			Scope:        scope,
		})
	}

	// The paired access token is still live: refusal.
	_, err := refresh(grant.RefreshToken, "")
	oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
	if oauthErr.Description != "access token associated with the refresh token is still active" {
		t.Errorf("description = %q", oauthErr.Description)
	}

	env.expireAccessFor(t, grant)

	next, err := refresh(grant.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.Scope != grant.Scope {
		t.Errorf("Scope = %q, want the previous grant's scope %q", next.Scope, grant.Scope)
	}
	if next.RefreshToken == "" {
		t.Error("refresh should issue a new refresh token")
	}
	if next.AccessToken == grant.AccessToken {
		t.Error("refresh reissued the same access token")
	}

	claims, err := env.codec.Verify(next.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-alice" {
		t.Errorf("sub = %q, want the original subject", claims.Subject)
	}

	// The consumed refresh token cannot be spent again.
	env.expireAccessFor(t, next)
	_, err = refresh(grant.RefreshToken, "")
	oauthErr = wantOAuthError(t, err, ErrorCodeInvalidGrant)
	if oauthErr.Description != "refresh token has already been used" {
		t.Errorf("description = %q", oauthErr.Description)
	}
}

func TestRefreshTokenGrant_SurvivesAccessPurge(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	grant := env.passwordGrant(t, client, "")

	// The access record expires long before the refresh token and a
	// maintenance sweep may delete it. Redemption must not depend on it.
	env.expireAccessFor(t, grant)
	if _, err := env.store.PurgeAccessTokens(context.Background(), storage.PurgeExpired); err != nil {
		t.Fatalf("PurgeAccessTokens failed: %v", err)
	}

	next, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantRefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		RefreshToken: grant.RefreshToken,
	})
	if err != nil {
		t.Fatalf("refresh after purge failed: %v", err)
	}
	if next.Scope != grant.Scope {
		t.Errorf("Scope = %q, want the previous grant's scope %q", next.Scope, grant.Scope)
	}

	claims, err := env.codec.Verify(next.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-alice" {
		t.Errorf("sub = %q, want the original subject", claims.Subject)
	}
}

func TestRefreshTokenGrant_RevokedAccessStillActive(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	grant := env.passwordGrant(t, client, "")

	// Revoking the paired access token does not open the refresh window:
	// redemption waits for expiry alone.
	claims, err := env.codec.Verify(grant.AccessToken)
	if err != nil {
		t.Fatalf("Verify access token failed: %v", err)
	}
	if err := env.store.RevokeAccessToken(context.Background(), claims.ID, time.Now()); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}

	_, err = env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantRefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: testutil.TestClientSecret,
		RefreshToken: grant.RefreshToken,
	})
	oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
	if oauthErr.Description != "access token associated with the refresh token is still active" {
		t.Errorf("description = %q", oauthErr.Description)
	}
}

func TestRefreshTokenGrant_ScopeWidening(t *testing.T) {
	env := newTestEnv(t)
	client := internalConfidential("web-app")
	client.Scope = "read write delete"
	env.seed(t, client)

	grant := env.passwordGrant(t, client, "read write")
	env.expireAccessFor(t, grant)

	refresh := func(scope string) (*TokenGrant, error) {
		return env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantRefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			RefreshToken: grant.RefreshToken,
			Scope:        scope,
		})
	}

	// Overlap with the previous scope is rejected, and the rejection does
	// not consume the token.
	_, err := refresh("write delete")
	oauthErr := wantOAuthError(t, err, ErrorCodeInvalidScope)
	if oauthErr.Description != "write is already in the previous access token scope" {
		t.Errorf("description = %q", oauthErr.Description)
	}

	next, err := refresh("delete")
	if err != nil {
		t.Fatalf("widening refresh failed: %v", err)
	}
	if next.Scope != "read write delete" {
		t.Errorf("Scope = %q, want the widened scope", next.Scope)
	}
}

func TestRefreshTokenGrant_Failures(t *testing.T) {
	env := newTestEnv(t)
	client := env.seed(t, internalConfidential("web-app"))
	other := env.seed(t, internalConfidential("other-app"))

	grant := env.passwordGrant(t, client, "")
	env.expireAccessFor(t, grant)

	t.Run("missing refresh_token", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantRefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
		})
		wantOAuthError(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantRefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			RefreshToken: "not-a-jwt",
		})
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "invalid refresh token" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("signed token without a record", func(t *testing.T) {
		orphan, err := env.codec.Sign(token.Claims{
			Subject:   "user-alice",
			ClientID:  client.ClientID,
			ID:        "no-such-record",
			ExpiresAt: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		_, tokenErr := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantRefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: testutil.TestClientSecret,
			RefreshToken: orphan,
		})
		oauthErr := wantOAuthError(t, tokenErr, ErrorCodeInvalidGrant)
		if oauthErr.Description != "refresh token not found" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})

	t.Run("different client", func(t *testing.T) {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType:    GrantRefreshToken,
			ClientID:     other.ClientID,
			ClientSecret: testutil.TestClientSecret,
			RefreshToken: grant.RefreshToken,
		})
		oauthErr := wantOAuthError(t, err, ErrorCodeInvalidGrant)
		if oauthErr.Description != "refresh token was issued to a different client" {
			t.Errorf("description = %q", oauthErr.Description)
		}
	})
}
