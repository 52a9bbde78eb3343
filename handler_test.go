package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/oakward/oauth-core/internal/testutil"
	"github.com/oakward/oauth-core/server"
	"github.com/oakward/oauth-core/storage"
	"github.com/oakward/oauth-core/storage/memory"
	"github.com/oakward/oauth-core/token"
)

const testIssuer = "https://auth.example.com"

type handlerEnv struct {
	handler *Handler
	srv     *server.Server
	store   *memory.Store
	codec   *token.Codec
	client  *storage.Client
}

// newHandlerEnv builds a handler over an in-memory store with one
// internal confidential client and the scopes read/write registered.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	store := memory.NewWithInterval(0)
	t.Cleanup(store.Stop)

	codec, err := token.New(token.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: testIssuer,
	})
	if err != nil {
		t.Fatalf("token.New failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(codec, store, store, store, store, &server.Config{Issuer: testIssuer}, logger)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	t.Cleanup(srv.Close)

	ctx := context.Background()
	for _, name := range []string{"read", "write"} {
		if err := store.SaveScope(ctx, &storage.Scope{Name: name, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveScope failed: %v", err)
		}
	}

	client := testutil.ConfidentialClient("web-app")
	client.Internal = true
	client.Grants = server.DeriveAllowedGrants(client.Type, client.Internal)
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}

	return &handlerEnv{
		handler: NewHandler(srv, logger),
		srv:     srv,
		store:   store,
		codec:   codec,
		client:  client,
	}
}

// postForm performs a form POST against an endpoint handler.
func postForm(handler http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/oauth/endpoint", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	return v
}

func TestServeToken_ClientCredentials(t *testing.T) {
	env := newHandlerEnv(t)

	w := postForm(env.handler.ServeToken, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {env.client.ClientID},
		"client_secret": {testutil.TestClientSecret},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	resp := decodeJSON[TokenResponse](t, w)
	if resp.AccessToken == "" {
		t.Error("missing access_token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
	if resp.RefreshToken != "" {
		t.Error("client_credentials must not return a refresh_token")
	}
}

func TestServeToken_BasicAuth(t *testing.T) {
	env := newHandlerEnv(t)

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(env.client.ClientID), url.QueryEscape(testutil.TestClientSecret))
	w := httptest.NewRecorder()
	env.handler.ServeToken(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestServeToken_InvalidClientChallenge(t *testing.T) {
	env := newHandlerEnv(t)

	w := postForm(env.handler.ServeToken, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {env.client.ClientID},
		"client_secret": {"wrong"},
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	challenge := w.Header().Get("WWW-Authenticate")
	if !strings.HasPrefix(challenge, "Bearer ") {
		t.Errorf("WWW-Authenticate = %q, want a Bearer challenge", challenge)
	}
	if !strings.Contains(challenge, `error="invalid_client"`) {
		t.Errorf("WWW-Authenticate = %q, missing error parameter", challenge)
	}
	if w.Header().Get("Proxy-Authenticate") == "" {
		t.Error("invalid_client must also carry Proxy-Authenticate")
	}

	resp := decodeJSON[ErrorResponse](t, w)
	if resp.Error != ErrorCodeInvalidClient {
		t.Errorf("error = %q, want invalid_client", resp.Error)
	}
}

func TestServeToken_MethodNotAllowed(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/token", nil)
	w := httptest.NewRecorder()
	env.handler.ServeToken(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	resp := decodeJSON[ErrorResponse](t, w)
	if resp.Error != ErrorCodeInvalidRequest {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestServeAuthorize_JSONPending(t *testing.T) {
	env := newHandlerEnv(t)

	target := "/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {env.client.RedirectURIs[0]},
		"scope":         {"read"},
		"state":         {"xyz"},
	}.Encode()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	env.handler.ServeAuthorize(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[PendingAuthorizationResponse](t, w)
	if resp.PendingID == "" {
		t.Error("missing pending_id")
	}
	if resp.ClientName != env.client.Name {
		t.Errorf("client_name = %q", resp.ClientName)
	}
	if resp.State != "xyz" {
		t.Errorf("state = %q", resp.State)
	}
}

func TestServeAuthorize_LoginHandler(t *testing.T) {
	env := newHandlerEnv(t)

	var got *server.PendingAuthorization
	env.handler.SetLoginHandler(func(w http.ResponseWriter, r *http.Request, pending *server.PendingAuthorization) {
		got = pending
		w.WriteHeader(http.StatusOK)
	})

	target := "/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {env.client.RedirectURIs[0]},
	}.Encode()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	env.handler.ServeAuthorize(w, req)

	if got == nil {
		t.Fatal("login handler was not invoked")
	}
	if got.ClientID != env.client.ClientID {
		t.Errorf("pending.ClientID = %q", got.ClientID)
	}
}

func TestServeAuthorize_ErrorDelivery(t *testing.T) {
	env := newHandlerEnv(t)

	t.Run("direct JSON before redirect URI is proven", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?client_id=ghost", nil)
		w := httptest.NewRecorder()
		env.handler.ServeAuthorize(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		resp := decodeJSON[ErrorResponse](t, w)
		if resp.Error != ErrorCodeInvalidClient {
			t.Errorf("error = %q", resp.Error)
		}
	})

	t.Run("redirect after redirect URI is proven", func(t *testing.T) {
		target := "/oauth/authorize?" + url.Values{
			"response_type": {"id_token"},
			"client_id":     {env.client.ClientID},
			"redirect_uri":  {env.client.RedirectURIs[0]},
			"state":         {"xyz"},
		}.Encode()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		env.handler.ServeAuthorize(w, req)

		if w.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", w.Code)
		}
		location, err := url.Parse(w.Header().Get("Location"))
		if err != nil {
			t.Fatalf("Location unparseable: %v", err)
		}
		q := location.Query()
		if q.Get("error") != ErrorCodeUnsupportedResponseType {
			t.Errorf("error = %q", q.Get("error"))
		}
		if q.Get("state") != "xyz" {
			t.Errorf("state = %q", q.Get("state"))
		}
	})
}

func TestServeAuthorizeDecision_FullFlow(t *testing.T) {
	env := newHandlerEnv(t)
	env.srv.SetCredentialAuthenticator(func(ctx context.Context, username, password string) (*server.Identity, error) {
		if username == "alice" && password == "s3cret" {
			return &server.Identity{Subject: "user-alice"}, nil
		}
		return nil, nil
	})

	// Begin: authorize endpoint yields a pending request.
	target := "/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {env.client.RedirectURIs[0]},
		"scope":         {"read"},
		"state":         {"xyz"},
	}.Encode()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	env.handler.ServeAuthorize(w, req)
	pending := decodeJSON[PendingAuthorizationResponse](t, w)

	// Wrong password: direct error, the pending request stays valid.
	w = postForm(env.handler.ServeAuthorizeDecision, url.Values{
		"pending_id": {pending.PendingID},
		"order":      {"authorize"},
		"username":   {"alice"},
		"password":   {"wrong"},
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("bad login status = %d, want 403", w.Code)
	}

	// Correct login: redirect with a code.
	w = postForm(env.handler.ServeAuthorizeDecision, url.Values{
		"pending_id": {pending.PendingID},
		"order":      {"authorize"},
		"username":   {"alice"},
		"password":   {"s3cret"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location unparseable: %v", err)
	}
	codeValue := location.Query().Get("code")
	if codeValue == "" {
		t.Fatal("missing code in redirect")
	}
	if location.Query().Get("state") != "xyz" {
		t.Errorf("state = %q", location.Query().Get("state"))
	}

	// The code redeems at the token endpoint.
	w = postForm(env.handler.ServeToken, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {env.client.ClientID},
		"client_secret": {testutil.TestClientSecret},
		"code":          {codeValue},
		"redirect_uri":  {env.client.RedirectURIs[0]},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[TokenResponse](t, w)
	if resp.AccessToken == "" {
		t.Error("missing access_token")
	}
	if resp.Scope != "read" {
		t.Errorf("scope = %q, want read", resp.Scope)
	}
}

func TestServeAuthorizeDecision_Cancel(t *testing.T) {
	env := newHandlerEnv(t)

	target := "/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {env.client.RedirectURIs[0]},
		"state":         {"xyz"},
	}.Encode()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	env.handler.ServeAuthorize(w, req)
	pending := decodeJSON[PendingAuthorizationResponse](t, w)

	w = postForm(env.handler.ServeAuthorizeDecision, url.Values{
		"pending_id": {pending.PendingID},
		"order":      {"cancel"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location unparseable: %v", err)
	}
	if location.Query().Get("error") != ErrorCodeAccessDenied {
		t.Errorf("error = %q, want access_denied", location.Query().Get("error"))
	}
}

func TestServeAuthorizeDecision_BadOrder(t *testing.T) {
	env := newHandlerEnv(t)

	w := postForm(env.handler.ServeAuthorizeDecision, url.Values{
		"pending_id": {"whatever"},
		"order":      {"maybe"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestServeRevoke(t *testing.T) {
	env := newHandlerEnv(t)

	w := postForm(env.handler.ServeToken, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {env.client.ClientID},
		"client_secret": {testutil.TestClientSecret},
	})
	grant := decodeJSON[TokenResponse](t, w)

	w = postForm(env.handler.ServeRevoke, url.Values{
		"token":           {grant.AccessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {env.client.ClientID},
		"client_secret":   {testutil.TestClientSecret},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// Revoking a malformed token also answers 200 per RFC 7009.
	w = postForm(env.handler.ServeRevoke, url.Values{
		"token":         {"garbage"},
		"client_id":     {env.client.ClientID},
		"client_secret": {testutil.TestClientSecret},
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for an unknown token", w.Code)
	}
}

func TestServePurge(t *testing.T) {
	env := newHandlerEnv(t)
	now := time.Now()

	if err := env.store.CreateAccessToken(context.Background(), &storage.AccessToken{
		ID: "at-old", ClientID: env.client.ClientID,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	w := postForm(env.handler.ServePurge, url.Values{"target": {"expired"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[PurgeResponse](t, w)
	if resp.AccessTokens != 1 {
		t.Errorf("access_tokens = %d, want 1", resp.AccessTokens)
	}

	w = postForm(env.handler.ServePurge, url.Values{"target": {"everything"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an unknown target", w.Code)
	}
}

func TestServeRegisterClient(t *testing.T) {
	env := newHandlerEnv(t)

	body, _ := json.Marshal(map[string]any{
		"client_name":   "Dashboard",
		"profile":       "web",
		"internal":      true,
		"scope":         "read write",
		"domain":        "https://dashboard.example.com",
		"redirect_uris": []string{"https://dashboard.example.com/callback"},
	})
	req := httptest.NewRequest(http.MethodPost, "/oauth/clients", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.ServeRegisterClient(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[ClientRegistrationResponse](t, w)
	if resp.ClientID == "" || resp.ClientSecret == "" {
		t.Error("missing client_id or client_secret")
	}
	if resp.ClientType != storage.TypeConfidential {
		t.Errorf("client_type = %q", resp.ClientType)
	}

	// Malformed body.
	req = httptest.NewRequest(http.MethodPost, "/oauth/clients", strings.NewReader("{"))
	w = httptest.NewRecorder()
	env.handler.ServeRegisterClient(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestServeUserInfo(t *testing.T) {
	env := newHandlerEnv(t)
	env.srv.SetClaimsLookup(func(ctx context.Context, subject string) (map[string]any, error) {
		return map[string]any{"email": subject + "@example.com", "sub": "spoofed"}, nil
	})
	tok := env.issueAccessToken(t, "read")

	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	env.handler.ServeUserInfo(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	claims := decodeJSON[map[string]any](t, w)
	if claims["sub"] != env.client.ClientID {
		t.Errorf("sub = %v, want %q (lookup must not override it)", claims["sub"], env.client.ClientID)
	}
	if claims["email"] != env.client.ClientID+"@example.com" {
		t.Errorf("email = %v", claims["email"])
	}
}

func TestServeUserInfo_NoLookup(t *testing.T) {
	env := newHandlerEnv(t)
	tok := env.issueAccessToken(t, "read")

	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	env.handler.ServeUserInfo(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	claims := decodeJSON[map[string]any](t, w)
	if len(claims) != 1 || claims["sub"] != env.client.ClientID {
		t.Errorf("claims = %v, want sub only", claims)
	}
}

func TestServeUserInfo_Rejections(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	w := httptest.NewRecorder()
	env.handler.ServeUserInfo(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no bearer: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	env.handler.ServeUserInfo(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", w.Code)
	}

	env.srv.SetClaimsLookup(func(ctx context.Context, subject string) (map[string]any, error) {
		return nil, errors.New("claims backend down")
	})
	tok := env.issueAccessToken(t, "read")
	req = httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	env.handler.ServeUserInfo(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("lookup failure: status = %d, want 500", w.Code)
	}
}

func TestBearerChallengeEscaping(t *testing.T) {
	err := NewError(ErrorCodeInvalidToken, `tricky "description" with \ backslash`, http.StatusUnauthorized)
	challenge := bearerChallenge("https://auth.example.com", err)

	if !strings.Contains(challenge, `error_description="tricky \"description\" with \\ backslash"`) {
		t.Errorf("challenge = %q, quoting not escaped", challenge)
	}
}
