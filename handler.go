package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oakward/oauth-core/instrumentation"
	"github.com/oakward/oauth-core/security"
	"github.com/oakward/oauth-core/server"
	"github.com/oakward/oauth-core/storage"
)

// LoginHandler renders the login dialog for a pending authorization. The
// embedder installs one via SetLoginHandler; its UI must eventually POST
// the pending ID and the user's decision to ServeAuthorizeDecision.
type LoginHandler func(w http.ResponseWriter, r *http.Request, pending *server.PendingAuthorization)

// Handler is a thin HTTP adapter for the OAuth grant engine. It parses
// requests, delegates to server.Server, and serializes results; no grant
// logic lives here.
type Handler struct {
	server  *server.Server
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instrumentation.Metrics

	loginHandler LoginHandler
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		server: srv,
		logger: logger,
	}
}

// SetInstrumentation wires OpenTelemetry metrics and tracing into the
// HTTP layer.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	h.tracer = inst.Tracer("http")
	h.metrics = inst.Metrics()
}

// SetLoginHandler installs the embedder's login dialog renderer. Without
// one, ServeAuthorize answers with a JSON description of the pending
// authorization instead.
func (h *Handler) SetLoginHandler(fn LoginHandler) {
	h.loginHandler = fn
}

// ServeToken handles the token endpoint per RFC 6749 Section 3.2. Client
// credentials are accepted via HTTP Basic auth or the request body.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodPost {
		h.writeOAuthError(w, server.ErrInvalidRequest("token endpoint requires POST"))
		h.recordHTTPMetrics(r, "token", http.StatusBadRequest, start)
		return
	}

	clientIP := h.clientIP(r)
	if !h.allowRequest(w, clientIP, "token") {
		h.recordHTTPMetrics(r, "token", http.StatusTooManyRequests, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.token")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, server.ErrInvalidRequest("malformed request body"))
		h.recordHTTPMetrics(r, "token", http.StatusBadRequest, start)
		return
	}

	clientID, clientSecret := h.clientCredentials(r)
	req := &server.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		UserAgent:    r.UserAgent(),
		IPAddress:    clientIP,
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, req.GrantType),
		attribute.String(instrumentation.AttrClientID, req.ClientID),
	)

	grant, err := h.server.Token(ctx, req)
	if err != nil {
		oauthErr := normalizeError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		h.recordHTTPMetrics(r, "token", oauthErr.Status, start)
		return
	}

	instrumentation.SetSpanSuccess(span)
	if h.metrics != nil {
		h.metrics.RecordTokenIssued(ctx, req.ClientID, req.GrantType)
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  grant.AccessToken,
		TokenType:    grant.TokenType,
		ExpiresIn:    grant.ExpiresIn,
		RefreshToken: grant.RefreshToken,
		Scope:        grant.Scope,
	})
	h.recordHTTPMetrics(r, "token", http.StatusOK, start)
}

// ServeAuthorize handles the authorization endpoint per RFC 6749 Section
// 3.1. A validated request produces a pending authorization, handed to
// the installed login handler (or described as JSON without one).
// Validation failures after the redirect URI is proven go back to the
// client's redirect URI; everything earlier is answered directly.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodGet {
		h.writeOAuthError(w, server.ErrInvalidRequest("authorization endpoint requires GET"))
		h.recordHTTPMetrics(r, "authorize", http.StatusBadRequest, start)
		return
	}

	clientIP := h.clientIP(r)
	if !h.allowRequest(w, clientIP, "authorize") {
		h.recordHTTPMetrics(r, "authorize", http.StatusTooManyRequests, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.authorize")
	defer span.End()

	q := r.URL.Query()
	req := &server.AuthorizationRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		UserAgent:           r.UserAgent(),
		IPAddress:           clientIP,
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
		attribute.String(instrumentation.AttrClientID, req.ClientID),
	)

	pending, err := h.server.BeginAuthorization(ctx, req)
	if err != nil {
		h.writeAuthorizeError(w, r, err)
		h.recordHTTPMetrics(r, "authorize", errorStatus(err), start)
		return
	}

	instrumentation.SetSpanSuccess(span)
	if h.metrics != nil {
		h.metrics.RecordAuthorizationStarted(ctx, req.ClientID, req.ResponseType)
	}
	h.recordHTTPMetrics(r, "authorize", http.StatusOK, start)

	if h.loginHandler != nil {
		h.loginHandler(w, r, pending)
		return
	}

	h.writeJSON(w, http.StatusOK, PendingAuthorizationResponse{
		PendingID:    pending.ID,
		ClientID:     pending.ClientID,
		ClientName:   pending.ClientName,
		ResponseType: pending.ResponseType,
		Scope:        pending.Scope,
		State:        pending.State,
		ExpiresAt:    pending.ExpiresAt.Unix(),
	})
}

// ServeAuthorizeDecision drives a pending authorization to its
// conclusion. The form carries pending_id and order=authorize|cancel;
// for authorize, username and password are checked through the server's
// credential authenticator. A failed login leaves the pending request
// valid for retry.
func (h *Handler) ServeAuthorizeDecision(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodPost {
		h.writeOAuthError(w, server.ErrInvalidRequest("decision endpoint requires POST"))
		h.recordHTTPMetrics(r, "authorize_decision", http.StatusBadRequest, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.authorize_decision")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, server.ErrInvalidRequest("malformed request body"))
		h.recordHTTPMetrics(r, "authorize_decision", http.StatusBadRequest, start)
		return
	}

	pendingID := r.PostFormValue("pending_id")
	if pendingID == "" {
		h.writeOAuthError(w, server.ErrInvalidRequest("pending_id is required"))
		h.recordHTTPMetrics(r, "authorize_decision", http.StatusBadRequest, start)
		return
	}

	switch order := r.PostFormValue("order"); order {
	case "cancel":
		redirect, err := h.server.CancelAuthorization(ctx, pendingID)
		if err != nil {
			oauthErr := normalizeError(err)
			h.writeOAuthError(w, oauthErr)
			h.recordHTTPMetrics(r, "authorize_decision", oauthErr.Status, start)
			return
		}
		h.recordHTTPMetrics(r, "authorize_decision", http.StatusFound, start)
		http.Redirect(w, r, redirect.URL, http.StatusFound)

	case "authorize":
		identity, err := h.authenticateResourceOwner(ctx, r)
		if err != nil {
			oauthErr := normalizeError(err)
			instrumentation.SetSpanError(span, oauthErr.Code)
			h.writeOAuthError(w, oauthErr)
			h.recordHTTPMetrics(r, "authorize_decision", oauthErr.Status, start)
			return
		}

		redirect, err := h.server.CompleteAuthentication(ctx, pendingID, identity)
		if err != nil {
			h.writeAuthorizeError(w, r, err)
			h.recordHTTPMetrics(r, "authorize_decision", errorStatus(err), start)
			return
		}

		instrumentation.SetSpanSuccess(span)
		h.recordHTTPMetrics(r, "authorize_decision", http.StatusFound, start)
		http.Redirect(w, r, redirect.URL, http.StatusFound)

	default:
		h.writeOAuthError(w, server.ErrInvalidRequest("order must be authorize or cancel"))
		h.recordHTTPMetrics(r, "authorize_decision", http.StatusBadRequest, start)
	}
}

// ServeStrategyCallback completes an authorization that was delegated to
// a federated identity strategy. Mount it with a {strategy} path
// parameter, e.g. "GET /oauth/callback/{strategy}". The upstream state
// parameter must carry the pending authorization's callback token.
func (h *Handler) ServeStrategyCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	ctx, span := h.startSpan(r.Context(), "oauth.strategy_callback")
	defer span.End()

	strategyName := r.PathValue("strategy")
	if strategyName == "" {
		strategyName = r.URL.Query().Get("strategy")
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// Upstream provider declined; surface as access_denied.
		h.writeOAuthError(w, server.NewError(ErrorCodeAccessDenied, q.Get("error_description"), http.StatusForbidden))
		h.recordHTTPMetrics(r, "strategy_callback", http.StatusForbidden, start)
		return
	}

	redirect, err := h.server.CompleteStrategyCallback(ctx, strategyName, q.Get("state"), q.Get("code"), q.Get("code_verifier"))
	if err != nil {
		oauthErr := normalizeError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		h.recordHTTPMetrics(r, "strategy_callback", oauthErr.Status, start)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(r, "strategy_callback", http.StatusFound, start)
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// ServeRevoke handles token revocation per RFC 7009. Revoking an unknown
// or already-dead token answers 200 like a successful revocation.
func (h *Handler) ServeRevoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodPost {
		h.writeOAuthError(w, server.ErrInvalidRequest("revocation endpoint requires POST"))
		h.recordHTTPMetrics(r, "revoke", http.StatusBadRequest, start)
		return
	}

	clientIP := h.clientIP(r)
	if !h.allowRequest(w, clientIP, "revoke") {
		h.recordHTTPMetrics(r, "revoke", http.StatusTooManyRequests, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.revoke")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, server.ErrInvalidRequest("malformed request body"))
		h.recordHTTPMetrics(r, "revoke", http.StatusBadRequest, start)
		return
	}

	clientID, clientSecret := h.clientCredentials(r)
	err := h.server.Revoke(ctx, &server.RevocationRequest{
		Token:         r.PostFormValue("token"),
		TokenTypeHint: r.PostFormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		IPAddress:     clientIP,
	})
	if err != nil {
		oauthErr := normalizeError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		h.recordHTTPMetrics(r, "revoke", oauthErr.Status, start)
		return
	}

	instrumentation.SetSpanSuccess(span)
	w.WriteHeader(http.StatusOK)
	h.recordHTTPMetrics(r, "revoke", http.StatusOK, start)
}

// ServePurge runs a maintenance purge. The target form or query value is
// revoked, expired, or all (the default). Mount this behind operator
// authentication; the handler itself does not restrict callers.
func (h *Handler) ServePurge(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodPost {
		h.writeOAuthError(w, server.ErrInvalidRequest("purge endpoint requires POST"))
		h.recordHTTPMetrics(r, "purge", http.StatusBadRequest, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.purge")
	defer span.End()

	target := storage.PurgeTarget(r.FormValue("target"))
	if target == "" {
		target = storage.PurgeAll
	}

	result, err := h.server.Purge(ctx, target)
	if err != nil {
		oauthErr := normalizeError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		h.recordHTTPMetrics(r, "purge", oauthErr.Status, start)
		return
	}

	instrumentation.SetSpanSuccess(span)
	if h.metrics != nil {
		h.metrics.RecordPurge(ctx, string(target), result.AccessTokens, result.RefreshTokens, result.AuthorizationCodes)
	}

	h.writeJSON(w, http.StatusOK, PurgeResponse{
		AccessTokens:       result.AccessTokens,
		RefreshTokens:      result.RefreshTokens,
		AuthorizationCodes: result.AuthorizationCodes,
	})
	h.recordHTTPMetrics(r, "purge", http.StatusOK, start)
}

// ServeRegisterClient registers an OAuth client from a JSON body. Like
// ServePurge, access control is the embedder's responsibility.
func (h *Handler) ServeRegisterClient(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	if r.Method != http.MethodPost {
		h.writeOAuthError(w, server.ErrInvalidRequest("registration endpoint requires POST"))
		h.recordHTTPMetrics(r, "register", http.StatusBadRequest, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.register_client")
	defer span.End()

	var body struct {
		ClientName   string   `json:"client_name"`
		Profile      string   `json:"profile"`
		Internal     bool     `json:"internal"`
		Scope        string   `json:"scope"`
		Domain       string   `json:"domain"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeOAuthError(w, server.ErrInvalidRequest("malformed JSON body"))
		h.recordHTTPMetrics(r, "register", http.StatusBadRequest, start)
		return
	}

	registered, err := h.server.RegisterClient(ctx, &server.ClientRegistration{
		Name:         body.ClientName,
		Profile:      body.Profile,
		Internal:     body.Internal,
		Scope:        body.Scope,
		Domain:       body.Domain,
		RedirectURIs: body.RedirectURIs,
		IPAddress:    h.clientIP(r),
	})
	if err != nil {
		oauthErr := normalizeError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		h.recordHTTPMetrics(r, "register", oauthErr.Status, start)
		return
	}

	instrumentation.SetSpanSuccess(span)
	if h.metrics != nil {
		h.metrics.RecordClientRegistered(ctx, registered.Client.Type)
	}

	h.writeJSON(w, http.StatusCreated, ClientRegistrationResponse{
		ClientID:     registered.Client.ClientID,
		ClientSecret: registered.Secret,
		ClientName:   registered.Client.Name,
		ClientType:   registered.Client.Type,
		GrantTypes:   registered.Client.Grants,
		Scope:        registered.Client.Scope,
		RedirectURIs: registered.Client.RedirectURIs,
	})
	h.recordHTTPMetrics(r, "register", http.StatusCreated, start)
}

// ServeUserInfo answers OpenID-style claims for the bearer token's
// subject, resolved through the server's claims lookup. Without a lookup
// installed the response carries only the subject.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, r)

	tokenString, ok := bearerToken(r)
	if !ok {
		h.writeOAuthError(w, server.ErrInvalidToken("missing or malformed Authorization header"))
		h.recordHTTPMetrics(r, "userinfo", http.StatusUnauthorized, start)
		return
	}

	ctx, span := h.startSpan(r.Context(), "oauth.userinfo")
	defer span.End()

	record, err := h.server.ValidateAccessToken(ctx, tokenString, "")
	if err != nil {
		oauthErr := normalizeError(err)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		h.recordHTTPMetrics(r, "userinfo", oauthErr.Status, start)
		return
	}

	claims := map[string]any{"sub": record.Subject}
	if lookup := h.server.ClaimsLookup(); lookup != nil {
		extra, err := lookup(ctx, record.Subject)
		if err != nil {
			h.logger.Error("Claims lookup failed", "error", err)
			h.writeOAuthError(w, server.ErrServerError("failed to resolve claims"))
			h.recordHTTPMetrics(r, "userinfo", http.StatusInternalServerError, start)
			return
		}
		for k, v := range extra {
			claims[k] = v
		}
		// sub always reflects the validated token, not the lookup.
		claims["sub"] = record.Subject
	}

	instrumentation.SetSpanSuccess(span)
	h.writeJSON(w, http.StatusOK, claims)
	h.recordHTTPMetrics(r, "userinfo", http.StatusOK, start)
}

// authenticateResourceOwner checks the decision form's credentials via
// the server's credential authenticator.
func (h *Handler) authenticateResourceOwner(ctx context.Context, r *http.Request) (*server.Identity, error) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		return nil, server.ErrInvalidRequest("username and password are required")
	}

	authenticate := h.server.CredentialAuthenticator()
	if authenticate == nil {
		return nil, server.ErrUnsupportedGrantType("resource owner authentication is not configured")
	}

	identity, err := authenticate(ctx, username, password)
	if err != nil {
		h.logger.Error("Credential authenticator failed", "error", err)
		return nil, server.ErrServerError("failed to process request")
	}
	if identity == nil {
		return nil, server.ErrAccessDenied("invalid credentials")
	}
	return identity, nil
}

// clientCredentials extracts the client ID and secret from HTTP Basic
// auth (values are URL-decoded per RFC 6749 Section 2.3.1) or, failing
// that, from the request body.
func (h *Handler) clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decodedID, err := url.QueryUnescape(id); err == nil {
			id = decodedID
		}
		if decodedSecret, err := url.QueryUnescape(secret); err == nil {
			secret = decodedSecret
		}
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

// clientIP resolves the request's client IP per the server's proxy
// configuration.
func (h *Handler) clientIP(r *http.Request) string {
	cfg := h.server.Config()
	return security.ClientIP(r, cfg.TrustProxy, cfg.TrustedProxyCount)
}

// allowRequest applies per-IP rate limiting when a limiter is installed.
func (h *Handler) allowRequest(w http.ResponseWriter, clientIP, endpoint string) bool {
	limiter := h.server.RateLimiter()
	if limiter == nil || limiter.Allow(clientIP) {
		return true
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	h.server.Auditor().LogRateLimitExceeded(clientIP, "")
	if h.metrics != nil {
		h.metrics.RecordRateLimitExceeded(context.Background(), "ip")
	}

	h.writeOAuthError(w, server.NewError(ErrorCodeTemporarilyUnavailable,
		"rate limit exceeded, try again later", http.StatusTooManyRequests))
	return false
}

// writeAuthorizeError delivers an authorization endpoint error: redirect
// errors go to the client's redirect URI, everything else is answered
// directly as JSON.
func (h *Handler) writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	var redirectErr *server.RedirectError
	if errors.As(err, &redirectErr) {
		http.Redirect(w, r, redirectErr.URL(), http.StatusFound)
		return
	}
	h.writeOAuthError(w, normalizeError(err))
}

// writeOAuthError serializes an OAuth error response. 401 responses
// carry WWW-Authenticate (and, for invalid_client, Proxy-Authenticate)
// challenge headers per RFC 6749 Section 5.2 and RFC 6750 Section 3.
func (h *Handler) writeOAuthError(w http.ResponseWriter, err *Error) {
	if err.Status == http.StatusUnauthorized || err.Code == ErrorCodeInsufficientScope {
		challenge := bearerChallenge(h.server.Config().Issuer, err)
		w.Header().Set("WWW-Authenticate", challenge)
		if err.Code == ErrorCodeInvalidClient {
			w.Header().Set("Proxy-Authenticate", challenge)
		}
	}

	h.writeJSON(w, err.Status, ErrorResponse{
		Error:            err.Code,
		ErrorDescription: err.Description,
		ErrorURI:         err.URI,
		State:            err.State,
	})
}

// writeJSON writes a JSON response body with the given status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// recordHTTPMetrics records request count and duration for an endpoint.
func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordHTTPRequest(r.Context(), r.Method, endpoint, status,
		float64(time.Since(start).Milliseconds()))
}

// startSpan starts an HTTP-layer span when tracing is wired.
func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name)
}

// bearerChallenge formats a Bearer challenge header value. Quotes and
// backslashes in parameter values are escaped so hostile descriptions
// cannot break out of the quoted string.
func bearerChallenge(realm string, err *Error) string {
	var b strings.Builder
	b.WriteString("Bearer")

	sep := " "
	writeParam := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(sep)
		sep = ", "
		b.WriteString(key)
		b.WriteString(`="`)
		b.WriteString(escapeQuoted(value))
		b.WriteString(`"`)
	}

	writeParam("realm", realm)
	writeParam("error", err.Code)
	writeParam("error_description", err.Description)
	writeParam("scope", err.Scope)

	return b.String()
}

// escapeQuoted escapes backslashes and double quotes for use inside an
// HTTP quoted-string.
func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// normalizeError coerces any error into a structured OAuth error.
func normalizeError(err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return server.ErrServerError("internal error")
}

// errorStatus returns the HTTP status an error maps to; redirect errors
// answer 302.
func errorStatus(err error) int {
	var redirectErr *server.RedirectError
	if errors.As(err, &redirectErr) {
		return http.StatusFound
	}
	return normalizeError(err).Status
}
