package oauth

// TokenResponse is the JSON body of a successful token endpoint response
// per RFC 6749 Section 5.1.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body of an OAuth error response per RFC 6749
// Section 5.2.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	State            string `json:"state,omitempty"`
}

// PendingAuthorizationResponse is the JSON body returned by the default
// authorize handler when no login handler is installed: everything the
// embedder's login UI needs to drive the decision endpoint.
type PendingAuthorizationResponse struct {
	PendingID    string `json:"pending_id"`
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name,omitempty"`
	ResponseType string `json:"response_type"`
	Scope        string `json:"scope,omitempty"`
	State        string `json:"state,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// PurgeResponse is the JSON body of a maintenance purge response: the
// number of records removed per kind.
type PurgeResponse struct {
	AccessTokens       int `json:"access_tokens"`
	RefreshTokens      int `json:"refresh_tokens"`
	AuthorizationCodes int `json:"authorization_codes"`
}

// ClientRegistrationResponse is the JSON body of a successful client
// registration. ClientSecret is present exactly once, at registration.
type ClientRegistrationResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	ClientName   string   `json:"client_name"`
	ClientType   string   `json:"client_type"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}
