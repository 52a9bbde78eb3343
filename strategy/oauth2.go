package strategy

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// UserLookupFunc resolves the end user from an upstream token, typically
// by calling the provider's userinfo endpoint.
type UserLookupFunc func(ctx context.Context, tok *oauth2.Token) (*EndUser, error)

// Config configures an OAuth2Strategy.
type Config struct {
	// Name is the registry key for this strategy (required).
	Name string

	// Grant is the upstream grant kind. Default: GrantAuthorizationCode.
	Grant string

	// ClientID and ClientSecret are the credentials this server holds at
	// the upstream provider.
	ClientID     string
	ClientSecret string

	// Endpoint is the upstream provider's OAuth2 endpoint pair.
	Endpoint oauth2.Endpoint

	// RedirectURL is this server's strategy callback URL.
	RedirectURL string

	// Scopes are the scopes requested upstream.
	Scopes []string

	// UserLookup resolves the end user after the exchange (required).
	UserLookup UserLookupFunc
}

// OAuth2Strategy is a generic Strategy over golang.org/x/oauth2. Most
// upstream providers only differ in endpoint URLs and userinfo shape, so
// embedders usually need nothing beyond this type plus a UserLookupFunc.
type OAuth2Strategy struct {
	name       string
	grant      string
	config     *oauth2.Config
	userLookup UserLookupFunc
}

var _ Strategy = (*OAuth2Strategy)(nil)

// NewOAuth2Strategy creates a strategy from the configuration.
func NewOAuth2Strategy(cfg Config) (*OAuth2Strategy, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("strategy name is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.UserLookup == nil {
		return nil, fmt.Errorf("user lookup is required")
	}

	grant := cfg.Grant
	if grant == "" {
		grant = GrantAuthorizationCode
	}
	switch grant {
	case GrantAuthorizationCode, GrantAuthorizationCodePKCE, GrantImplicit, GrantPassword:
	default:
		return nil, fmt.Errorf("unsupported strategy grant kind: %s", grant)
	}

	return &OAuth2Strategy{
		name:  cfg.Name,
		grant: grant,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userLookup: cfg.UserLookup,
	}, nil
}

// Name returns the registry key.
func (s *OAuth2Strategy) Name() string {
	return s.name
}

// Grant returns the upstream grant kind.
func (s *OAuth2Strategy) Grant() string {
	return s.grant
}

// AuthorizationURL builds the upstream redirect URL.
func (s *OAuth2Strategy) AuthorizationURL(state string, opts ...oauth2.AuthCodeOption) string {
	return s.config.AuthCodeURL(state, opts...)
}

// Exchange trades the callback code for an upstream token.
func (s *OAuth2Strategy) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if s.grant == GrantAuthorizationCodePKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := s.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code with provider: %w", err)
	}
	return tok, nil
}

// UserLookup resolves the authenticated end user.
func (s *OAuth2Strategy) UserLookup(ctx context.Context, tok *oauth2.Token) (*EndUser, error) {
	return s.userLookup(ctx, tok)
}
