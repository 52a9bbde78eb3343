// Package mock provides a test double for the strategy.Strategy
// interface, with configurable results and call tracking.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/oakward/oauth-core/strategy"
)

// Strategy is a configurable mock implementation of strategy.Strategy.
type Strategy struct {
	mu sync.Mutex

	// NameValue is returned by Name(). Default: "mock".
	NameValue string

	// GrantValue is returned by Grant(). Default: authorization_code.
	GrantValue string

	// AuthURL is returned by AuthorizationURL with the state appended.
	AuthURL string

	// Token is returned by Exchange when ExchangeErr is nil.
	Token *oauth2.Token

	// ExchangeErr forces Exchange to fail.
	ExchangeErr error

	// User is returned by UserLookup when UserLookupErr is nil.
	User *strategy.EndUser

	// UserLookupErr forces UserLookup to fail.
	UserLookupErr error

	// ExchangeCalls counts Exchange invocations.
	ExchangeCalls int

	// LastCode records the code passed to the most recent Exchange.
	LastCode string
}

var _ strategy.Strategy = (*Strategy)(nil)

// New returns a mock strategy with usable defaults.
func New() *Strategy {
	return &Strategy{
		NameValue:  "mock",
		GrantValue: strategy.GrantAuthorizationCode,
		AuthURL:    "https://idp.example.com/authorize",
		Token:      &oauth2.Token{AccessToken: "mock-upstream-token", TokenType: "Bearer"},
		User:       &strategy.EndUser{Subject: "mock-user"},
	}
}

func (m *Strategy) Name() string {
	return m.NameValue
}

func (m *Strategy) Grant() string {
	return m.GrantValue
}

func (m *Strategy) AuthorizationURL(state string, _ ...oauth2.AuthCodeOption) string {
	return fmt.Sprintf("%s?state=%s", m.AuthURL, state)
}

func (m *Strategy) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExchangeCalls++
	m.LastCode = code
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.Token, nil
}

func (m *Strategy) UserLookup(_ context.Context, _ *oauth2.Token) (*strategy.EndUser, error) {
	if m.UserLookupErr != nil {
		return nil, m.UserLookupErr
	}
	return m.User, nil
}
