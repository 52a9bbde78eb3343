// Package testutil provides shared fixtures and helpers for tests across
// the module.
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakward/oauth-core/storage"
)

// TestClientSecret is the plaintext secret paired with TestSecretHash.
const TestClientSecret = "test-client-secret"

// TestSecretHash is a bcrypt hash of TestClientSecret, precomputed at
// MinCost so client fixtures stay cheap to create in bulk.
var TestSecretHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(TestClientSecret), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// ConfidentialClient returns an external confidential web client fixture.
func ConfidentialClient(clientID string) *storage.Client {
	return &storage.Client{
		ID:           "rec-" + clientID,
		ClientID:     clientID,
		Name:         "Test Web App",
		SecretHash:   TestSecretHash,
		Profile:      storage.ProfileWeb,
		Type:         storage.TypeConfidential,
		Scope:        "read write",
		Domain:       "https://app.example.com",
		RedirectURIs: []string{"https://app.example.com/callback"},
		CreatedAt:    time.Now(),
	}
}

// PublicClient returns an external public native client fixture.
func PublicClient(clientID string) *storage.Client {
	return &storage.Client{
		ID:           "rec-" + clientID,
		ClientID:     clientID,
		Name:         "Test Native App",
		Profile:      storage.ProfileNative,
		Type:         storage.TypePublic,
		Scope:        "read",
		RedirectURIs: []string{"https://app.example.com/callback"},
		CreatedAt:    time.Now(),
	}
}

// PendingCode returns a pending authorization fixture without subject or
// code value, the state a record has before the user authenticates.
func PendingCode(id, clientID string) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		ID:            id,
		ClientID:      clientID,
		ResponseType:  storage.ResponseTypeCode,
		Scope:         "read",
		RedirectURI:   "https://app.example.com/callback",
		CallbackToken: RandomString(32),
		CreatedAt:     now,
		ExpiresAt:     now.Add(10 * time.Minute),
	}
}

// RandomString generates a random base64url string of the given length.
func RandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// PKCEPair generates a valid S256 challenge and verifier pair.
func PKCEPair() (challenge, verifier string) {
	verifier = RandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}
