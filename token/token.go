// Package token implements the signed-token codec: it turns claim sets
// into compact signed JWTs and verifies them back, pinning the configured
// signing algorithm so tokens signed any other way are rejected.
package token

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Verify always returns one of these (possibly
// wrapped); callers never see raw parser errors.
var (
	// ErrTokenMalformed indicates the string is not a parseable token.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token is expired")

	// ErrSignatureInvalid indicates the signature does not verify under
	// the configured key.
	ErrSignatureInvalid = errors.New("token signature is invalid")

	// ErrAlgorithmMismatch indicates the token was signed with a
	// different algorithm than the codec is configured for. Such tokens
	// are rejected even if their signature would otherwise verify.
	ErrAlgorithmMismatch = errors.New("token signing algorithm mismatch")
)

// Claims is the claim set carried by signed tokens.
type Claims struct {
	// Issuer is the iss claim, the authorization server identifier.
	Issuer string

	// Subject is the sub claim: the resource owner, or the client id
	// itself for client_credentials tokens.
	Subject string

	// Audience is the aud claim.
	Audience string

	// AuthorizedParty is the azp claim: the client's domain when
	// registered, otherwise its client id.
	AuthorizedParty string

	// ClientID is the client_id claim.
	ClientID string

	// Scope is the space-delimited scope claim. Empty for refresh
	// tokens.
	Scope string

	// ID is the jti claim. It doubles as the primary key of the local
	// token record, which is the authoritative source for revocation.
	ID string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config configures a Codec.
type Config struct {
	// Algorithm selects the signing method: HS256/HS384/HS512,
	// RS256/RS384/RS512, or ES256/ES384/ES512. Default: HS256.
	Algorithm string

	// Secret is the shared key for HMAC algorithms.
	Secret []byte

	// PrivateKey signs tokens for RSA/ECDSA algorithms. May be nil for
	// a verify-only codec.
	PrivateKey any

	// PublicKey verifies tokens for RSA/ECDSA algorithms. Derived from
	// PrivateKey when nil.
	PublicKey any

	// Issuer is the default iss claim applied when Claims.Issuer is
	// empty.
	Issuer string
}

// Codec signs and verifies compact signed tokens. It is pure and
// stateless: no I/O, safe for concurrent use.
type Codec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
}

// New builds a Codec from the configuration. The configured algorithm is
// the only one the codec will ever accept on verification.
func New(cfg Config) (*Codec, error) {
	alg := cfg.Algorithm
	if alg == "" {
		alg = "HS256"
	}

	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
	}

	c := &Codec{method: method, issuer: cfg.Issuer}

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(cfg.Secret) == 0 {
			return nil, fmt.Errorf("secret is required for %s", alg)
		}
		c.signKey = cfg.Secret
		c.verifyKey = cfg.Secret

	case *jwt.SigningMethodRSA:
		key, pub, err := rsaKeys(cfg.PrivateKey, cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", alg, err)
		}
		c.signKey = key
		c.verifyKey = pub

	case *jwt.SigningMethodECDSA:
		key, pub, err := ecdsaKeys(cfg.PrivateKey, cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", alg, err)
		}
		c.signKey = key
		c.verifyKey = pub

	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
	}

	return c, nil
}

func rsaKeys(priv, pub any) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	var key *rsa.PrivateKey
	if priv != nil {
		k, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("private key is not *rsa.PrivateKey")
		}
		key = k
	}

	var public *rsa.PublicKey
	if pub != nil {
		p, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, nil, fmt.Errorf("public key is not *rsa.PublicKey")
		}
		public = p
	} else if key != nil {
		public = &key.PublicKey
	}

	if key == nil && public == nil {
		return nil, nil, fmt.Errorf("a private or public key is required")
	}
	return key, public, nil
}

func ecdsaKeys(priv, pub any) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	var key *ecdsa.PrivateKey
	if priv != nil {
		k, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("private key is not *ecdsa.PrivateKey")
		}
		key = k
	}

	var public *ecdsa.PublicKey
	if pub != nil {
		p, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, nil, fmt.Errorf("public key is not *ecdsa.PublicKey")
		}
		public = p
	} else if key != nil {
		public = &key.PublicKey
	}

	if key == nil && public == nil {
		return nil, nil, fmt.Errorf("a private or public key is required")
	}
	return key, public, nil
}

// Algorithm returns the pinned signing algorithm name.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Sign produces a compact signed token carrying the claims. The codec's
// issuer fills in when claims.Issuer is empty.
func (c *Codec) Sign(claims Claims) (string, error) {
	if c.signKey == nil {
		return "", fmt.Errorf("codec has no signing key")
	}
	if claims.ID == "" {
		return "", fmt.Errorf("claims require a token id (jti)")
	}
	if claims.ExpiresAt.IsZero() {
		return "", fmt.Errorf("claims require an expiry")
	}

	issuer := claims.Issuer
	if issuer == "" {
		issuer = c.issuer
	}

	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	jwtClaims := jwt.MapClaims{
		"iss": issuer,
		"sub": claims.Subject,
		"jti": claims.ID,
		"iat": issuedAt.Unix(),
		"exp": claims.ExpiresAt.Unix(),
	}

	if claims.Audience != "" {
		jwtClaims["aud"] = claims.Audience
	}
	if claims.AuthorizedParty != "" {
		jwtClaims["azp"] = claims.AuthorizedParty
	}
	if claims.ClientID != "" {
		jwtClaims["client_id"] = claims.ClientID
	}
	if claims.Scope != "" {
		jwtClaims["scope"] = claims.Scope
	}

	signed, err := jwt.NewWithClaims(c.method, jwtClaims).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a signed token, failing closed: any
// signature mismatch, algorithm mismatch, or past expiry yields one of
// the package's sentinel errors.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		// Pin the configured algorithm. Checking the exact alg name (not
		// just the method family) closes algorithm-confusion attacks.
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("%w: got %s, want %s",
				ErrAlgorithmMismatch, t.Method.Alg(), c.method.Alg())
		}
		return c.verifyKey, nil
	})
	if err != nil {
		return nil, normalizeParseError(err)
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	return claimsFromMap(mapClaims), nil
}

// normalizeParseError maps jwt parser failures onto the codec's sentinel
// errors so callers never branch on library internals.
func normalizeParseError(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmMismatch):
		return fmt.Errorf("%w", ErrAlgorithmMismatch)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w", ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w", ErrSignatureInvalid)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w", ErrTokenMalformed)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

func claimsFromMap(m jwt.MapClaims) *Claims {
	claims := &Claims{}

	if v, ok := m["iss"].(string); ok {
		claims.Issuer = v
	}
	if v, ok := m["sub"].(string); ok {
		claims.Subject = v
	}
	if v, ok := m["aud"].(string); ok {
		claims.Audience = v
	}
	if v, ok := m["azp"].(string); ok {
		claims.AuthorizedParty = v
	}
	if v, ok := m["client_id"].(string); ok {
		claims.ClientID = v
	}
	if v, ok := m["scope"].(string); ok {
		claims.Scope = v
	}
	if v, ok := m["jti"].(string); ok {
		claims.ID = v
	}
	if v, ok := m["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(v), 0)
	}
	if v, ok := m["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(v), 0)
	}

	return claims
}
