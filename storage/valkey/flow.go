package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oakward/oauth-core/storage"
)

// ============================================================
// AuthCodeStore Implementation
// ============================================================

// codeJSON is the JSON representation of an authorization code record
type codeJSON struct {
	ID                  string `json:"id"`
	ClientID            string `json:"client_id"`
	Subject             string `json:"subject,omitempty"`
	Code                string `json:"code,omitempty"`
	Scope               string `json:"scope,omitempty"`
	ResponseType        string `json:"response_type"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	RedirectURI         string `json:"redirect_uri"`
	State               string `json:"state,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
	CallbackToken       string `json:"callback_token,omitempty"`
	UserAgent           string `json:"user_agent,omitempty"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
	RevokedAt           int64  `json:"revoked_at,omitempty"`
}

func toCodeJSON(code *storage.AuthorizationCode) *codeJSON {
	return &codeJSON{
		ID:                  code.ID,
		ClientID:            code.ClientID,
		Subject:             code.Subject,
		Code:                code.Code,
		Scope:               code.Scope,
		ResponseType:        code.ResponseType,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		RedirectURI:         code.RedirectURI,
		State:               code.State,
		Nonce:               code.Nonce,
		CallbackToken:       code.CallbackToken,
		UserAgent:           code.UserAgent,
		CreatedAt:           code.CreatedAt.Unix(),
		ExpiresAt:           code.ExpiresAt.Unix(),
		RevokedAt:           unixOrNil(code.RevokedAt),
	}
}

func fromCodeJSON(j *codeJSON) *storage.AuthorizationCode {
	if j == nil {
		return nil
	}
	return &storage.AuthorizationCode{
		ID:                  j.ID,
		ClientID:            j.ClientID,
		Subject:             j.Subject,
		Code:                j.Code,
		Scope:               j.Scope,
		ResponseType:        j.ResponseType,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		RedirectURI:         j.RedirectURI,
		State:               j.State,
		Nonce:               j.Nonce,
		CallbackToken:       j.CallbackToken,
		UserAgent:           j.UserAgent,
		CreatedAt:           time.Unix(j.CreatedAt, 0),
		ExpiresAt:           time.Unix(j.ExpiresAt, 0),
		RevokedAt:           timeOrNil(j.RevokedAt),
	}
}

// CreateAuthorizationCode persists a new pending authorization along with
// its lookup indexes.
func (s *Store) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.ID == "" {
		return fmt.Errorf("invalid authorization code")
	}

	ttl := s.recordTTL(code.ExpiresAt)

	if err := s.setJSON(ctx, s.codeRecordKey(code.ID), toCodeJSON(code), ttl); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	if err := s.writeCodeIndexes(ctx, code, ttl); err != nil {
		return err
	}

	s.logger.Debug("Saved authorization code", "id", safeTruncate(code.ID, tokenIDLogLength))
	return nil
}

// writeCodeIndexes stores the code-value and callback-token index keys.
func (s *Store) writeCodeIndexes(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	if code.Code != "" {
		key := s.codeValueKey(code.ClientID, code.Code)
		if err := s.client.Do(ctx,
			s.client.B().Set().Key(key).Value(code.ID).Ex(ttl).Build(),
		).Error(); err != nil {
			return fmt.Errorf("failed to save code value index: %w", err)
		}
	}
	if code.CallbackToken != "" {
		key := s.callbackKey(code.CallbackToken)
		if err := s.client.Do(ctx,
			s.client.B().Set().Key(key).Value(code.ID).Ex(ttl).Build(),
		).Error(); err != nil {
			return fmt.Errorf("failed to save callback token index: %w", err)
		}
	}
	return nil
}

// deleteCodeIndexes removes the index keys of a code record.
func (s *Store) deleteCodeIndexes(ctx context.Context, code *storage.AuthorizationCode) {
	if code.Code != "" {
		if err := s.client.Do(ctx,
			s.client.B().Del().Key(s.codeValueKey(code.ClientID, code.Code)).Build(),
		).Error(); err != nil {
			s.logger.Warn("Failed to delete code value index", "error", err)
		}
	}
	if code.CallbackToken != "" {
		if err := s.client.Do(ctx,
			s.client.B().Del().Key(s.callbackKey(code.CallbackToken)).Build(),
		).Error(); err != nil {
			s.logger.Warn("Failed to delete callback token index", "error", err)
		}
	}
}

// FindAuthorizationCodeByID retrieves a code by record ID.
func (s *Store) FindAuthorizationCodeByID(ctx context.Context, id string) (*storage.AuthorizationCode, error) {
	return getAndUnmarshal(ctx, s, s.codeRecordKey(id), fromCodeJSON)
}

// FindAuthorizationCode retrieves a code by owning client and code value.
func (s *Store) FindAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	id, err := s.resolveCodeID(ctx, s.codeValueKey(clientID, code))
	if err != nil {
		return nil, err
	}
	return s.FindAuthorizationCodeByID(ctx, id)
}

// FindAuthorizationCodeByCallbackToken retrieves a pending authorization
// by its strategy correlation token.
func (s *Store) FindAuthorizationCodeByCallbackToken(ctx context.Context, token string) (*storage.AuthorizationCode, error) {
	id, err := s.resolveCodeID(ctx, s.callbackKey(token))
	if err != nil {
		return nil, err
	}
	return s.FindAuthorizationCodeByID(ctx, id)
}

// resolveCodeID looks up a record ID through an index key.
func (s *Store) resolveCodeID(ctx context.Context, indexKey string) (string, error) {
	id, err := s.client.Do(ctx, s.client.B().Get().Key(indexKey).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve code index: %w", err)
	}
	return id, nil
}

// UpdateAuthorizationCode replaces an existing record and refreshes its
// indexes (the code value is set after creation, on authentication).
func (s *Store) UpdateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	existing, err := s.FindAuthorizationCodeByID(ctx, code.ID)
	if err != nil {
		return err
	}

	ttl := s.recordTTL(code.ExpiresAt)

	if err := s.setJSON(ctx, s.codeRecordKey(code.ID), toCodeJSON(code), ttl); err != nil {
		return fmt.Errorf("failed to update authorization code: %w", err)
	}

	if existing.Code != code.Code || existing.CallbackToken != code.CallbackToken {
		s.deleteCodeIndexes(ctx, existing)
	}
	return s.writeCodeIndexes(ctx, code, ttl)
}

// ConsumeAuthorizationCode atomically redeems a code by client and code
// value: the index resolves the record ID, then a Lua script performs the
// revoked and expiry checks and the revoked-marking in one step.
//
// SECURITY: the script is the atomic boundary. Both concurrent callers may
// resolve the same record ID, but only one script execution finds the
// record unrevoked.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	id, err := s.resolveCodeID(ctx, s.codeValueKey(clientID, code))
	if err != nil {
		return nil, err
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaConsumeCode).
			Numkeys(1).
			Key(s.codeRecordKey(id)).
			Arg(fmt.Sprintf("%d", time.Now().Unix())).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic code redemption: %w", err)
	}

	switch result {
	case "NOT_FOUND":
		return nil, storage.ErrNotFound
	case "ALREADY_USED":
		return nil, storage.ErrAlreadyConsumed
	case "EXPIRED":
		return nil, storage.ErrExpired
	}

	var j codeJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to parse authorization code: %w", err)
	}

	s.logger.Debug("Consumed authorization code", "id", safeTruncate(id, tokenIDLogLength))
	return fromCodeJSON(&j), nil
}

// RevokeAuthorizationCode sets the revocation timestamp. Idempotent.
func (s *Store) RevokeAuthorizationCode(ctx context.Context, id string, at time.Time) error {
	code, err := s.FindAuthorizationCodeByID(ctx, id)
	if err != nil {
		return err
	}

	if code.RevokedAt != nil {
		return nil
	}
	code.RevokedAt = &at

	if err := s.setJSON(ctx, s.codeRecordKey(id), toCodeJSON(code), s.recordTTL(code.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to revoke authorization code: %w", err)
	}
	return nil
}

// PurgeAuthorizationCodes deletes records matching the target and their
// indexes. Key TTLs remove most expired records on their own; the purge
// covers records still inside the retention window.
func (s *Store) PurgeAuthorizationCodes(ctx context.Context, target storage.PurgeTarget) (int, error) {
	now := time.Now()
	removed := 0

	err := s.scanKeys(ctx, s.codeRecordKey("*"), func(key string) error {
		code, err := getAndUnmarshal(ctx, s, key, fromCodeJSON)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil // key expired between SCAN and GET
			}
			return err
		}
		if !purgeMatches(target, code.RevokedAt, code.ExpiresAt, now) {
			return nil
		}

		if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete authorization code: %w", err)
		}
		s.deleteCodeIndexes(ctx, code)
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	return removed, nil
}
