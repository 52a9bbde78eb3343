package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/oakward/oauth-core/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// DefaultExpiredRetention is how long expired records are kept beyond
	// their expiry. Without a retention window a replayed authorization
	// code whose key TTL already fired would be indistinguishable from a
	// code that never existed, and maintenance purges would have nothing
	// to count.
	DefaultExpiredRetention = 24 * time.Hour

	// tokenIDLogLength is the number of characters to include when logging token IDs
	tokenIDLogLength = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// ExpiredRetention is how long expired records are kept beyond their
	// expiry for replay detection and purge accounting.
	// Default: 24 hours
	ExpiredRetention time.Duration
}

// Store is a Valkey-backed implementation of all storage interfaces.
// Record keys carry a TTL of the record lifetime plus the retention
// window; within the window consumed and expired records remain readable
// so replays can be told apart from unknown values.
type Store struct {
	client           valkeygo.Client
	prefix           string
	logger           *slog.Logger
	expiredRetention time.Duration
}

// Compile-time interface checks
var (
	_ storage.ClientStore   = (*Store)(nil)
	_ storage.ScopeStore    = (*Store)(nil)
	_ storage.AuthCodeStore = (*Store)(nil)
	_ storage.TokenStore    = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention := cfg.ExpiredRetention
	if retention <= 0 {
		retention = DefaultExpiredRetention
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:           client,
		prefix:           prefix,
		logger:           logger,
		expiredRetention: retention,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ============================================================
// Key Helpers
// ============================================================

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// clientRecordKey returns the record-ID index key: {prefix}client:id:{id} -> clientID
func (s *Store) clientRecordKey(id string) string {
	return fmt.Sprintf("%sclient:id:%s", s.prefix, id)
}

// scopeKey returns the key for a scope: {prefix}scope:{name}
func (s *Store) scopeKey(name string) string {
	return fmt.Sprintf("%sscope:%s", s.prefix, name)
}

// codeRecordKey returns the key for an authorization code record: {prefix}code:{id}
func (s *Store) codeRecordKey(id string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, id)
}

// codeValueKey returns the code-value index key: {prefix}codeval:{clientID}:{code} -> record ID
// The prefix is distinct from codeRecordKey so purge SCANs over code
// records never pick up index keys.
func (s *Store) codeValueKey(clientID, code string) string {
	return fmt.Sprintf("%scodeval:%s:%s", s.prefix, clientID, code)
}

// callbackKey returns the callback-token index key: {prefix}codecb:{token} -> record ID
func (s *Store) callbackKey(token string) string {
	return fmt.Sprintf("%scodecb:%s", s.prefix, token)
}

// accessKey returns the key for an access token record: {prefix}access:{id}
func (s *Store) accessKey(id string) string {
	return fmt.Sprintf("%saccess:%s", s.prefix, id)
}

// refreshKey returns the key for a refresh token record: {prefix}refresh:{id}
func (s *Store) refreshKey(id string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, id)
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================
//
// These Lua scripts provide atomic operations for security-critical OAuth
// flows. A check-then-act pair over two round trips would open a window
// where two concurrent redemptions of the same code or refresh token both
// succeed.

// luaConsumeCode atomically redeems an authorization code record: the
// revoked and expiry checks and the revoked-marking happen in one script,
// so exactly one concurrent caller receives the record.
//
// KEYS[1] = code record key (e.g., "oauth:code:<id>")
// ARGV[1] = current Unix timestamp in seconds
//
// Returns:
//   - Record JSON (with revoked_at set) if the code was live
//   - "NOT_FOUND" if the key doesn't exist
//   - "ALREADY_USED" if the record already carries revoked_at
//   - "EXPIRED" if ARGV[1] >= record.expires_at
const luaConsumeCode = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local rec = cjson.decode(data)

if rec.revoked_at then
    return 'ALREADY_USED'
end

local now = tonumber(ARGV[1])
if rec.expires_at and now >= tonumber(rec.expires_at) then
    return 'EXPIRED'
end

rec.revoked_at = now
local encoded = cjson.encode(rec)
redis.call('SET', KEYS[1], encoded, 'KEEPTTL')

return encoded
`

// luaConsumeRefresh atomically revokes an unrevoked refresh token record
// and returns it. Double-spend of a refresh token must never succeed.
//
// KEYS[1] = refresh token record key (e.g., "oauth:refresh:<id>")
// ARGV[1] = current Unix timestamp in seconds
//
// Returns:
//   - Record JSON (with revoked_at set) if the token was unrevoked
//   - "NOT_FOUND" if the key doesn't exist
//   - "ALREADY_USED" if the record already carries revoked_at
const luaConsumeRefresh = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local rec = cjson.decode(data)

if rec.revoked_at then
    return 'ALREADY_USED'
end

rec.revoked_at = tonumber(ARGV[1])
local encoded = cjson.encode(rec)
redis.call('SET', KEYS[1], encoded, 'KEEPTTL')

return encoded
`

// ============================================================
// Helper methods
// ============================================================

// getAndUnmarshal is a generic helper for fetching a key from Valkey,
// unmarshalling the JSON data, and converting to the target type.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// setJSON marshals a record and stores it under key with the given TTL.
// A non-positive TTL stores without expiry.
func (s *Store) setJSON(ctx context.Context, key string, record any, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if ttl > 0 {
		return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error()
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error()
}

// recordTTL is the key TTL for a record expiring at expiresAt: the
// remaining lifetime plus the retention window. Returns the bare
// retention window for records already expired.
func (s *Store) recordTTL(expiresAt time.Time) time.Duration {
	remaining := time.Until(expiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining + s.expiredRetention
}

// scanKeys iterates all keys matching pattern, invoking fn for each key
// exactly once. SCAN can return duplicates across iterations, so keys are
// deduplicated.
func (s *Store) scanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, key := range result.Elements {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if err := fn(key); err != nil {
				return err
			}
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safeTruncate safely truncates a string to n characters
func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// purgeMatches reports whether a record falls under the purge target.
// Expired means the expiry is at or before now.
func purgeMatches(target storage.PurgeTarget, revokedAt *time.Time, expiresAt, now time.Time) bool {
	revoked := revokedAt != nil
	expired := !expiresAt.After(now)

	switch target {
	case storage.PurgeRevoked:
		return revoked
	case storage.PurgeExpired:
		return expired
	case storage.PurgeAll:
		return revoked || expired
	}
	return false
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
// Uses the valkey-go library's built-in nil detection for robustness.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// unixOrNil converts an optional timestamp to Unix seconds, 0 for nil.
func unixOrNil(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}

// timeOrNil converts Unix seconds back to an optional timestamp.
func timeOrNil(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0)
	return &t
}
