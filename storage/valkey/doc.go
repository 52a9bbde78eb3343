// Package valkey provides a Valkey storage backend for the OAuth
// authorization server.
//
// Valkey is a high-performance key-value store that is wire-compatible
// with Redis. This backend suits deployments that need storage shared
// across server instances, persistence across restarts, and TTL-based
// expiration handled by the store itself.
//
// # Implemented Interfaces
//
// The Store type implements all four storage interfaces:
//
//   - [storage.ClientStore]: registered client records and secret validation
//   - [storage.ScopeStore]: named scope records
//   - [storage.AuthCodeStore]: pending authorizations and code redemption
//   - [storage.TokenStore]: access and refresh token records
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:") to avoid
// conflicts with other applications sharing the same Valkey instance:
//
//	{prefix}client:{clientID}          -> JSON(Client)
//	{prefix}client:id:{recordID}       -> clientID (record-ID index)
//	{prefix}scope:{name}               -> JSON(Scope)
//	{prefix}code:{recordID}            -> JSON(AuthorizationCode)
//	{prefix}codeval:{clientID}:{code}  -> recordID (code-value index)
//	{prefix}codecb:{callbackToken}     -> recordID (callback-token index)
//	{prefix}access:{recordID}          -> JSON(AccessToken)
//	{prefix}refresh:{recordID}         -> JSON(RefreshToken)
//
// # Atomic Operations
//
// Two operations must be atomic to keep their security guarantees:
//
//   - ConsumeAuthorizationCode: a code is redeemable exactly once
//   - ConsumeRefreshToken: a refresh token cannot be double-spent
//
// Both run as Lua scripts, giving the same single-winner guarantee as the
// in-memory backend's mutex.
//
// # Retention
//
// Record keys carry a TTL of the record lifetime plus a retention window
// (Config.ExpiredRetention, default 24 hours). Within the window a
// consumed or expired record is still readable, so a replayed code is
// reported as already used rather than unknown, and maintenance purges
// have records to count. After the window the key TTL reclaims the space.
//
// # Configuration
//
// Basic usage:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauth:",
//	})
//
// With TLS:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
package valkey
