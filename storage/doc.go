// Package storage defines the persistence contract for oauth-core.
//
// The grant engine never touches a database directly: it talks to the
// ClientStore, ScopeStore, AuthCodeStore, and TokenStore interfaces
// defined here. Two reference backends ship with the library:
//
//   - storage/memory: an in-memory store for tests, development, and
//     single-process deployments.
//   - storage/valkey: a Valkey-backed store for multi-instance
//     deployments, using Lua scripts for the atomic operations.
//
// Concurrency-sensitive operations (authorization code redemption and
// refresh token consumption) are part of the contract itself: backends
// must implement them as single atomic steps, never as check-then-act
// pairs. See the SECURITY notes on ConsumeAuthorizationCode and
// ConsumeRefreshToken.
package storage
