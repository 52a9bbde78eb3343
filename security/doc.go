// Package security provides the cross-cutting security features of
// oauth-core: audit logging with PII hashing, per-identifier and
// registration rate limiting, client IP extraction behind proxies,
// security response headers, request ID propagation, and clock-skew
// tolerant expiry checks.
//
// The grant engine and the HTTP adapter both depend on this package; it
// holds no OAuth protocol logic of its own.
package security
