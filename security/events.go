package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent
// typos when logging security-relevant events.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when an access token is issued
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is redeemed
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked
	EventTokenRevoked = "token_revoked"

	// EventRefreshTokenReplayDetected is logged when a refresh token is
	// presented after it was already consumed (double-spend attempt)
	EventRefreshTokenReplayDetected = "refresh_token_replay_detected"

	// Authorization flow events

	// EventAuthorizationStarted is logged when an authorization request
	// passes validation and a pending code is created
	EventAuthorizationStarted = "authorization_started"

	// EventAuthorizationCodeIssued is logged when a redeemable code
	// value is attached after end-user authentication
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReplayDetected is logged when an
	// authorization code is presented twice (attack indicator)
	EventAuthorizationCodeReplayDetected = "authorization_code_replay_detected"

	// EventAuthorizationCancelled is logged when the resource owner
	// cancels the login dialog
	EventAuthorizationCancelled = "authorization_cancelled"

	// EventInvalidPKCE is logged when PKCE verification fails
	EventInvalidPKCE = "invalid_pkce"

	// EventStrategyCallbackFailed is logged when a federated strategy
	// callback cannot be completed
	EventStrategyCallbackFailed = "strategy_callback_failed"

	// Client lifecycle events

	// EventClientRegistered is logged when an OAuth client is registered
	EventClientRegistered = "client_registered"

	// EventClientRevoked is logged when a client is soft-revoked
	EventClientRevoked = "client_revoked"

	// Security violation events

	// EventAuthFailure is logged when authentication fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// Maintenance events

	// EventPurgeCompleted is logged when a maintenance purge finishes
	EventPurgeCompleted = "purge_completed"
)
