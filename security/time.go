package security

import "time"

// DefaultClockSkewGracePeriod compensates for clock drift between the
// server issuing tokens and the server validating them.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired reports whether the given expiry time has passed, applying
// the default clock skew grace period.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod reports whether expiresAt has passed, after
// extending it by gracePeriod. A zero expiry never expires.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// IsExpiringSoon reports whether expiresAt falls within the given
// window from now. Useful for proactive refresh.
func IsExpiringSoon(expiresAt time.Time, window time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Until(expiresAt) < window
}
