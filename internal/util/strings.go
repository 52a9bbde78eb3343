// Package util provides small helpers shared across the oauth-core library.
package util

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging sensitive values such as tokens and codes, where only
// a short prefix should ever appear in log output.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
