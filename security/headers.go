package security

import (
	"net/http"
	"strings"
)

// SetSecurityHeaders applies standard security headers to token endpoint
// responses. Responses carry bearer tokens, so caching is disabled
// unconditionally.
func SetSecurityHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()

	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	// HSTS only makes sense over TLS
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
