package security

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xForwardedFor     string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.5:44321",
			want:       "203.0.113.5",
		},
		{
			name:          "xff ignored when proxy untrusted",
			remoteAddr:    "203.0.113.5:44321",
			xForwardedFor: "198.51.100.7",
			want:          "203.0.113.5",
		},
		{
			name:              "single proxy",
			remoteAddr:        "10.0.0.1:80",
			xForwardedFor:     "198.51.100.7, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "198.51.100.7",
		},
		{
			name:              "two proxies",
			remoteAddr:        "10.0.0.1:80",
			xForwardedFor:     "198.51.100.7, 10.0.0.2, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.7",
		},
		{
			name:              "fewer entries than trusted proxies",
			remoteAddr:        "10.0.0.1:80",
			xForwardedFor:     "198.51.100.7",
			trustProxy:        true,
			trustedProxyCount: 3,
			want:              "198.51.100.7",
		},
		{
			name:              "spoofed client entry still skipped",
			remoteAddr:        "10.0.0.1:80",
			xForwardedFor:     "1.2.3.4, 198.51.100.7, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "198.51.100.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			xRealIP:    "198.51.100.7",
			trustProxy: true,
			want:       "198.51.100.7",
		},
		{
			name:          "garbage xff falls through to remote addr",
			remoteAddr:    "10.0.0.1:80",
			xForwardedFor: "not-an-ip",
			trustProxy:    true,
			want:          "10.0.0.1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.5",
			want:       "203.0.113.5",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/oauth/token", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				r.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := ClientIP(r, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
