package util

import "testing"

func TestIsLoopbackHostname(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		want     bool
	}{
		{"localhost literal", "localhost", true},
		{"IPv4 loopback", "127.0.0.1", true},
		{"IPv4 loopback high range", "127.255.255.254", true},
		{"IPv6 loopback", "::1", true},
		{"IPv6 loopback bracketed", "[::1]", true},
		{"IPv4-mapped IPv6 loopback", "::ffff:127.0.0.1", true},
		{"unspecified is not loopback", "0.0.0.0", false},
		{"private address", "192.168.1.1", false},
		{"public address", "8.8.8.8", false},
		{"regular hostname", "example.com", false},
		{"localhost subdomain", "localhost.example.com", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLoopbackHostname(tt.hostname); got != tt.want {
				t.Errorf("IsLoopbackHostname(%q) = %v, want %v", tt.hostname, got, tt.want)
			}
		})
	}
}
