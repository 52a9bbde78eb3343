package util

import "net"

// IsLoopbackHostname reports whether a hostname represents a loopback
// address: "localhost", the 127.0.0.0/8 range, or IPv6 ::1. Expects the
// hostname without a port, as returned by url.URL.Hostname().
//
// Note: 0.0.0.0 is "unspecified", not loopback, and returns false.
func IsLoopbackHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}

	// Strip brackets from IPv6 literals like [::1]
	clean := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		clean = hostname[1 : len(hostname)-1]
	}

	if ip := net.ParseIP(clean); ip != nil {
		return ip.IsLoopback()
	}

	return false
}
