// Package netutil provides network helpers for the API layer.
package netutil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from an HTTP request, checking
// X-Forwarded-For first, then X-Real-IP, then RemoteAddr with the port
// stripped. Returns an empty string when no valid address is present.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	// First valid entry wins; proxies append, so the left-most is the
	// original client.
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		ip := strings.TrimSpace(part)
		if ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}

	return hostFromRemoteAddr(r.RemoteAddr)
}

func hostFromRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}

	// RemoteAddr without a port, as some proxies and tests set it.
	if net.ParseIP(remoteAddr) != nil {
		return remoteAddr
	}

	return ""
}
