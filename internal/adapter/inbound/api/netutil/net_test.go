package netutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP_HeaderPrecedence(t *testing.T) {
	tests := []struct {
		name          string
		xForwardedFor string
		xRealIP       string
		remoteAddr    string
		expected      string
	}{
		{
			name:          "x_forwarded_for_wins",
			xForwardedFor: "203.0.113.7",
			xRealIP:       "198.51.100.2",
			remoteAddr:    "192.0.2.1:4567",
			expected:      "203.0.113.7",
		},
		{
			name:          "first_valid_forwarded_entry",
			xForwardedFor: "not-an-ip, 203.0.113.7, 198.51.100.2",
			remoteAddr:    "192.0.2.1:4567",
			expected:      "203.0.113.7",
		},
		{
			name:          "forwarded_entries_are_trimmed",
			xForwardedFor: "  203.0.113.7  ,  198.51.100.2  ",
			remoteAddr:    "192.0.2.1:4567",
			expected:      "203.0.113.7",
		},
		{
			name:          "ipv6_in_forwarded_header",
			xForwardedFor: "2001:db8::1",
			remoteAddr:    "192.0.2.1:4567",
			expected:      "2001:db8::1",
		},
		{
			name:       "x_real_ip_when_no_forwarded",
			xRealIP:    "198.51.100.2",
			remoteAddr: "192.0.2.1:4567",
			expected:   "198.51.100.2",
		},
		{
			name:       "remote_addr_fallback",
			remoteAddr: "192.0.2.1:4567",
			expected:   "192.0.2.1",
		},
		{
			name:          "invalid_headers_fall_through",
			xForwardedFor: "garbage",
			xRealIP:       "also garbage",
			remoteAddr:    "192.0.2.1:4567",
			expected:      "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

func TestClientIP_RemoteAddrForms(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		expected   string
	}{
		{name: "ipv4_with_port", remoteAddr: "192.0.2.1:8080", expected: "192.0.2.1"},
		{name: "ipv6_with_port", remoteAddr: "[2001:db8::1]:8080", expected: "2001:db8::1"},
		{name: "bare_ipv4", remoteAddr: "192.0.2.1", expected: "192.0.2.1"},
		{name: "bare_ipv6", remoteAddr: "2001:db8::1", expected: "2001:db8::1"},
		{name: "port_only", remoteAddr: ":8080", expected: ""},
		{name: "empty", remoteAddr: "", expected: ""},
		{name: "hostname_not_ip", remoteAddr: "nonsense", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

func TestClientIP_NilRequest(t *testing.T) {
	assert.Empty(t, ClientIP(nil))
}
