package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr host:port", "203.0.113.7:51234", "", "203.0.113.7"},
		{"remote addr without port", "203.0.113.7", "", "203.0.113.7"},
		{"ipv6 remote addr", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"mapped ipv4 remote addr", "[::ffff:10.0.0.1]:443", "", "10.0.0.1"},
		{"forwarded single", "192.0.2.1:1", "198.51.100.4", "198.51.100.4"},
		{"forwarded chain takes first", "192.0.2.1:1", "198.51.100.4, 10.0.0.1, 10.0.0.2", "198.51.100.4"},
		{"forwarded with spaces", "192.0.2.1:1", "  198.51.100.4 , 10.0.0.1", "198.51.100.4"},
		{"forwarded mapped ipv4", "192.0.2.1:1", "::ffff:198.51.100.4", "198.51.100.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}
