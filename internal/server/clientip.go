package server

import (
	"net"
	"net/http"
	"strings"
)

// clientIP derives the requester's address: the first entry of
// X-Forwarded-For when present, otherwise the host part of RemoteAddr.
// File ownership is keyed on this value, so it must stay consistent with
// what was recorded at upload time.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return canonicalIP(strings.TrimSpace(xff))
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return canonicalIP(host)
}

// canonicalIP strips the IPv4-mapped-IPv6 prefix so "::ffff:10.0.0.1" and
// "10.0.0.1" compare equal.
func canonicalIP(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}
