package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientAddress returns the address of the caller for logs and spans. The
// first parseable entry of X-Forwarded-For wins, then X-Real-IP, then the
// host part of RemoteAddr. Entries that are not IPs are ignored.
func ClientAddress(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := parseHost(hop); ip != "" {
			return ip
		}
	}
	if ip := parseHost(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := parseHost(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// parseHost accepts "ip", "ip:port" and "[ipv6]:port".
func parseHost(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	value = strings.Trim(value, "[]")
	if ip := net.ParseIP(value); ip != nil {
		return ip.String()
	}
	return ""
}
