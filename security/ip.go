package security

import (
	"net"
	"strings"
)

// ClientIdentity derives the rate-limit identity for an unauthenticated
// caller from connection metadata. The library exposes no HTTP surface, so
// callers pass the raw values from whatever transport fronts the pipeline.
//
// SECURITY CONSIDERATIONS:
//   - Only set trustProxy when the pipeline sits behind a trusted reverse
//     proxy; otherwise X-Forwarded-For is attacker-controlled and lets one
//     host spread abuse across arbitrary identities.
//   - X-Forwarded-For format: "client, proxy1, proxy2, ...". The rightmost
//     entries are the proxies we control; trustedProxyCount says how many.
func ClientIdentity(remoteAddr, forwardedFor, realIP string, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientIPFromForwardedFor(forwardedFor, trustedProxyCount); ip != "" {
			return ip
		}
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// clientIPFromForwardedFor picks the client entry from an X-Forwarded-For
// list: len(entries) - trustedProxyCount - 1, clamped to the leftmost entry.
// A trustedProxyCount of zero assumes a single trusted proxy.
func clientIPFromForwardedFor(forwardedFor string, trustedProxyCount int) string {
	if forwardedFor == "" {
		return ""
	}

	entries := strings.Split(forwardedFor, ",")

	proxies := trustedProxyCount
	if proxies == 0 {
		proxies = 1
	}
	idx := len(entries) - proxies - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(entries[idx])
	if net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}
