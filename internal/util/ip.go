package util

import "net"

// IPClassification represents the security classification of an IP address.
// It backs the SSRF check on caller-supplied URLs such as author avatars:
// a URL whose host resolves inside the deployment's own network must never
// be accepted for later fetching.
type IPClassification int

const (
	// IPClassificationPublic indicates a publicly routable IP address.
	IPClassificationPublic IPClassification = iota
	// IPClassificationLoopback indicates a loopback address (127.0.0.0/8, ::1).
	IPClassificationLoopback
	// IPClassificationPrivate indicates a private/internal address (RFC 1918, ULA).
	IPClassificationPrivate
	// IPClassificationLinkLocal indicates a link-local address (169.254.x.x, fe80::/10).
	IPClassificationLinkLocal
	// IPClassificationUnspecified indicates an unspecified address (0.0.0.0, ::).
	IPClassificationUnspecified
)

// String returns a human-readable name for the IP classification.
func (c IPClassification) String() string {
	switch c {
	case IPClassificationPublic:
		return "public"
	case IPClassificationLoopback:
		return "loopback"
	case IPClassificationPrivate:
		return "private"
	case IPClassificationLinkLocal:
		return "link_local"
	case IPClassificationUnspecified:
		return "unspecified"
	default:
		return "unknown"
	}
}

// ClassifyIP returns the security classification of an IP address. This is
// the single source of truth for IP classification in the pipeline.
//
// Classifications:
//   - Unspecified: 0.0.0.0, :: (always dangerous, undefined behavior)
//   - Loopback: 127.0.0.0/8, ::1
//   - LinkLocal: 169.254.0.0/16, fe80::/10 (cloud metadata SSRF risk)
//   - Private: RFC 1918 (10/8, 172.16/12, 192.168/16), fc00::/7
//   - Public: all other addresses
func ClassifyIP(ip net.IP) IPClassification {
	if ip == nil {
		return IPClassificationUnspecified
	}

	if ip.IsUnspecified() {
		return IPClassificationUnspecified
	}

	if ip.IsLoopback() {
		return IPClassificationLoopback
	}

	// Critical for cloud deployments: 169.254.169.254 is the metadata
	// service on every major provider.
	if IsLinkLocal(ip) {
		return IPClassificationLinkLocal
	}

	if ip.IsPrivate() {
		return IPClassificationPrivate
	}

	return IPClassificationPublic
}

// IsLinkLocal checks if an IP address is link-local (unicast or multicast).
func IsLinkLocal(ip net.IP) bool {
	return ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// IsInternalHost reports whether a URL hostname names a non-public address:
// "localhost", a literal loopback, private, link-local, or unspecified IP.
// Hostnames that are not IP literals are treated as public; resolving them
// is the fetcher's concern, not the validator's. Expects the hostname
// without port, as returned by url.URL.Hostname().
func IsInternalHost(hostname string) bool {
	if hostname == "localhost" {
		return true
	}

	// url.URL.Hostname() strips brackets, but accept bracketed IPv6 from
	// callers holding raw values.
	clean := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		clean = hostname[1 : len(hostname)-1]
	}

	ip := net.ParseIP(clean)
	if ip == nil {
		return false
	}
	return ClassifyIP(ip) != IPClassificationPublic
}
