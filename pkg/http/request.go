package http

import (
	"net"
	"net/http"
	"strings"

	"github.com/BradenHooton/sentinel/internal/ipnet"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // addresses or CIDR ranges of trusted proxies
}

// ExtractClientIP extracts the real client IP address from the request.
// X-Forwarded-For and X-Real-IP are honored only when the peer is a trusted
// proxy, so clients cannot spoof their address through headers.
//
// Flow:
// 1. If request is from trusted proxy, check X-Forwarded-For header
// 2. If request is from trusted proxy, check X-Real-IP header
// 3. Fall back to RemoteAddr
//
// Addresses are returned in canonical form; IPv4-mapped IPv6 peers read as IPv4.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		// X-Forwarded-For can list several hops; take the first valid one
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				if canonical, ok := canonicalIP(ip); ok {
					return canonical
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if canonical, ok := canonicalIP(xri); ok {
				return canonical
			}
		}
	}

	if canonical, ok := canonicalIP(remoteIP); ok {
		return canonical
	}
	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy checks the peer against trusted proxy addresses and CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	peer, err := ipnet.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if ipnet.IsNetworkNotation(entry) {
			n, err := ipnet.ParseNetwork(entry)
			if err != nil {
				continue // Skip invalid CIDR ranges
			}
			if n.Contains(peer) {
				return true
			}
			continue
		}
		if a, err := ipnet.ParseAddr(entry); err == nil && a.Equal(peer) {
			return true
		}
	}

	return false
}

func canonicalIP(ip string) (string, bool) {
	addr, err := ipnet.ParseAddr(ip)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
