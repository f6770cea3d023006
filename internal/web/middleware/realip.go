package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites r.RemoteAddr to the client address from X-Real-IP
// or the first X-Forwarded-For entry, but only when the connection comes
// from one of trustedCIDRs. Other requests keep their RemoteAddr, so clients
// cannot spoof their address past the rate limiter or the file registry.
//
// Entries may be CIDRs or bare addresses; invalid entries are logged and
// skipped.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parseTrusted(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := extractIP(r.RemoteAddr); ip != nil && isTrusted(ip, trusted) {
				if client := forwardedClient(r.Header); client != "" {
					r.RemoteAddr = client
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseTrusted(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("realip: invalid trusted proxy, skipping", "cidr", e)
	}
	return out
}

// forwardedClient returns the validated client address from proxy headers,
// X-Real-IP first.
func forwardedClient(h http.Header) string {
	if rip := h.Get("X-Real-IP"); rip != "" {
		if ip := net.ParseIP(strings.TrimSpace(rip)); ip != nil {
			return ip.String()
		}
		return ""
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return ""
}

// extractIP parses an IP address from a host:port string or plain IP.
func extractIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}

func isTrusted(ip net.IP, trusted []netip.Prefix) bool {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
