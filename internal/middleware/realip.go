// AngelaMos | 2026
// realip.go

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP replaces RemoteAddr with the forwarded client address, but
// only for requests whose direct peer falls inside trusted. With no trusted
// prefixes the forwarding headers are ignored entirely.
func TrustedRealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, ok := remoteAddr(r)
			if ok && containsAddr(trusted, peer) {
				if client, found := forwardedClient(r, trusted); found {
					r.RemoteAddr = net.JoinHostPort(client.String(), "0")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClient walks X-Forwarded-For from the right and returns the first
// hop not owned by a trusted proxy. X-Real-IP is used when XFF is absent.
func forwardedClient(r *http.Request, trusted []netip.Prefix) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return netip.Addr{}, false
			}
			addr = addr.Unmap()
			if !containsAddr(trusted, addr) {
				return addr, true
			}
		}
		return netip.Addr{}, false
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		addr, err := netip.ParseAddr(strings.TrimSpace(xri))
		if err != nil {
			return netip.Addr{}, false
		}
		return addr.Unmap(), true
	}

	return netip.Addr{}, false
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
