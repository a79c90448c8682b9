// Package httputil holds small helpers shared by the HTTP handlers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from the request.
// When trustProxy is true, the first hop of X-Forwarded-For, the first
// for= element of an RFC 7239 Forwarded header, and X-Real-IP are checked in
// that order before falling back to RemoteAddr. Only enable trustProxy
// behind a trusted reverse proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := firstHop(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := forwardedFor(r.Header.Get("Forwarded")); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	return stripPort(r.RemoteAddr)
}

func firstHop(list string) string {
	if i := strings.IndexByte(list, ','); i >= 0 {
		list = list[:i]
	}
	return strings.TrimSpace(list)
}

// forwardedFor returns the for= value of the first Forwarded element.
func forwardedFor(header string) string {
	for _, pair := range strings.Split(firstHop(header), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(k, "for") {
			continue
		}
		v = strings.Trim(v, `"`)
		// IPv6 nodes are bracketed, optionally with a port.
		if strings.HasPrefix(v, "[") {
			if end := strings.IndexByte(v, ']'); end > 0 {
				return v[1:end]
			}
		}
		return stripPort(v)
	}
	return ""
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
