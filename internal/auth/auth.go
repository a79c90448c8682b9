// Package auth enforces bearer authentication on the mutating and
// compute-heavy routes of the API. A request passes with the static token or
// with an HS256 JWT signed by the configured secret.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zfurman56/hab-predictor/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled   bool
	Token     string
	JWTSecret []byte
}

// authorized reports whether token is the static token or a valid JWT.
func (c Config) authorized(token string) bool {
	if c.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(c.Token)) == 1 {
		return true
	}
	if len(c.JWTSecret) == 0 {
		return false
	}
	_, err := Parse(c.JWTSecret, token)
	return err == nil
}

// publicReads are served to GET and HEAD without credentials. An entry
// ending in "/" matches every path below it.
var publicReads = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/v1/wind/metadata",
	"/api/v1/wind/velocity",
	"/api/v1/cache/stats",
	"/api/v1/predictions/",
}

func public(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	for _, p := range publicReads {
		if r.URL.Path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(r.URL.Path, p)) {
			return true
		}
	}
	return false
}

// bearer extracts the token from an "Authorization: Bearer" header.
func bearer(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return token, ok && token != ""
}

// Middleware rejects requests to non-public routes that lack a valid
// credential. It is a pass-through when cfg.Enabled is false.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public(r) {
				next.ServeHTTP(w, r)
				return
			}
			if token, ok := bearer(r); !ok || !cfg.authorized(token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hab-predictor"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
