package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// tokenFromRequest extracts the bearer token from either the token cookie
// or an Authorization: Bearer header (§4.E/§4.G), trimmed of whitespace.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie("token"); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

// ServiceToken returns middleware gating the protected mutation routes
// (§4.G): new upload, rename, delete, access change, link management,
// directory listing, storage stats, file-system info. If token is empty
// (dev mode), all requests are allowed through.
func ServiceToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if subtle.ConstantTimeCompare([]byte(tokenFromRequest(r)), []byte(token)) != 1 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
