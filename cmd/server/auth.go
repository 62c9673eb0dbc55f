package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin guards operator routes with a static bearer token.
// With no token configured every request is rejected.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondError(w, http.StatusUnauthorized, "admin access is not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "missing Authorization header", nil)
				return
			}

			scheme, presented, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" {
				respondError(w, http.StatusUnauthorized, "invalid Authorization header format (expected 'Bearer <token>')", nil)
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid admin token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
