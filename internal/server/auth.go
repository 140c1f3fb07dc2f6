// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// adminPathPrefix marks the route subtree the admin token guards.
// Everything outside it is anonymous and read-only.
const adminPathPrefix = "/api/v1/admin/"

// adminAuthMiddleware enforces the admin bearer token on the admin subtree.
// Tokens are compared as SHA-256 digests in constant time so neither length
// nor prefix matches leak through response timing. An empty token disables
// the admin API entirely: requests get 503, not an open door.
func adminAuthMiddleware(token string) func(http.Handler) http.Handler {
	configured := token != ""
	want := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, adminPathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			if !configured {
				writeAuthError(w, http.StatusServiceUnavailable,
					"admin API disabled: no admin token configured")
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, http.StatusUnauthorized, "authorization header required")
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
				writeAuthError(w, http.StatusUnauthorized, "bearer token required")
				return
			}

			got := sha256.Sum256([]byte(header[len(prefix):]))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				slog.Warn("admin token rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
				writeAuthError(w, http.StatusUnauthorized, "invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(`{"error":` + strconv.Quote(msg) + `}`)); err != nil {
		slog.Warn("failed to write auth error response", "error", err)
	}
}
