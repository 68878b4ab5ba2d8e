// Package middleware contains HTTP middleware for the API server.
package middleware

import (
	"encoding/json"
	"net/http"

	"tenantplane/internal/auth"
	"tenantplane/pkg/api"
)

// APIKey rejects requests whose X-Api-Key header does not match the
// configured key. Comparison is constant-time.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Api-Key")
			if presented == "" || !auth.Equal(presented, key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: "Unauthorized",
					Code:  "401",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
