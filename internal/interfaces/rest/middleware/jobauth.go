package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/streamvault/billing-gateway/internal/interfaces/rest"
)

// JobAuth guards the internal job-trigger endpoints with a shared bearer
// secret. The comparison is constant-time.
func JobAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				rest.WriteJSON(w, http.StatusUnauthorized, rest.ErrorResponse{
					Success: false,
					Error: rest.ErrorDetail{
						Code:    "UNAUTHORIZED",
						Message: "invalid or missing job token",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
