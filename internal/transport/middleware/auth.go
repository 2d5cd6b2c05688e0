package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coursekit/coursekit-backend/internal/auth"
)

// tokenVerifier defines the minimal interface needed by Auth.
type tokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Auth validates the Bearer token on incoming requests and stores the
// resulting principal in the request context. Requests without a valid
// token get 401.
func Auth(verifier tokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
