package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/services"
)

type contextKey string

// CallerKey carries the authenticated backend caller's subject.
const CallerKey contextKey = "caller"

// AuthMiddleware guards the backend-facing routes: the ride backend
// signs a shared-secret JWT and presents it as a Bearer token. Socket
// clients never pass through here.
func AuthMiddleware(tokenSvc *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}
			subject, err := tokenSvc.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), CallerKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
