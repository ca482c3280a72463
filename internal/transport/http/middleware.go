package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	obsmw "puppins-auth/internal/observability/middleware"
	"puppins-auth/internal/service"
)

type claimsKey struct{}

// RequireAuth verifies the bearer session token and stores its claims on the
// request context. Failures are a generic 401; the reason is only logged.
func RequireAuth(tokens service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				writeMessage(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			tokenStr := strings.TrimSpace(raw[len("Bearer "):])

			claims, err := tokens.Verify(tokenStr)
			if err != nil {
				slog.Warn("bearer token rejected",
					"error", err,
					"request_id", obsmw.RequestIDFromContext(r.Context()),
				)
				writeMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*service.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*service.SessionClaims)
	return claims, ok
}
