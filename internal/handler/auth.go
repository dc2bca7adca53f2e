package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"incident-console/internal/identity"
	"incident-console/internal/util"
)

type contextKey string

const tokenInfoKey contextKey = "token_info"

const adminRole = "admin"

// TokenInfoFromContext returns the verified caller identity set by
// AdminAuth, or nil when the request skipped the middleware.
func TokenInfoFromContext(ctx context.Context) *identity.TokenInfo {
	info, _ := ctx.Value(tokenInfoKey).(*identity.TokenInfo)
	return info
}

// AdminAuth verifies the Authorization bearer token against the
// identity provider and requires the admin role claim. Operator tokens
// are valid credentials but cannot reach provisioning endpoints.
func AdminAuth(identityClient identity.Client, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			info, err := identityClient.VerifyToken(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				message := "invalid token"
				if errors.Is(err, context.DeadlineExceeded) {
					status = http.StatusServiceUnavailable
					message = "token verification unavailable"
				}
				if identity.KindOf(err) == identity.KindExpiredToken {
					message = "token expired"
				}
				logger.Warn("Token verification failed",
					util.String("path", r.URL.Path),
					util.ErrorField(err))
				writeAuthError(w, status, message)
				return
			}

			if info.Role != adminRole {
				logger.Warn("Non-admin token on admin endpoint",
					util.String("user_id", info.UserID),
					util.String("role", info.Role),
					util.String("path", r.URL.Path))
				writeAuthError(w, http.StatusForbidden, "admin role required")
				return
			}

			ctx := context.WithValue(r.Context(), tokenInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"success":false,"error":"` + message + `"}`))
}
