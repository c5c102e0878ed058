package middleware

import (
	"context"
	"net/http"
	"strings"

	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/auth"
)

// AuthMiddleware guards the dashboard API. When disabled it lets every
// request through.
type AuthMiddleware struct {
	tokenSvc *auth.TokenService
	enabled  bool
}

func NewAuthMiddleware(tokenSvc *auth.TokenService, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc, enabled: enabled}
}

func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	if !m.enabled {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenSvc.ValidateToken(parts[1])
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}
