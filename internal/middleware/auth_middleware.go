package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "claims"

type AuthMiddleware struct {
	jwtService *service.JWTService
	logger     *logrus.Logger
}

func NewAuthMiddleware(jwtService *service.JWTService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		logger:     logger,
	}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, apperr.Unauthorized("Missing authorization header"))
			return
		}

		// "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, apperr.Unauthorized("Invalid authorization header format"))
			return
		}

		claims, err := m.jwtService.VerifyToken(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			writeError(w, apperr.Unauthorized("Invalid or expired token"))
			return
		}

		if claims.Type != service.TokenTypeAccess {
			writeError(w, apperr.Unauthorized("Invalid token type"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, apperr.Unauthorized("Not authorized"))
				return
			}

			if claims.Role.OneOf(roles...) {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.WithFields(logrus.Fields{
				"user_id": claims.Subject,
				"role":    claims.Role,
				"path":    r.URL.Path,
			}).Warn("Role not permitted")
			writeError(w, apperr.Forbidden("User role "+string(claims.Role)+" is not authorized to access this route"))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok
}

func WithClaims(ctx context.Context, claims *service.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}
