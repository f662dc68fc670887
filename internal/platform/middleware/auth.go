package middleware

import (
	"context"
	"net/http"
	"strings"

	"shopstream/internal/auth/models"
	"shopstream/internal/auth/tokens"
	"shopstream/internal/platform/httputil"
	dErrors "shopstream/pkg/domain-errors"
)

type claimsKey struct{}

// RequireAuth verifies the bearer token and stashes its claims in the
// request context.
func RequireAuth(tm *tokens.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			claims, err := tm.VerifyAccess(token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose role does not match.
// Admins pass every role check.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			if claims.Role != role && claims.Role != models.RoleAdmin {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFrom retrieves the verified claims, or nil outside RequireAuth.
func ClaimsFrom(ctx context.Context) *tokens.Claims {
	if c, ok := ctx.Value(claimsKey{}).(*tokens.Claims); ok {
		return c
	}
	return nil
}
