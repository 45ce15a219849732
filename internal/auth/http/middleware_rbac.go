package http

import (
	"net/http"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/rbac"
	"github.com/cataloghq/authcore/pkg/httpx"
)

// RequirePermission gates a route on the rbac table. Must sit inside
// AuthnMiddleware in the chain so the role is already in context.
func RequirePermission(resource, action string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := domain.ParseRole(httpx.RoleFromContext(r.Context()))
			if !ok || !rbac.Can(role, resource, action) {
				httpx.WriteError(w, http.StatusForbidden, "permission_denied", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
