package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/cataloghq/authcore/pkg/jwtx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// AuthnMiddleware verifies the bearer access token and injects identity into
// the request context. It performs no store lookups; the token is
// self-contained.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyAccountID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeyRole, claims.Role)
			ctx = context.WithValue(ctx, CtxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
