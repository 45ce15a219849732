package httpx

import (
	"context"

	"github.com/cataloghq/authcore/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyAccountID ctxKey = "account_id"
	CtxKeyRole      ctxKey = "role"
	CtxKeyClaims    ctxKey = "claims"
)

// AccountIDFromContext returns the authenticated account ID, or "" when the
// request did not pass the authn middleware.
func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyAccountID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the authenticated account's role name.
func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRole).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the full verified claims.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}
