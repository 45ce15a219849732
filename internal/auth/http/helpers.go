package http

import (
	"net/http"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/pkg/httpx"
)

const refreshCookieName = "refresh_token"

func clientInfo(r *http.Request) domain.ClientInfo {
	return domain.ClientInfo{
		IP:        httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
}

// setRefreshCookie stores the refresh token in an HttpOnly cookie scoped
// to the auth endpoints. The cookie lifetime matches the configured
// refresh TTL so it expires with the record it carries. Clients that
// cannot use cookies may read the token from the JSON body instead.
func setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFromRequest pulls the refresh token from the cookie first,
// falling back to the JSON body field.
func refreshTokenFromRequest(r *http.Request, bodyToken string) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return bodyToken
}
