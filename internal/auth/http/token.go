package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/pkg/httpx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// TokenHandler serves refresh rotation and logout.
type TokenHandler struct {
	TokenService *service.TokenService
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"`
}

// HandleRefresh handles POST /auth/refresh. The presented token is
// consumed whether or not rotation succeeds; a replayed token gets the
// same 401 as a garbage one.
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	token := refreshTokenFromRequest(r, req.RefreshToken)
	if token == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "Refresh token is invalid or expired")
		return
	}

	pair, err := h.TokenService.Rotate(ctx, token, clientInfo(r))
	if err != nil {
		if errors.Is(err, service.ErrRefreshTokenInvalid) {
			clearRefreshCookie(w, r)
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "Refresh token is invalid or expired")
			return
		}
		log.Error("refresh rotation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	setRefreshCookie(w, r, pair.RefreshToken, h.TokenService.RefreshTTL)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// HandleLogout handles POST /auth/logout. Revocation is idempotent and
// the endpoint never hard-fails: a missing or unknown token still gets
// a 200.
func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if token := refreshTokenFromRequest(r, req.RefreshToken); token != "" {
		if err := h.TokenService.Revoke(ctx, token); err != nil {
			log.Error("logout revocation failed", "err", err)
		}
	}

	clearRefreshCookie(w, r)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
