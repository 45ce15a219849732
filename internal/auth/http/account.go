package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/pkg/httpx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

const minPasswordLength = 12

// AccountHandler serves self-service account mutations.
type AccountHandler struct {
	AccountService *service.AccountService
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleChangePassword handles POST /auth/password. A successful change
// revokes every refresh token for the account, so other sessions must
// log in again.
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", "New password is too short")
		return
	}

	err := h.AccountService.ChangePassword(ctx, accountID, req.CurrentPassword, req.NewPassword, clientInfo(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Current password is incorrect")
			return
		}
		log.Error("password change failed", "account_id", accountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	clearRefreshCookie(w, r)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AdminHandler serves RBAC-guarded administrative operations.
type AdminHandler struct {
	TokenService *service.TokenService
	Store        store.Store
}

// HandleRevokeSessions handles POST /admin/accounts/{id}/revoke-sessions,
// the entry point for killing every session of a compromised account.
func (h *AdminHandler) HandleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := r.PathValue("id")
	if accountID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "account id is required")
		return
	}

	if _, err := h.Store.Accounts().GetAccountByID(ctx, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Account not found")
			return
		}
		log.Error("account lookup failed", "account_id", accountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	if err := h.TokenService.RevokeAll(ctx, accountID, clientInfo(r)); err != nil {
		log.Error("session revocation failed", "account_id", accountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
