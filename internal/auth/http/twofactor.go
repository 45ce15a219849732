package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/pkg/httpx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// TwoFactorHandler serves TOTP enrollment, disable, backup code
// management, and standalone verification.
type TwoFactorHandler struct {
	TwoFactorService *service.TwoFactorService
	LoginService     *service.LoginService
}

type twoFactorCodeRequest struct {
	Code          string `json:"code"`
	UseBackupCode bool   `json:"useBackupCode"`
}

type verifyCodeRequest struct {
	Email         string `json:"email"`
	Code          string `json:"code"`
	UseBackupCode bool   `json:"useBackupCode"`
}

// HandleSetup handles POST /auth/2fa/setup, starting enrollment. The
// returned secret stays pending until confirmed.
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
		return
	}

	enrollment, err := h.TwoFactorService.BeginEnrollment(ctx, accountID)
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorAlreadyEnabled) {
			httpx.WriteError(w, http.StatusBadRequest, "two_factor_already_enabled", "Two-factor authentication is already enabled")
			return
		}
		log.Error("failed to begin 2fa enrollment", "account_id", accountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

// HandleEnable handles POST /auth/2fa/enable. A valid code flips the
// pending secret authoritative and returns the backup codes, once.
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
		return
	}

	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	backupCodes, err := h.TwoFactorService.ConfirmEnrollment(ctx, accountID, req.Code, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "Invalid verification code")
		case errors.Is(err, service.ErrTwoFactorAlreadyEnabled):
			httpx.WriteError(w, http.StatusBadRequest, "two_factor_already_enabled", "Two-factor authentication is already enabled")
		case errors.Is(err, service.ErrTwoFactorNotPending):
			httpx.WriteError(w, http.StatusBadRequest, "enrollment_not_started", "Start enrollment before confirming")
		default:
			log.Error("failed to confirm 2fa enrollment", "account_id", accountID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string][]string{"backupCodes": backupCodes})
}

// HandleDisable handles POST /auth/2fa/disable. Requires a current TOTP
// or backup code as proof of possession.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
		return
	}

	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	err := h.TwoFactorService.Disable(ctx, accountID, req.Code, req.UseBackupCode, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode), errors.Is(err, service.ErrBackupCodeInvalid):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "Invalid verification code")
		case errors.Is(err, service.ErrTwoFactorNotEnabled):
			httpx.WriteError(w, http.StatusBadRequest, "two_factor_not_enabled", "Two-factor authentication is not enabled")
		default:
			log.Error("failed to disable 2fa", "account_id", accountID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleRegenerateBackupCodes handles POST /auth/2fa/backup-codes,
// replacing the whole set after a valid TOTP code.
func (h *TwoFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.AccountIDFromContext(ctx)
	if accountID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid access token")
		return
	}

	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	backupCodes, err := h.TwoFactorService.RegenerateBackupCodes(ctx, accountID, req.Code, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "Invalid verification code")
		case errors.Is(err, service.ErrTwoFactorNotEnabled):
			httpx.WriteError(w, http.StatusBadRequest, "two_factor_not_enabled", "Two-factor authentication is not enabled")
		default:
			log.Error("failed to regenerate backup codes", "account_id", accountID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string][]string{"backupCodes": backupCodes})
}

// HandleVerify handles POST /auth/2fa/verify. Unauthenticated, answers
// only whether the code verified; never issues tokens and never says
// why verification failed.
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and code are required")
		return
	}

	err := h.LoginService.VerifyCode(ctx, req.Email, req.Code, req.UseBackupCode, clientInfo(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidTwoFactorCode) || errors.Is(err, service.ErrBackupCodeInvalid) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification failed")
			return
		}
		log.Error("standalone code verification failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}
