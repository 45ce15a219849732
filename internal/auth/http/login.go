package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/pkg/httpx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// LoginHandler serves both steps of the login state machine.
type LoginHandler struct {
	LoginService *service.LoginService
	TokenService *service.TokenService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifySecondFactorRequest struct {
	AccountID     string `json:"accountId"`
	Code          string `json:"code"`
	UseBackupCode bool   `json:"useBackupCode"`
}

type loginResponse struct {
	RequiresTwoFactor bool           `json:"requiresTwoFactor"`
	AccessToken       string         `json:"accessToken,omitempty"`
	RefreshToken      string         `json:"refreshToken,omitempty"`
	TokenType         string         `json:"tokenType,omitempty"`
	ExpiresIn         int            `json:"expiresIn,omitempty"`
	Account           domain.Profile `json:"account"`
}

// HandleLogin handles POST /auth/login. All authentication failures
// produce the same 401 body regardless of cause.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.LoginService.Login(ctx, req.Email, req.Password, clientInfo(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	writeLoginResult(w, r, result, h.TokenService.RefreshTTL)
}

// HandleVerifySecondFactor handles POST /auth/verify-2fa, completing a
// login left awaiting its second factor.
func (h *LoginHandler) HandleVerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifySecondFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.AccountID == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "accountId and code are required")
		return
	}

	result, err := h.LoginService.VerifySecondFactor(ctx, req.AccountID, req.Code, req.UseBackupCode, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials),
			errors.Is(err, service.ErrInvalidTwoFactorCode),
			errors.Is(err, service.ErrBackupCodeInvalid):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification failed")
		default:
			log.Error("second factor verification failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	writeLoginResult(w, r, result, h.TokenService.RefreshTTL)
}

func writeLoginResult(w http.ResponseWriter, r *http.Request, result domain.LoginResult, refreshTTL time.Duration) {
	resp := loginResponse{
		RequiresTwoFactor: result.RequiresTwoFactor,
		Account:           result.Account,
	}
	if result.Tokens != nil {
		resp.AccessToken = result.Tokens.AccessToken
		resp.RefreshToken = result.Tokens.RefreshToken
		resp.TokenType = result.Tokens.TokenType
		resp.ExpiresIn = result.Tokens.ExpiresIn
		setRefreshCookie(w, r, result.Tokens.RefreshToken, refreshTTL)
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
