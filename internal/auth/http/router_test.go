package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cataloghq/authcore/internal/auth/audit"
	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/idx"
	"github.com/cataloghq/authcore/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

// Deliberately different from jwtx.DefaultRefreshTokenTTL so tests catch
// a handler falling back to the default instead of the configured value.
const testRefreshTTL = 48 * time.Hour

type testServer struct {
	router *Router
	store  *sqlite.Store
	nextIP int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	const issuer = "authcore-test"
	signer, err := jwtx.NewSignerEdDSA("test-key", priv)
	require.NoError(t, err)
	verifier := jwtx.NewVerifierEdDSA(map[string]ed25519.PublicKey{"test-key": pub}, issuer)

	tokens := &service.TokenService{
		Store:      st,
		Signer:     signer,
		Audit:      audit.NoopSink{},
		Issuer:     issuer,
		Audience:   "authcore",
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: testRefreshTTL,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := NewRouter(verifier, st, logger)
	router.LoginService = &service.LoginService{Store: st, Tokens: tokens, Audit: audit.NoopSink{}}
	router.TokenService = tokens
	router.TwoFactorService = &service.TwoFactorService{Store: st, Tokens: tokens, Audit: audit.NoopSink{}, Issuer: issuer}
	router.AccountService = &service.AccountService{Store: st, Tokens: tokens, Audit: audit.NoopSink{}}
	router.ApplyRoutes()

	return &testServer{router: router, store: st}
}

func (s *testServer) seedAccount(t *testing.T, email string, role domain.Role) domain.AdminAccount {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	account := domain.AdminAccount{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, s.store.Accounts().CreateAccount(context.Background(), account))
	return account
}

// do performs a JSON request. Every call gets a distinct client IP so
// the per-IP rate limiter never interferes with unrelated assertions.
func (s *testServer) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	s.nextIP++
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", s.nextIP%250+1))
	for _, fn := range mutate {
		fn(req)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func (s *testServer) login(t *testing.T, email string) map[string]any {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody(t, rec)
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	t.Run("success sets refresh cookie", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    "admin@example.com",
			"password": testPassword,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, false, body["requiresTwoFactor"])
		require.NotEmpty(t, body["accessToken"])
		require.NotEmpty(t, body["refreshToken"])

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == refreshCookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		require.True(t, cookie.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		require.Equal(t, body["refreshToken"], cookie.Value)
		require.Equal(t, int(testRefreshTTL/time.Second), cookie.MaxAge)
	})

	t.Run("wrong password and unknown email look identical", func(t *testing.T) {
		a := srv.do(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    "admin@example.com",
			"password": "wrong",
		})
		b := srv.do(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    "ghost@example.com",
			"password": testPassword,
		})
		require.Equal(t, http.StatusUnauthorized, a.Code)
		require.Equal(t, http.StatusUnauthorized, b.Code)
		require.JSONEq(t, a.Body.String(), b.Body.String())
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "admin@example.com"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRefreshEndpointRotatesAndDetectsReplay(t *testing.T) {
	srv := newTestServer(t)
	srv.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	body := srv.login(t, "admin@example.com")
	first, _ := body["refreshToken"].(string)
	require.NotEmpty(t, first)

	rec := srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": first})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeBody(t, rec)
	second, _ := rotated["refreshToken"].(string)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)

	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			require.Equal(t, int(testRefreshTTL/time.Second), c.MaxAge)
		}
	}

	// Replaying the consumed token rejects and kills the lineage.
	rec = srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": first})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": second})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpointReadsCookie(t *testing.T) {
	srv := newTestServer(t)
	srv.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	body := srv.login(t, "admin@example.com")
	token, _ := body["refreshToken"].(string)

	rec := srv.do(t, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: token})
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutNeverHardFails(t *testing.T) {
	srv := newTestServer(t)
	srv.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	// No token at all.
	rec := srv.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown token.
	rec = srv.do(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": "garbage"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Real token: revoked, and revoking twice still fine.
	body := srv.login(t, "admin@example.com")
	token, _ := body["refreshToken"].(string)
	rec = srv.do(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": token})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": token})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwoFactorFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	account := srv.seedAccount(t, "mfa@example.com", domain.RoleEditor)

	body := srv.login(t, "mfa@example.com")
	access, _ := body["accessToken"].(string)
	require.NotEmpty(t, access)

	// Setup requires a bearer token.
	rec := srv.do(t, http.MethodPost, "/auth/2fa/setup", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/auth/2fa/setup", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	setup := decodeBody(t, rec)
	secret, _ := setup["secret"].(string)
	require.NotEmpty(t, secret)
	require.Contains(t, setup["provisioningUri"], "otpauth://totp/")

	// Wrong code discards the pending secret.
	rec = srv.do(t, http.MethodPost, "/auth/2fa/enable", map[string]string{"code": "000000"}, withBearer(access))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Restart and confirm with a valid code.
	rec = srv.do(t, http.MethodPost, "/auth/2fa/setup", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	secret, _ = decodeBody(t, rec)["secret"].(string)

	code := generateCode(t, secret)
	rec = srv.do(t, http.MethodPost, "/auth/2fa/enable", map[string]string{"code": code}, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	codes, _ := decodeBody(t, rec)["backupCodes"].([]any)
	require.Len(t, codes, 10)

	// Login now withholds tokens until the second step.
	rec = srv.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "mfa@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	step1 := decodeBody(t, rec)
	require.Equal(t, true, step1["requiresTwoFactor"])
	require.Empty(t, step1["accessToken"])

	rec = srv.do(t, http.MethodPost, "/auth/verify-2fa", map[string]any{
		"accountId": account.ID,
		"code":      generateCode(t, secret),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	step2 := decodeBody(t, rec)
	require.NotEmpty(t, step2["accessToken"])

	// Standalone verify answers yes/no without tokens.
	backup, _ := codes[0].(string)
	rec = srv.do(t, http.MethodPost, "/auth/2fa/verify", map[string]any{
		"email":         "mfa@example.com",
		"code":          backup,
		"useBackupCode": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decodeBody(t, rec)
	require.Equal(t, true, verify["verified"])
	require.NotContains(t, verify, "accessToken")

	// Same backup code again: generic 401.
	rec = srv.do(t, http.MethodPost, "/auth/2fa/verify", map[string]any{
		"email":         "mfa@example.com",
		"code":          backup,
		"useBackupCode": true,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	body := srv.login(t, "admin@example.com")
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)

	rec := srv.do(t, http.MethodPost, "/auth/password", map[string]string{
		"currentPassword": "wrong",
		"newPassword":     "an entirely new password",
	}, withBearer(access))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/auth/password", map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "short",
	}, withBearer(access))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/auth/password", map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "an entirely new password",
	}, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)

	// Old refresh tokens died with the old password.
	rec = srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRevokeSessionsRBAC(t *testing.T) {
	srv := newTestServer(t)
	srv.seedAccount(t, "admin@example.com", domain.RoleAdmin)
	srv.seedAccount(t, "viewer@example.com", domain.RoleViewer)
	target := srv.seedAccount(t, "target@example.com", domain.RoleEditor)

	targetLogin := srv.login(t, "target@example.com")
	targetRefresh, _ := targetLogin["refreshToken"].(string)

	viewerAccess, _ := srv.login(t, "viewer@example.com")["accessToken"].(string)
	adminAccess, _ := srv.login(t, "admin@example.com")["accessToken"].(string)
	path := "/admin/accounts/" + target.ID + "/revoke-sessions"

	// No token.
	rec := srv.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Viewer lacks accounts:update.
	rec = srv.do(t, http.MethodPost, path, nil, withBearer(viewerAccess))
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Admin may revoke.
	rec = srv.do(t, http.MethodPost, path, nil, withBearer(adminAccess))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": targetRefresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown account.
	rec = srv.do(t, http.MethodPost, "/admin/accounts/nope/revoke-sessions", nil, withBearer(adminAccess))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func generateCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
