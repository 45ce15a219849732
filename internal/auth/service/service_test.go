package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/cataloghq/authcore/internal/auth/audit"
	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/idx"
	"github.com/cataloghq/authcore/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

type testEnv struct {
	store     *sqlite.Store
	login     *LoginService
	tokens    *TokenService
	twoFactor *TwoFactorService
	accounts  *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test-key", priv)
	require.NoError(t, err)

	tokens := &TokenService{
		Store:      st,
		Signer:     signer,
		Audit:      audit.NoopSink{},
		Issuer:     "authcore-test",
		Audience:   "authcore",
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
	}

	return &testEnv{
		store:     st,
		tokens:    tokens,
		login:     &LoginService{Store: st, Tokens: tokens, Audit: audit.NoopSink{}},
		twoFactor: &TwoFactorService{Store: st, Tokens: tokens, Audit: audit.NoopSink{}, Issuer: "authcore-test"},
		accounts:  &AccountService{Store: st, Tokens: tokens, Audit: audit.NoopSink{}},
	}
}

func (e *testEnv) seedAccount(t *testing.T, email string, role domain.Role, active bool) domain.AdminAccount {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	account := domain.AdminAccount{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, e.store.Accounts().CreateAccount(context.Background(), account))
	return account
}

// enrollTOTP takes an account through the full two-phase enrollment and
// returns the shared secret plus the plaintext backup codes.
func (e *testEnv) enrollTOTP(t *testing.T, accountID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.twoFactor.BeginEnrollment(ctx, accountID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")

	code := totpCode(t, enrollment.Secret, time.Now())
	backupCodes, err := e.twoFactor.ConfirmEnrollment(ctx, accountID, code, domain.ClientInfo{})
	require.NoError(t, err)
	require.Len(t, backupCodes, backupCodeCount)

	return enrollment.Secret, backupCodes
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totpOpts)
	require.NoError(t, err)
	return code
}
