package service

import (
	"context"
	"testing"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	ctx := context.Background()

	secret, backupCodes := env.enrollTOTP(t, account.ID)
	require.NotEmpty(t, secret)
	require.Len(t, backupCodes, backupCodeCount)

	got, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, got.TOTPEnabled)

	unused, err := env.store.BackupCodes().CountUnusedBackupCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, backupCodeCount, unused)
}

func TestBeginEnrollmentRestartReplacesPendingSecret(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	ctx := context.Background()

	first, err := env.twoFactor.BeginEnrollment(ctx, account.ID)
	require.NoError(t, err)
	second, err := env.twoFactor.BeginEnrollment(ctx, account.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// Only the latest pending secret confirms.
	_, err = env.twoFactor.ConfirmEnrollment(ctx, account.ID, totpCode(t, first.Secret, time.Now()), domain.ClientInfo{})
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
}

func TestConfirmEnrollmentWrongCodeDiscardsPendingSecret(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	ctx := context.Background()

	_, err := env.twoFactor.BeginEnrollment(ctx, account.ID)
	require.NoError(t, err)

	_, err = env.twoFactor.ConfirmEnrollment(ctx, account.ID, "000000", domain.ClientInfo{})
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	// Pending state is gone; confirming again needs a fresh enrollment.
	_, err = env.twoFactor.ConfirmEnrollment(ctx, account.ID, "000000", domain.ClientInfo{})
	require.ErrorIs(t, err, ErrTwoFactorNotPending)
}

func TestBeginEnrollmentRejectedWhenAlreadyEnabled(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	env.enrollTOTP(t, account.ID)

	_, err := env.twoFactor.BeginEnrollment(context.Background(), account.ID)
	require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestDisableRequiresProofAndRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	secret, _ := env.enrollTOTP(t, account.ID)
	ctx := context.Background()

	pair, err := env.tokens.IssuePair(ctx, account, domain.ClientInfo{})
	require.NoError(t, err)

	require.ErrorIs(t,
		env.twoFactor.Disable(ctx, account.ID, "000000", false, domain.ClientInfo{}),
		ErrInvalidTwoFactorCode)

	require.NoError(t, env.twoFactor.Disable(ctx, account.ID, totpCode(t, secret, time.Now()), false, domain.ClientInfo{}))

	got, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.False(t, got.TOTPEnabled)
	require.Nil(t, got.TOTPSecret)

	unused, err := env.store.BackupCodes().CountUnusedBackupCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Zero(t, unused)

	// Previously issued refresh tokens stop working.
	_, err = env.tokens.Rotate(ctx, pair.RefreshToken, domain.ClientInfo{})
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestDisableWithBackupCode(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	_, backupCodes := env.enrollTOTP(t, account.ID)

	require.NoError(t, env.twoFactor.Disable(context.Background(), account.ID, backupCodes[0], true, domain.ClientInfo{}))
}

func TestDisableWithWrongBackupCodeLeavesStateIntact(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	env.enrollTOTP(t, account.ID)
	ctx := context.Background()

	err := env.twoFactor.Disable(ctx, account.ID, "not-a-real-code", true, domain.ClientInfo{})
	require.ErrorIs(t, err, ErrBackupCodeInvalid)

	// The failed attempt must not flip the account off or burn any code.
	got, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, got.TOTPEnabled)

	unused, err := env.store.BackupCodes().CountUnusedBackupCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, backupCodeCount, unused)
}

func TestDisableWhenNotEnabled(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "plain@example.com", domain.RoleViewer, true)

	err := env.twoFactor.Disable(context.Background(), account.ID, "123456", false, domain.ClientInfo{})
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}

func TestRegenerateBackupCodesReplacesSet(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "mfa@example.com", domain.RoleEditor, true)
	secret, oldCodes := env.enrollTOTP(t, account.ID)
	ctx := context.Background()

	newCodes, err := env.twoFactor.RegenerateBackupCodes(ctx, account.ID, totpCode(t, secret, time.Now()), domain.ClientInfo{})
	require.NoError(t, err)
	require.Len(t, newCodes, backupCodeCount)
	require.NotElementsMatch(t, oldCodes, newCodes)

	// Old codes are dead, new codes work.
	require.ErrorIs(t,
		env.login.VerifyCode(ctx, "mfa@example.com", oldCodes[0], true, domain.ClientInfo{}),
		ErrBackupCodeInvalid)
	require.NoError(t, env.login.VerifyCode(ctx, "mfa@example.com", newCodes[0], true, domain.ClientInfo{}))
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "admin@example.com", domain.RoleAdmin, true)
	ctx := context.Background()

	pair, err := env.tokens.IssuePair(ctx, account, domain.ClientInfo{})
	require.NoError(t, err)

	require.ErrorIs(t,
		env.accounts.ChangePassword(ctx, account.ID, "wrong", "new password 42", domain.ClientInfo{}),
		ErrInvalidCredentials)

	require.NoError(t, env.accounts.ChangePassword(ctx, account.ID, testPassword, "new password 42", domain.ClientInfo{}))

	_, err = env.tokens.Rotate(ctx, pair.RefreshToken, domain.ClientInfo{})
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	_, err = env.login.Login(ctx, "admin@example.com", testPassword, domain.ClientInfo{})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	result, err := env.login.Login(ctx, "admin@example.com", "new password 42", domain.ClientInfo{})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}

func TestEnsureBootstrapAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.accounts.EnsureBootstrapAccount(ctx, "root@example.com", "bootstrap secret"))

	got, err := env.store.Accounts().GetAccountByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperadmin, got.Role)

	// No-op once any account exists.
	require.NoError(t, env.accounts.EnsureBootstrapAccount(ctx, "other@example.com", "x"))
	_, err = env.store.Accounts().GetAccountByEmail(ctx, "other@example.com")
	require.Error(t, err)
}
