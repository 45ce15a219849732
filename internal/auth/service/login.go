package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cataloghq/authcore/internal/auth/audit"
	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/metrics"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpOpts pins the verification parameters: 6 digits, 30 second step,
// SHA1, and one step of clock skew either side.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// LoginService drives the two-step login state machine. Step one checks
// the password; accounts with two-factor enabled get no tokens until
// step two proves possession of the second factor.
type LoginService struct {
	Store  store.Store
	Tokens *TokenService
	Audit  audit.Sink
}

// Login verifies the email/password pair. Every failure mode (unknown
// email, wrong password, disabled account) returns ErrInvalidCredentials
// so callers cannot enumerate accounts. A dummy hash is verified on the
// unknown-email path to keep timing uniform.
func (s *LoginService) Login(ctx context.Context, email, password string, client domain.ClientInfo) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)
	email = strings.TrimSpace(strings.ToLower(email))

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.VerifyDummy(password)
			metrics.LoginAttempts.WithLabelValues("failure").Inc()
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		return domain.LoginResult{}, err
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		l.Info("login password verification failed", slog.String("account_id", account.ID))
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		s.Audit.Emit(ctx, audit.NewEvent(audit.EventLoginFailed, account.ID, client.IP, nil))
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	if !account.IsActive {
		l.Info("login attempt against inactive account", slog.String("account_id", account.ID))
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		s.Audit.Emit(ctx, audit.NewEvent(audit.EventLoginFailed, account.ID, client.IP, nil))
		return domain.LoginResult{}, ErrAccountInactive
	}

	if account.TOTPEnabled {
		metrics.LoginAttempts.WithLabelValues("second_factor_pending").Inc()
		return domain.LoginResult{
			RequiresTwoFactor: true,
			Account:           account.Profile(),
		}, nil
	}

	pair, err := s.Tokens.IssuePair(ctx, account, client)
	if err != nil {
		return domain.LoginResult{}, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.Audit.Emit(ctx, audit.NewEvent(audit.EventLoginSucceeded, account.ID, client.IP, nil))

	return domain.LoginResult{
		Tokens:  &pair,
		Account: account.Profile(),
	}, nil
}

// VerifySecondFactor completes step two for an account left in the
// awaiting-second-factor state. The code is either a TOTP code or, when
// isBackupCode is set, one of the single-use backup codes. Failure
// leaves the account in the same state; success issues a token pair.
func (s *LoginService) VerifySecondFactor(ctx context.Context, accountID, code string, isBackupCode bool, client domain.ClientInfo) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)
	code = strings.TrimSpace(code)

	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		return domain.LoginResult{}, err
	}
	if !account.IsActive || !account.TOTPEnabled || account.TOTPSecret == nil {
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	if isBackupCode {
		if err := s.consumeBackupCode(ctx, account.ID, code, client); err != nil {
			metrics.SecondFactorChecks.WithLabelValues("backup_code", "failure").Inc()
			return domain.LoginResult{}, err
		}
		metrics.SecondFactorChecks.WithLabelValues("backup_code", "success").Inc()
	} else {
		ok, err := totp.ValidateCustom(code, *account.TOTPSecret, time.Now(), totpOpts)
		if err != nil || !ok {
			l.Info("second factor TOTP verification failed", slog.String("account_id", account.ID))
			metrics.SecondFactorChecks.WithLabelValues("totp", "failure").Inc()
			s.Audit.Emit(ctx, audit.NewEvent(audit.EventSecondFactorFailed, account.ID, client.IP, nil))
			return domain.LoginResult{}, ErrInvalidTwoFactorCode
		}
		metrics.SecondFactorChecks.WithLabelValues("totp", "success").Inc()
	}

	pair, err := s.Tokens.IssuePair(ctx, account, client)
	if err != nil {
		return domain.LoginResult{}, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.Audit.Emit(ctx, audit.NewEvent(audit.EventLoginSucceeded, account.ID, client.IP, nil))

	return domain.LoginResult{
		Tokens:  &pair,
		Account: account.Profile(),
	}, nil
}

// VerifyCode checks a second factor for an account identified by email
// without issuing anything. Used by the standalone verification
// endpoint; the answer is a bare yes/no.
func (s *LoginService) VerifyCode(ctx context.Context, email, code string, isBackupCode bool, client domain.ClientInfo) error {
	email = strings.TrimSpace(strings.ToLower(email))

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidTwoFactorCode
		}
		return err
	}
	if !account.IsActive || !account.TOTPEnabled || account.TOTPSecret == nil {
		return ErrInvalidTwoFactorCode
	}

	if isBackupCode {
		return s.consumeBackupCode(ctx, account.ID, code, client)
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), *account.TOTPSecret, time.Now(), totpOpts)
	if err != nil || !ok {
		metrics.SecondFactorChecks.WithLabelValues("totp", "failure").Inc()
		s.Audit.Emit(ctx, audit.NewEvent(audit.EventSecondFactorFailed, account.ID, client.IP, nil))
		return ErrInvalidTwoFactorCode
	}
	metrics.SecondFactorChecks.WithLabelValues("totp", "success").Inc()
	return nil
}

// consumeBackupCode spends a backup code atomically. The conditional
// update in the store guarantees a code held by two concurrent callers
// succeeds for exactly one of them.
func (s *LoginService) consumeBackupCode(ctx context.Context, accountID, code string, client domain.ClientInfo) error {
	hash := cryptox.FingerprintToken(strings.TrimSpace(code))

	if err := s.Store.BackupCodes().ConsumeBackupCode(ctx, accountID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Audit.Emit(ctx, audit.NewEvent(audit.EventSecondFactorFailed, accountID, client.IP, nil))
			return ErrBackupCodeInvalid
		}
		return err
	}

	s.Audit.Emit(ctx, audit.NewEvent(audit.EventBackupCodeConsumed, accountID, client.IP, nil))
	return nil
}
