package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cataloghq/authcore/internal/auth/audit"
	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/idx"
	"github.com/cataloghq/authcore/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 10
	backupCodeBytes = cryptox.TokenSize128
)

// TwoFactorService manages TOTP enrollment as a two-phase commit: a
// generated secret stays pending until the account proves it can
// produce a valid code, so no account is ever locked behind a secret
// that never reached an authenticator.
type TwoFactorService struct {
	Store  store.Store
	Tokens *TokenService
	Audit  audit.Sink
	Issuer string
}

// BeginEnrollment generates a fresh TOTP secret and stores it as
// pending. Restarting enrollment simply replaces the pending secret.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, accountID string) (domain.TwoFactorEnrollment, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}
	if account.TOTPEnabled {
		return domain.TwoFactorEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Accounts().SetPendingTOTPSecret(ctx, accountID, key.Secret()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TwoFactorEnrollment{}, ErrTwoFactorAlreadyEnabled
		}
		return domain.TwoFactorEnrollment{}, err
	}

	return domain.TwoFactorEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// ConfirmEnrollment verifies a code against the pending secret. On
// success the secret becomes authoritative and a fresh set of backup
// codes is returned, in plaintext, exactly once. On a wrong code the
// pending secret is discarded and enrollment must restart.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, code string, client domain.ClientInfo) ([]string, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TOTPEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if !account.TOTPPending() {
		return nil, ErrTwoFactorNotPending
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), *account.TOTPSecret, time.Now(), totpOpts)
	if err != nil || !ok {
		if clearErr := s.Store.Accounts().ClearPendingTOTPSecret(ctx, accountID); clearErr != nil {
			slogx.FromContext(ctx).Error("clearing pending totp secret failed",
				slog.String("account_id", accountID),
				slog.Any("error", clearErr),
			)
		}
		return nil, ErrInvalidTwoFactorCode
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().EnableTOTP(ctx, accountID); err != nil {
			return err
		}
		return insertBackupCodes(ctx, tx, accountID, codes)
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Emit(ctx, audit.NewEvent(audit.EventTwoFactorEnabled, accountID, client.IP, nil))
	return codes, nil
}

// Disable turns two-factor off after proof of possession: a current
// TOTP code, or a backup code when isBackupCode is set. All backup
// codes are purged and every session is revoked to force fresh
// authentication.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, code string, isBackupCode bool, client domain.ClientInfo) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TOTPEnabled || account.TOTPSecret == nil {
		return ErrTwoFactorNotEnabled
	}

	if !isBackupCode {
		ok, err := totp.ValidateCustom(strings.TrimSpace(code), *account.TOTPSecret, time.Now(), totpOpts)
		if err != nil || !ok {
			return ErrInvalidTwoFactorCode
		}
	}

	// Backup-code consumption happens in the same transaction as the
	// disable itself, so a failed disable never burns the code.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if isBackupCode {
			hash := cryptox.FingerprintToken(strings.TrimSpace(code))
			if err := tx.BackupCodes().ConsumeBackupCode(ctx, accountID, hash); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrBackupCodeInvalid
				}
				return err
			}
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		return tx.Accounts().DisableTOTP(ctx, accountID)
	})
	if err != nil {
		return err
	}

	if isBackupCode {
		s.Audit.Emit(ctx, audit.NewEvent(audit.EventBackupCodeConsumed, accountID, client.IP, nil))
	}
	s.Audit.Emit(ctx, audit.NewEvent(audit.EventTwoFactorDisabled, accountID, client.IP, nil))
	return s.Tokens.RevokeAll(ctx, accountID, client)
}

// RegenerateBackupCodes replaces the whole backup-code set after proof
// of possession of a current TOTP code. Unused codes from the old set
// stop working immediately.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string, client domain.ClientInfo) ([]string, error) {
	if err := s.proveTOTP(ctx, accountID, totpCode); err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		return insertBackupCodes(ctx, tx, accountID, codes)
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Emit(ctx, audit.NewEvent(audit.EventBackupCodesReissued, accountID, client.IP, nil))
	return codes, nil
}

func (s *TwoFactorService) proveTOTP(ctx context.Context, accountID, code string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TOTPEnabled || account.TOTPSecret == nil {
		return ErrTwoFactorNotEnabled
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), *account.TOTPSecret, time.Now(), totpOpts)
	if err != nil || !ok {
		return ErrInvalidTwoFactorCode
	}
	return nil
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = code
	}
	return codes, nil
}

func insertBackupCodes(ctx context.Context, tx store.Tx, accountID string, codes []string) error {
	for _, code := range codes {
		bc := domain.BackupCode{
			ID:        idx.New().String(),
			AccountID: accountID,
			CodeHash:  cryptox.FingerprintToken(code),
		}
		if err := tx.BackupCodes().CreateBackupCode(ctx, bc); err != nil {
			return err
		}
	}
	return nil
}
