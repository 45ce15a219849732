package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the services. Handlers map these onto the
// HTTP error taxonomy; authentication failures all collapse to the same
// generic external message so callers cannot distinguish a wrong email
// from a wrong password or a disabled account.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrAccountInactive wraps ErrInvalidCredentials: internally distinct
	// for audit trails, externally indistinguishable from a bad password.
	ErrAccountInactive = fmt.Errorf("account_inactive: %w", ErrInvalidCredentials)

	ErrInvalidTwoFactorCode = errors.New("invalid_two_factor_code")
	ErrBackupCodeInvalid    = errors.New("invalid_backup_code")

	ErrRefreshTokenInvalid = errors.New("invalid_refresh_token")

	// ErrRefreshReplay wraps ErrRefreshTokenInvalid: a known-but-dead token
	// was presented. It triggers lineage revocation and an audit event, but
	// the caller sees the same rejection as for a token that never existed.
	ErrRefreshReplay = fmt.Errorf("refresh_token_reuse: %w", ErrRefreshTokenInvalid)

	ErrTwoFactorAlreadyEnabled = errors.New("two_factor_already_enabled")
	ErrTwoFactorNotEnabled     = errors.New("two_factor_not_enabled")
	ErrTwoFactorNotPending     = errors.New("two_factor_not_pending")
)
