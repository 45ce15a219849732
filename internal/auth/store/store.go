package store

import (
	"context"
	"errors"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Accounts() Accounts
	RefreshTokens() RefreshTokens
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit() or Rollback() the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn inside a transaction, committing on nil and rolling
	// back on error. This is the recommended way to run multi-step atomic
	// operations (refresh rotation, 2FA enable).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store: the same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.AdminAccount, error)

	// GetAccountByEmail matches the email case-insensitively.
	GetAccountByEmail(ctx context.Context, email string) (domain.AdminAccount, error)

	// CreateAccount inserts a new account (id supplied by the app via ULID).
	CreateAccount(ctx context.Context, a domain.AdminAccount) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, accountID, newHash string) error

	// SetActive flips the is_active flag.
	SetActive(ctx context.Context, accountID string, active bool) error

	// SetPendingTOTPSecret stores an enrollment secret without enabling 2FA.
	SetPendingTOTPSecret(ctx context.Context, accountID, secret string) error

	// ClearPendingTOTPSecret drops a pending secret. Refuses to touch
	// accounts where 2FA is already enabled.
	ClearPendingTOTPSecret(ctx context.Context, accountID string) error

	// EnableTOTP marks the stored secret authoritative.
	EnableTOTP(ctx context.Context, accountID string) error

	// DisableTOTP clears both the secret and the enabled flag.
	DisableTOTP(ctx context.Context, accountID string) error

	// IsEmpty reports whether any account exists.
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the record regardless of lifecycle
	// state; callers inspect Revoked/ExpiresAt themselves.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// ClaimRefreshToken atomically revokes the record identified by hash and
	// links its successor, but only if the record is still unrevoked and
	// unexpired at now. Returns ErrNotFound when another caller claimed the
	// token first or it was never valid; that is the replay signal.
	ClaimRefreshToken(ctx context.Context, hash, successorID string, now time.Time) error

	// RevokeRefreshToken flips revoked on; idempotent, absent rows are fine.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// RevokeAllAccountRefreshTokens bulk-revokes every active record for the
	// account (password change, 2FA disable, detected compromise).
	RevokeAllAccountRefreshTokens(ctx context.Context, accountID string) error

	// CountActiveAccountRefreshTokens reports still-usable records at now.
	CountActiveAccountRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error)

	// DeleteExpiredRefreshTokens removes records expired before the cutoff.
	// Records are otherwise retained for audit.
	DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) error
}

type BackupCodes interface {
	// CreateBackupCode stores one hashed backup code.
	CreateBackupCode(ctx context.Context, c domain.BackupCode) error

	// ConsumeBackupCode atomically marks a matching unused code as used.
	// Returns ErrNotFound when no unused code matches; a second concurrent
	// consumer of the same code observes exactly that.
	ConsumeBackupCode(ctx context.Context, accountID, codeHash string) error

	// DeleteAllBackupCodes removes every code for the account.
	DeleteAllBackupCodes(ctx context.Context, accountID string) error

	// CountUnusedBackupCodes reports how many codes remain usable.
	CountUnusedBackupCodes(ctx context.Context, accountID string) (int, error)
}
