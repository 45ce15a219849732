package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/store"
)

type accountsRepo struct {
	db dbtx
}

const accountColumns = `id, email, password_hash, role, is_active, totp_secret, totp_enabled, created_at, updated_at`

func scanAccount(row *sql.Row) (domain.AdminAccount, error) {
	var (
		a          domain.AdminAccount
		role       string
		totpSecret sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &role, &a.IsActive,
		&totpSecret, &a.TOTPEnabled, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.AdminAccount{}, mapNotFound(err)
	}
	a.Role = domain.Role(role)
	a.TOTPSecret = mapNullStringPtr(totpSecret)
	return a, nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.AdminAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM admin_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.AdminAccount, error) {
	// email column is COLLATE NOCASE, so the comparison is case-insensitive.
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM admin_accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.AdminAccount) error {
	now := utc(time.Now())
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_accounts
			(id, email, password_hash, role, is_active, totp_secret, totp_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Role.String(), a.IsActive,
		mapOptionalString(a.TOTPSecret), a.TOTPEnabled, utc(createdAt), now,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, accountID, newHash string) error {
	return r.execOne(ctx, `
		UPDATE admin_accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, utc(time.Now()), accountID)
}

func (r *accountsRepo) SetActive(ctx context.Context, accountID string, active bool) error {
	return r.execOne(ctx, `
		UPDATE admin_accounts SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, utc(time.Now()), accountID)
}

func (r *accountsRepo) SetPendingTOTPSecret(ctx context.Context, accountID, secret string) error {
	// Only accounts without authoritative 2FA may hold a pending secret.
	return r.execOne(ctx, `
		UPDATE admin_accounts SET totp_secret = ?, updated_at = ?
		WHERE id = ? AND totp_enabled = 0`,
		secret, utc(time.Now()), accountID)
}

func (r *accountsRepo) ClearPendingTOTPSecret(ctx context.Context, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE admin_accounts SET totp_secret = NULL, updated_at = ?
		WHERE id = ? AND totp_enabled = 0`,
		utc(time.Now()), accountID)
	if err != nil {
		return err
	}
	// Clearing an already-clear secret is fine; only a missing account or an
	// enabled one is a caller bug, and both show up as zero rows elsewhere.
	_, _ = res.RowsAffected()
	return nil
}

func (r *accountsRepo) EnableTOTP(ctx context.Context, accountID string) error {
	return r.execOne(ctx, `
		UPDATE admin_accounts SET totp_enabled = 1, updated_at = ?
		WHERE id = ? AND totp_secret IS NOT NULL`,
		utc(time.Now()), accountID)
}

func (r *accountsRepo) DisableTOTP(ctx context.Context, accountID string) error {
	return r.execOne(ctx, `
		UPDATE admin_accounts SET totp_enabled = 0, totp_secret = NULL, updated_at = ?
		WHERE id = ?`,
		utc(time.Now()), accountID)
}

func (r *accountsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_accounts`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *accountsRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
