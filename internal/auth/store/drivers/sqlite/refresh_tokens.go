package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/store"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	now := utc(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens
			(id, account_id, token_hash, issued_at, expires_at, revoked, replaced_by,
			 client_ip, client_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.TokenHash, utc(t.IssuedAt), utc(t.ExpiresAt), t.Revoked,
		mapOptionalString(t.ReplacedBy), t.ClientIP, t.ClientAgent, now, now,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, issued_at, expires_at, revoked, replaced_by,
		       client_ip, client_agent, created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash)

	var (
		t          domain.RefreshToken
		replacedBy sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.AccountID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.Revoked,
		&replacedBy, &t.ClientIP, &t.ClientAgent, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.ReplacedBy = mapNullStringPtr(replacedBy)
	return t, nil
}

// ClaimRefreshToken is the rotation compare-and-swap: the UPDATE only lands
// when the row is still unrevoked and unexpired, so of two concurrent callers
// presenting the same token exactly one sees a row flip.
func (r *refreshTokensRepo) ClaimRefreshToken(ctx context.Context, hash, successorID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, replaced_by = ?, updated_at = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		successorID, utc(time.Now()), hash, utc(now),
	)
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

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	// Idempotent by design: revoking a missing or already-revoked token is a
	// no-op, logout must never hard-fail.
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ?
		WHERE token_hash = ? AND revoked = 0`,
		utc(time.Now()), hash)
	return err
}

func (r *refreshTokensRepo) RevokeAllAccountRefreshTokens(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ?
		WHERE account_id = ? AND revoked = 0`,
		utc(time.Now()), accountID)
	return err
}

func (r *refreshTokensRepo) CountActiveAccountRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE account_id = ? AND revoked = 0 AND expires_at > ?`,
		accountID, utc(now)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, utc(cutoff))
	return err
}
