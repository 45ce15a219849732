package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/store"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, c domain.BackupCode) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_codes (id, account_id, code_hash, used, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.CodeHash, c.Used, mapTimeNull(c.UsedAt), utc(createdAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// ConsumeBackupCode performs the single-use compare-and-swap: only an unused
// matching row can flip to used, so a concurrent double-spend of the same
// code yields exactly one success.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, accountID, codeHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE backup_codes SET used = 1, used_at = ?
		WHERE account_id = ? AND code_hash = ? AND used = 0`,
		utc(time.Now()), accountID, codeHash,
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

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE account_id = ?`, accountID)
	return err
}

func (r *backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, accountID string) (int, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes WHERE account_id = ? AND used = 0`,
		accountID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func mapTimeNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(*t), Valid: true}
}
