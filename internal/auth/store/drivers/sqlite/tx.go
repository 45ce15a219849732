package sqlite

import (
	"context"
	"database/sql"

	"github.com/cataloghq/authcore/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested transactions are not supported.
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx

func (t *txStore) Accounts() store.Accounts           { return &accountsRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes     { return &backupCodesRepo{db: t.tx} }
