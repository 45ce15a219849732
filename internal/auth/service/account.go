package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cataloghq/authcore/internal/auth/audit"
	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/idx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// AccountService covers account credential mutations.
type AccountService struct {
	Store  store.Store
	Tokens *TokenService
	Audit  audit.Sink
}

// ChangePassword swaps an account's password after verifying the
// current one, then revokes every session so stolen refresh tokens die
// with the old credential.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string, client domain.ClientInfo) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(currentPassword, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.Accounts().UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return err
	}

	s.Audit.Emit(ctx, audit.NewEvent(audit.EventPasswordChanged, accountID, client.IP, nil))
	return s.Tokens.RevokeAll(ctx, accountID, client)
}

// EnsureBootstrapAccount creates a superadmin account on first run so a
// fresh database is not a locked box. A no-op when any account exists
// or when no bootstrap credentials are configured.
func (s *AccountService) EnsureBootstrapAccount(ctx context.Context, email, password string) error {
	l := slogx.FromContext(ctx)

	if email == "" || password == "" {
		return nil
	}

	empty, err := s.Store.Accounts().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}

	account := domain.AdminAccount{
		ID:           idx.New().String(),
		Email:        strings.TrimSpace(strings.ToLower(email)),
		PasswordHash: hash,
		Role:         domain.RoleSuperadmin,
		IsActive:     true,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		// Lost a race against a concurrent bootstrap; the other writer won.
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return err
	}

	l.Info("bootstrap account created",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)
	return nil
}
