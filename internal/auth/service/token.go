package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cataloghq/authcore/internal/auth/audit"
	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/cataloghq/authcore/internal/auth/metrics"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/idx"
	"github.com/cataloghq/authcore/pkg/jwtx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// TokenService mints access/refresh token pairs and rotates refresh
// tokens. Access tokens are stateless signed JWTs; refresh tokens are
// opaque strings stored only as fingerprints.
type TokenService struct {
	Store      store.Store
	Signer     jwtx.Signer
	Audit      audit.Sink
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssuePair mints an access token and a fresh refresh token for the
// account, persisting the refresh record before either leaves the
// service.
func (s *TokenService) IssuePair(ctx context.Context, account domain.AdminAccount, client domain.ClientInfo) (domain.TokenPair, error) {
	now := time.Now()

	accessToken, err := s.signAccess(account, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}

	record := domain.RefreshToken{
		ID:          idx.New().String(),
		AccountID:   account.ID,
		TokenHash:   cryptox.FingerprintToken(refreshOpaque),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.RefreshTTL),
		ClientIP:    client.IP,
		ClientAgent: client.UserAgent,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, record); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.AccessTTL.Seconds()),
	}, nil
}

// Rotate exchanges a presented refresh token for a new pair. The old
// record is claimed with a conditional update inside one transaction,
// so concurrent presenters of the same token race and exactly one wins.
// A presented token that cannot be claimed is treated as a theft
// signal: the whole account lineage is revoked and the caller gets the
// same generic rejection as for a token that never existed.
func (s *TokenService) Rotate(ctx context.Context, refreshOpaque string, client domain.ClientInfo) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()
	fp := cryptox.FingerprintToken(refreshOpaque)

	var pair domain.TokenPair

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		successorID := idx.New().String()

		if err := tx.RefreshTokens().ClaimRefreshToken(ctx, fp, successorID, now); err != nil {
			return err
		}

		old, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			return err
		}

		account, err := tx.Accounts().GetAccountByID(ctx, old.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return ErrRefreshTokenInvalid
		}

		accessToken, err := s.signAccess(account, now)
		if err != nil {
			return err
		}

		newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		successor := domain.RefreshToken{
			ID:          successorID,
			AccountID:   account.ID,
			TokenHash:   cryptox.FingerprintToken(newOpaque),
			IssuedAt:    now,
			ExpiresAt:   now.Add(s.RefreshTTL),
			ClientIP:    client.IP,
			ClientAgent: client.UserAgent,
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, successor); err != nil {
			return err
		}

		pair = domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: newOpaque,
			TokenType:    "Bearer",
			ExpiresIn:    int(s.AccessTTL.Seconds()),
		}
		return nil
	})
	if err == nil {
		metrics.TokenRotations.WithLabelValues("success").Inc()
		return pair, nil
	}

	if errors.Is(err, store.ErrNotFound) {
		// Claim failed. If the fingerprint resolves to a known record the
		// token was already rotated or revoked: a replay.
		if old, lookupErr := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp); lookupErr == nil {
			l.Warn("refresh token replay detected, revoking account sessions",
				slog.String("account_id", old.AccountID),
				slog.String("token_id", old.ID),
			)
			if revokeErr := s.Store.RefreshTokens().RevokeAllAccountRefreshTokens(ctx, old.AccountID); revokeErr != nil {
				l.Error("lineage revocation failed", slog.Any("error", revokeErr))
			}
			metrics.TokenRotations.WithLabelValues("replay").Inc()
			s.Audit.Emit(ctx, audit.NewEvent(audit.EventRefreshReplay, old.AccountID, client.IP, map[string]string{
				"token_id": old.ID,
			}))
			return domain.TokenPair{}, ErrRefreshReplay
		}
		metrics.TokenRotations.WithLabelValues("failure").Inc()
		return domain.TokenPair{}, ErrRefreshTokenInvalid
	}

	if errors.Is(err, ErrRefreshTokenInvalid) {
		metrics.TokenRotations.WithLabelValues("failure").Inc()
		return domain.TokenPair{}, ErrRefreshTokenInvalid
	}
	return domain.TokenPair{}, err
}

// Revoke invalidates a single refresh token by its opaque value. It is
// idempotent: unknown and already-revoked tokens succeed silently, so
// logout can never hard-fail.
func (s *TokenService) Revoke(ctx context.Context, refreshOpaque string) error {
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(refreshOpaque))
}

// RevokeAll invalidates every active refresh token for an account.
// Used on password change, 2FA disable, and detected compromise.
func (s *TokenService) RevokeAll(ctx context.Context, accountID string, client domain.ClientInfo) error {
	if err := s.Store.RefreshTokens().RevokeAllAccountRefreshTokens(ctx, accountID); err != nil {
		return err
	}
	s.Audit.Emit(ctx, audit.NewEvent(audit.EventSessionsRevoked, accountID, client.IP, nil))
	return nil
}

func (s *TokenService) signAccess(account domain.AdminAccount, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		account.ID,
		account.Role.String(),
		account.Email,
		s.AccessTTL,
		s.Issuer,
		[]string{s.Audience},
		now,
	)
	return s.Signer.Sign(claims)
}
