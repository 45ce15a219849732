// Package jwtx signs and verifies the stateless access tokens issued by the
// login state machine. Refresh tokens are opaque and live in the store; only
// access tokens pass through here.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTokenTTL keeps access tokens short-lived; validity is
	// proved by signature and expiry alone, so there is no revocation path.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of the opaque refresh token
	// record created alongside every access token.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the access-token claims. The token is self-contained: subject,
// role and email are enough to authorize a request without a store lookup.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the account's role name ("viewer", "editor", "admin",
	// "superadmin"). Permission checks resolve it through the rbac table.
	Role string `json:"role,omitempty"`

	// Email of the authenticated account, for display and audit trails.
	Email string `json:"email,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	subject, role, email string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Role:  role,
		Email: email,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer claim against the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token is inside its [nbf, exp] window.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
