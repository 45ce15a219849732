package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	pub, priv := newTestKeypair(t)
	signer, err := NewSignerEdDSA("k1", priv)
	require.NoError(t, err)

	claims := NewAccessClaims(
		"01ACCOUNT", "editor", "ops@example.com",
		time.Minute, "authcore", []string{"admin"}, time.Now().UTC(),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	verifier := NewVerifierEdDSA(map[string]ed25519.PublicKey{"k1": pub}, "authcore")
	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "01ACCOUNT", got.Subject)
	require.Equal(t, "editor", got.Role)
	require.Equal(t, "ops@example.com", got.Email)
	require.NotEmpty(t, got.ID)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Parallel()

	_, priv := newTestKeypair(t)
	otherPub, _ := newTestKeypair(t)

	signer, err := NewSignerEdDSA("k1", priv)
	require.NoError(t, err)

	token, err := signer.Sign(NewAccessClaims(
		"01ACCOUNT", "admin", "", time.Minute, "authcore", nil, time.Now().UTC(),
	))
	require.NoError(t, err)

	verifier := NewVerifierEdDSA(map[string]ed25519.PublicKey{"k1": otherPub}, "authcore")
	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	pub, priv := newTestKeypair(t)
	signer, err := NewSignerEdDSA("k1", priv)
	require.NoError(t, err)

	token, err := signer.Sign(NewAccessClaims(
		"01ACCOUNT", "viewer", "", time.Minute, "authcore", nil,
		time.Now().UTC().Add(-time.Hour),
	))
	require.NoError(t, err)

	verifier := NewVerifierEdDSA(map[string]ed25519.PublicKey{"k1": pub}, "authcore")
	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	pub, priv := newTestKeypair(t)
	signer, err := NewSignerEdDSA("k1", priv)
	require.NoError(t, err)

	token, err := signer.Sign(NewAccessClaims(
		"01ACCOUNT", "viewer", "", time.Minute, "someone-else", nil, time.Now().UTC(),
	))
	require.NoError(t, err)

	verifier := NewVerifierEdDSA(map[string]ed25519.PublicKey{"k1": pub}, "authcore")
	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}
