package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Signer signs access-token claims.
type Signer interface {
	KID() string
	Sign(Claims) (string, error)
}

// Verifier validates a JWT and returns its claims if it is legitimate.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSASigner signs tokens with an Ed25519 private key.
type EdDSASigner struct {
	kid string
	key ed25519.PrivateKey
}

// NewSignerEdDSA wraps an Ed25519 private key as a Signer.
func NewSignerEdDSA(kid string, key ed25519.PrivateKey) (*EdDSASigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("jwtx: invalid Ed25519 private key size")
	}
	return &EdDSASigner{kid: kid, key: key}, nil
}

func (s *EdDSASigner) KID() string { return s.kid }

func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// EdDSAVerifier validates tokens signed by a known set of Ed25519 keys.
type EdDSAVerifier struct {
	keys   map[string]ed25519.PublicKey // kid -> key
	issuer string
}

// NewVerifierEdDSA builds a verifier for the given kid->public-key set.
func NewVerifierEdDSA(keys map[string]ed25519.PublicKey, issuer string) *EdDSAVerifier {
	return &EdDSAVerifier{keys: keys, issuer: issuer}
}

func (v *EdDSAVerifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, ok := v.keys[kid]
		if !ok {
			return nil, fmt.Errorf("jwtx: unknown kid %q", kid)
		}
		return pub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidSig, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrMalformed
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Claims{}, err
	}
	return *claims, nil
}
