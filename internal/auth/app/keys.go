package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/cataloghq/authcore/pkg/idx"
	"github.com/cataloghq/authcore/pkg/jwtx"
)

// initSigningKeys generates an ephemeral Ed25519 keypair for access
// token signatures. Keys live only as long as the process; a restart
// invalidates outstanding access tokens, which their short TTL already
// bounds. Refresh tokens survive restarts in the store.
func initSigningKeys(cfg Config, logger *slog.Logger) (jwtx.Signer, jwtx.Verifier, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate signing key: %w", err)
	}

	kid := idx.New().String()
	signer, err := jwtx.NewSignerEdDSA(kid, priv)
	if err != nil {
		return nil, nil, err
	}
	verifier := jwtx.NewVerifierEdDSA(map[string]ed25519.PublicKey{kid: pub}, cfg.Issuer)

	logger.Info("ephemeral signing key generated", "kid", kid, "alg", "EdDSA")
	return signer, verifier, nil
}
