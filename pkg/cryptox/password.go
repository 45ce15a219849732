package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. The work factor is embedded in every hash, so these
// can be raised later without invalidating stored credentials.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var ErrPasswordMismatch = errors.New("cryptox: password does not match")

// HashPassword returns a PHC-format Argon2id string embedding the salt and
// the parameters used.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password+GetPepper()),
		salt,
		iterations,
		memory,
		parallelism,
		keyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks a plaintext password against a PHC-format Argon2id
// hash. The parameters are read back from the hash itself, not from the
// package constants, so old hashes keep verifying after a parameter bump.
func VerifyPassword(password, encodedHash string) error {
	parts := strings.Split(encodedHash, "$")

	// Expected: ["", "argon2id", "v=19", "m=X,t=Y,p=Z", salt, hash]
	if len(parts) != 6 {
		return errors.New("cryptox: malformed hash")
	}
	if parts[1] != "argon2id" {
		return errors.New("cryptox: not an argon2id hash")
	}
	if parts[2] != "v=19" {
		return errors.New("cryptox: unsupported argon2 version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("cryptox: parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("cryptox: decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("cryptox: decode hash: %w", err)
	}

	got := argon2.IDKey(
		[]byte(password+GetPepper()),
		salt,
		iters,
		mem,
		par,
		uint32(len(want)), // #nosec G115 - hash lengths are tiny
	)

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// VerifyDummy burns the same Argon2id work as a real verification. Called
// on the unknown-account path so its timing matches the wrong-password
// path.
func VerifyDummy(password string) {
	salt := make([]byte, saltLength)
	_ = argon2.IDKey([]byte(password+GetPepper()), salt, iterations, memory, parallelism, keyLength)
}
