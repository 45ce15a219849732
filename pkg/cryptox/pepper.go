package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// The pepper is a site-wide secret mixed into every password hash. It lives
// outside the database so a dumped accounts table alone is not crackable
// offline.
var (
	pepperMu   sync.Mutex
	pepper     string
	pepperFile string
)

// SetPepperPath configures where the pepper file lives. Call before the first
// hash or verify.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

func GetPepper() string {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper
	}
	if pepperFile == "" {
		// No file configured; hashing proceeds unpeppered. Tests use this.
		return ""
	}

	p, err := loadOrGeneratePepper()
	if err != nil {
		slog.Error("failed to load or generate pepper", slog.Any("err", err))
		os.Exit(1)
	}
	pepper = p
	return pepper
}

func loadOrGeneratePepper() (string, error) {
	file := filepath.Clean(pepperFile)
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return "", err
	}

	if _, err := os.Stat(file); os.IsNotExist(err) {
		buf := make([]byte, keyLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		p := base64.RawURLEncoding.EncodeToString(buf)
		if err := os.WriteFile(file, []byte(p), 0600); err != nil {
			return "", err
		}
		return p, nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
