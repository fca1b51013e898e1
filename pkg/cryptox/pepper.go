package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Argon2id parameters.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	pepperMu   sync.RWMutex
	pepper     string
	pepperFile string
	pepperSet  bool
)

// SetPepper installs an explicit pepper, e.g. one supplied through the
// environment. It takes precedence over a pepper file.
func SetPepper(value string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepper = value
	pepperSet = true
}

// SetPepperPath sets the file the pepper is loaded from (and written to if
// missing) by LoadPepper.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
}

// LoadPepper resolves the pepper once at startup. With neither SetPepper nor
// SetPepperPath called, hashing runs unpeppered.
func LoadPepper() error {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepperSet || pepperFile == "" {
		return nil
	}

	value, err := loadOrGeneratePepper(pepperFile)
	if err != nil {
		return err
	}
	pepper = value
	pepperSet = true
	return nil
}

// GetPepper returns the active pepper.
func GetPepper() string {
	pepperMu.RLock()
	defer pepperMu.RUnlock()
	return pepper
}

func loadOrGeneratePepper(file string) (string, error) {
	file = filepath.Clean(file)

	raw, err := os.ReadFile(file)
	if err == nil {
		value := strings.TrimSpace(string(raw))
		if value == "" {
			return "", errors.New("cryptox: pepper file is empty")
		}
		return value, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return "", err
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.WriteFile(file, []byte(value), 0o600); err != nil {
		return "", err
	}
	return value, nil
}
