package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
)

// InitSigner loads the user-context signing key and publishes its public
// half in a key set. Any failure is fatal at startup.
func InitSigner(cfg Config) (*jwtx.RS256Signer, *jwtx.KeySet, error) {
	raw, source, err := readPrivateKey(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", httpx.ErrInternalSigning, err)
	}

	signer, err := jwtx.NewSignerRS256FromPEM(strings.TrimSpace(cfg.KeyID), raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load key from %s: %w", httpx.ErrInternalSigning, source, err)
	}
	if err := signer.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: validate key: %w", httpx.ErrInternalSigning, err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", httpx.ErrInternalSigning, err)
	}
	return signer, keys, nil
}

func readPrivateKey(cfg Config) ([]byte, string, error) {
	if cfg.PrivateKeyPath != "" {
		raw, err := os.ReadFile(filepath.Clean(cfg.PrivateKeyPath))
		if err != nil {
			return nil, "", fmt.Errorf("read private key: %w", err)
		}
		return raw, "file", nil
	}
	if pem := strings.TrimSpace(cfg.PrivateKeyPEM); pem != "" {
		return []byte(pem), "environment", nil
	}
	return nil, "", fmt.Errorf("no private key configured")
}
