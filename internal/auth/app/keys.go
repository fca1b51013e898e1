package app

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/trustline/pkg/jwtx"
)

// InitTokenCodec builds the HS256 codec from the configured secrets.
func InitTokenCodec(cfg Config) (*jwtx.TokenCodec, error) {
	access, err := decodeSecret("AUTH_ACCESS_SECRET", cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := decodeSecret("AUTH_REFRESH_SECRET", cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	return jwtx.NewTokenCodec(jwtx.CodecOptions{
		AccessKey:  access,
		RefreshKey: refresh,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
}

// decodeSecret accepts standard or URL-safe base64, padded or not.
func decodeSecret(name, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}

	var key []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err = enc.DecodeString(value); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64", name)
	}
	if len(key) < jwtx.MinHMACKeySize {
		return nil, fmt.Errorf("%s must decode to at least %d bytes, got %d", name, jwtx.MinHMACKeySize, len(key))
	}
	return key, nil
}
