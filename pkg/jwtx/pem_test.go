package jwtx_test

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestWrapPKCS1MatchesStdlibPKCS8(t *testing.T) {
	key := newRSAKey(t)

	wrapped := jwtx.WrapPKCS1(x509.MarshalPKCS1PrivateKey(key))
	want, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	require.Equal(t, want, wrapped)

	parsed, err := x509.ParsePKCS8PrivateKey(wrapped)
	require.NoError(t, err)
	require.True(t, key.Equal(parsed))
}

func TestLoadRSAPrivateKey(t *testing.T) {
	key := newRSAKey(t)

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pkcs8DER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8DER}))

	escaped := strings.ReplaceAll(strings.TrimSpace(pkcs8), "\n", `\n`)

	tests := []struct {
		name string
		raw  string
	}{
		{"pkcs1", pkcs1},
		{"pkcs8", pkcs8},
		{"double quoted", `"` + pkcs1 + `"`},
		{"single quoted", `'` + pkcs8 + `'`},
		{"escaped newlines", escaped},
		{"quoted escaped newlines", `"` + escaped + `"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jwtx.LoadRSAPrivateKey([]byte(tt.raw))
			require.NoError(t, err)
			require.True(t, key.Equal(got))
		})
	}
}

func TestLoadRSAPrivateKeyRejects(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, err := jwtx.LoadRSAPrivateKey([]byte("not a key"))
		require.ErrorIs(t, err, jwtx.ErrInvalidPEM)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := jwtx.LoadRSAPrivateKey(nil)
		require.ErrorIs(t, err, jwtx.ErrInvalidPEM)
	})

	t.Run("public key block", func(t *testing.T) {
		der, err := x509.MarshalPKIXPublicKey(&newRSAKey(t).PublicKey)
		require.NoError(t, err)
		raw := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

		_, err = jwtx.LoadRSAPrivateKey(raw)
		require.Error(t, err)
	})
}
