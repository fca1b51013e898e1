package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPEM = errors.New("jwtx: invalid PEM for RSA key")

// rsaAlgorithmIdentifier is the DER AlgorithmIdentifier for rsaEncryption
// (1.2.840.113549.1.1.1) with NULL parameters.
var rsaAlgorithmIdentifier = []byte{
	0x30, 0x0D,
	0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x01, 0x01,
	0x05, 0x00,
}

// LoadRSAPrivateKey parses an RSA private key from PEM. Keys pasted into env
// vars often arrive quoted and with literal "\n" sequences, both are
// normalised first. PKCS#1 keys are wrapped into PKCS#8 before parsing.
func LoadRSAPrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(NormalizePEM(string(raw))))
	if block == nil {
		return nil, ErrInvalidPEM
	}

	var der []byte
	switch block.Type {
	case "PRIVATE KEY":
		der = block.Bytes
	case "RSA PRIVATE KEY":
		der = WrapPKCS1(block.Bytes)
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	priv, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not RSA private key")
	}
	return key, nil
}

// NormalizePEM strips one layer of surrounding quotes and expands escaped
// newlines.
func NormalizePEM(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.ReplaceAll(s, `\n`, "\n")
}

// WrapPKCS1 wraps PKCS#1 RSAPrivateKey DER bytes in a minimal PKCS#8
// PrivateKeyInfo:
//
//	SEQUENCE { INTEGER 0, AlgorithmIdentifier, OCTET STRING pkcs1 }
func WrapPKCS1(pkcs1 []byte) []byte {
	version := []byte{0x02, 0x01, 0x00}
	octets := derTLV(0x04, pkcs1)

	body := make([]byte, 0, len(version)+len(rsaAlgorithmIdentifier)+len(octets))
	body = append(body, version...)
	body = append(body, rsaAlgorithmIdentifier...)
	body = append(body, octets...)
	return derTLV(0x30, body)
}

func derTLV(tag byte, body []byte) []byte {
	out := append([]byte{tag}, derLength(len(body))...)
	return append(out, body...)
}

// derLength encodes n in DER definite form. RSA keys never exceed the
// two-byte long form.
func derLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	default:
		return []byte{0x82, byte(n >> 8), byte(n)}
	}
}
