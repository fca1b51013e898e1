package jwtx

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(jwt.Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

// RS256Signer implements the Signer interface using RSA SHA-256.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
}

// NewSignerRS256 creates an RS256 signer. kid is required: verifiers select
// the public key by it.
func NewSignerRS256(kid string, key *rsa.PrivateKey) (*RS256Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: signer requires a kid")
	}
	if key == nil {
		return nil, errors.New("jwtx: nil RSA key")
	}
	return &RS256Signer{kid: kid, key: key}, nil
}

// NewSignerRS256FromPEM loads the key with LoadRSAPrivateKey.
func NewSignerRS256FromPEM(kid string, pemKey []byte) (*RS256Signer, error) {
	key, err := LoadRSAPrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	return NewSignerRS256(kid, key)
}

func (s *RS256Signer) Alg() string { return jwt.SigningMethodRS256.Alg() }
func (s *RS256Signer) KID() string { return s.kid }

// Sign returns the compact JWS with {alg, kid, typ} in the header.
func (s *RS256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	t.Header["typ"] = "JWT"
	return t.SignedString(s.key)
}

// PublicJWK returns the JWK to publish in a JWKS.
func (s *RS256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", s.Alg(), &s.key.PublicKey)
}

// Validate does a quick sanity check to make sure we actually have keys.
func (s *RS256Signer) Validate() error {
	if s.key == nil {
		return errors.New("jwtx: nil RSA key")
	}
	return s.key.Validate()
}
