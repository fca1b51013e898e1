package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates RS256 JWTs against the public keys in a KeySet.
type RS256Verifier struct {
	keys *KeySet
}

// NewVerifierRS256 creates a verifier using a KeySet of RSA public keys.
func NewVerifierRS256(keys *KeySet) *RS256Verifier {
	return &RS256Verifier{keys: keys}
}

// Verify checks the signature and registered time claims of tokenStr and
// decodes it into claims. Extra parser options (issuer, leeway, clock) are
// passed through to golang-jwt.
func (v *RS256Verifier) Verify(tokenStr string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}, opts...)

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		// Need the kid to know which key to use
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
		}

		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}

		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: invalid RSA key type")
		}
		return rsaPub, nil
	})
	if err != nil {
		return mapParseError(err)
	}
	if !token.Valid {
		return ErrInvalidClaim
	}
	return nil
}
