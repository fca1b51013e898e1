package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Services override them from config.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrSubject      = errors.New("jwtx: subject mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Claims are the access and refresh token claims. The subject is the
// user's email; refresh tokens leave UserID and Roles empty.
type Claims struct {
	jwt.RegisteredClaims

	UserID string   `json:"userId,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// mapParseError folds golang-jwt validation errors into our sentinels so
// callers can errors.Is against a single set.
func mapParseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownKID):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.Join(ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Join(ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.Join(ErrAlgMismatch, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Join(ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return errors.Join(ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errors.Join(ErrIssuer, err)
	default:
		return errors.Join(ErrInvalidClaim, err)
	}
}
