package jwtx

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the issuer claim stamped on access and refresh tokens.
const DefaultIssuer = "Healthcare Authorization"

// MinHMACKeySize is the smallest accepted HS256 key, in bytes.
const MinHMACKeySize = 32

var (
	ErrWeakKey   = errors.New("jwtx: hmac key shorter than 32 bytes")
	ErrSharedKey = errors.New("jwtx: access and refresh keys must differ")
)

// TokenKind selects which key signs and verifies a token.
type TokenKind int

const (
	AccessToken TokenKind = iota
	RefreshToken
)

func (k TokenKind) String() string {
	switch k {
	case AccessToken:
		return "access"
	case RefreshToken:
		return "refresh"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CodecOptions configures a TokenCodec.
type CodecOptions struct {
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock overrides time.Now, mostly for tests.
	Clock func() time.Time
}

// TokenCodec mints and verifies HS256 access and refresh tokens. Access and
// refresh tokens are signed with distinct keys so a leaked refresh key can't
// be used to mint access tokens.
type TokenCodec struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec validates opts and returns a codec.
func NewTokenCodec(opts CodecOptions) (*TokenCodec, error) {
	if len(opts.AccessKey) < MinHMACKeySize || len(opts.RefreshKey) < MinHMACKeySize {
		return nil, ErrWeakKey
	}
	if bytes.Equal(opts.AccessKey, opts.RefreshKey) {
		return nil, ErrSharedKey
	}

	c := &TokenCodec{
		accessKey:  bytes.Clone(opts.AccessKey),
		refreshKey: bytes.Clone(opts.RefreshKey),
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Clock,
	}
	if c.issuer == "" {
		c.issuer = DefaultIssuer
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTokenTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTokenTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// AccessTTL is the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccess signs an access token for subject carrying the user id and roles.
func (c *TokenCodec) MintAccess(subject, userID string, roles []string) (string, error) {
	claims := c.newClaims(subject, c.accessTTL)
	claims.UserID = userID
	claims.Roles = slices.Clone(roles)
	return c.sign(claims, c.accessKey)
}

// MintRefresh signs a refresh token for subject.
func (c *TokenCodec) MintRefresh(subject string) (string, error) {
	return c.sign(c.newClaims(subject, c.refreshTTL), c.refreshKey)
}

// Verify reports whether token is a valid, unexpired token of the given kind
// whose subject equals expectedSubject. It never returns an error; any parse
// or validation failure is simply false.
func (c *TokenCodec) Verify(token, expectedSubject string, kind TokenKind) bool {
	if expectedSubject == "" {
		return false
	}
	claims, err := c.ExtractClaims(token, kind)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject
}

// ExtractClaims parses and validates token with the key for kind.
func (c *TokenCodec) ExtractClaims(token string, kind TokenKind) (*Claims, error) {
	key, err := c.keyFor(kind)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidClaim
	}
	return claims, nil
}

// RemainingTTL returns how long token has left before it expires, or zero
// if it is already expired or can't be parsed.
func (c *TokenCodec) RemainingTTL(token string, kind TokenKind) time.Duration {
	claims, err := c.ExtractClaims(token, kind)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	return max(claims.ExpiresAt.Sub(c.now()), 0)
}

func (c *TokenCodec) newClaims(subject string, ttl time.Duration) Claims {
	now := c.now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        idx.NewAt(now).String(),
		},
	}
}

func (c *TokenCodec) sign(claims Claims, key []byte) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaim)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (c *TokenCodec) keyFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case AccessToken:
		return c.accessKey, nil
	case RefreshToken:
		return c.refreshKey, nil
	default:
		return nil, fmt.Errorf("jwtx: unknown token kind %s", kind)
	}
}
