// Package usercontext mints and verifies the signed identity assertion the
// gateway attaches to every authenticated request it forwards.
//
// The assertion is an RS256 JWS with claims {iss, sub, iat, exp, rid, roles,
// ver}. It is built only from values the gateway established itself after
// auth delegation, never from client headers.
package usercontext

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// Version is stamped into every assertion as "ver".
	Version = "1.0"

	DefaultHeader = "X-User-Context"
	DefaultIssuer = "trustline-gateway"

	// FloorTTL applies when neither the requested nor the default TTL is positive.
	FloorTTL = 30 * time.Second

	UserIDHeader = "X-User-Id"
	RolesHeader  = "X-User-Roles"
)

var ErrMissingIdentity = errors.New("missing_identity")

// ProtectedPrefixes are header families a client may never supply.
var ProtectedPrefixes = []string{"X-User-", "X-Internal-", "X-Auth-"}

// Claims is the assertion payload.
type Claims struct {
	jwt.RegisteredClaims
	RequestID string   `json:"rid"`
	Roles     []string `json:"roles"`
	Version   string   `json:"ver"`
}

// Identity is the set of trust attributes the auth delegation stage
// establishes for a request.
type Identity struct {
	UserID    string
	Roles     []string
	RequestID string
}

type ctxKey struct{}

// WithIdentity records id as the request's established identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	id.Roles = slices.Clone(id.Roles)
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFromContext returns the established identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Minter signs assertions.
type Minter struct {
	Signer     jwtx.Signer
	Issuer     string
	DefaultTTL time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Mint signs an assertion for userID. A non-positive ttl falls back to the
// minter's DefaultTTL and then to FloorTTL.
func (m *Minter) Mint(userID string, roles []string, requestID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	requestID = strings.TrimSpace(requestID)
	if userID == "" || requestID == "" {
		return "", ErrMissingIdentity
	}

	ttl = m.effectiveTTL(ttl)
	now := time.Now()
	if m.Clock != nil {
		now = m.Clock()
	}

	issuer := m.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	rs := slices.Clone(roles)
	if rs == nil {
		rs = []string{}
	}

	return m.Signer.Sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RequestID: requestID,
		Roles:     rs,
		Version:   Version,
	})
}

func (m *Minter) effectiveTTL(requested time.Duration) time.Duration {
	switch {
	case requested > 0:
		return requested
	case m.DefaultTTL > 0:
		return m.DefaultTTL
	default:
		return FloorTTL
	}
}
