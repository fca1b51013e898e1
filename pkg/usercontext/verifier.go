package usercontext

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates clock skew between gateway and service.
const DefaultLeeway = 5 * time.Second

var (
	ErrVersion   = errors.New("unsupported_assertion_version")
	ErrRequestID = errors.New("assertion_request_id_mismatch")
)

// Verifier checks assertions on the receiving service.
type Verifier struct {
	Keys   *jwtx.KeySet
	Issuer string
	Leeway time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

// NewVerifierFromPEM trusts a single gateway key, given as a PKIX or PKCS#1
// public key PEM, for services that are provisioned with the key instead of
// fetching the gateway's JWKS.
func NewVerifierFromPEM(kid string, publicPEM []byte) (*Verifier, error) {
	pub, err := jwtx.LoadRSAPublicKey(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("load gateway public key: %w", err)
	}
	keys := jwtx.NewKeySet()
	if err := keys.AddPublicKey(kid, pub); err != nil {
		return nil, err
	}
	return &Verifier{Keys: keys}, nil
}

// Verify validates token and, when requestID is non-empty, that it was
// minted for that request.
func (v *Verifier) Verify(token, requestID string) (*Claims, error) {
	issuer := v.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	leeway := v.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}

	opts := []jwt.ParserOption{jwt.WithIssuer(issuer), jwt.WithLeeway(leeway), jwt.WithIssuedAt()}
	if v.Clock != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Clock))
	}

	claims := &Claims{}
	if err := jwtx.NewVerifierRS256(v.Keys).Verify(token, claims, opts...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", jwtx.ErrSubject)
	}
	if claims.Version != Version {
		return nil, fmt.Errorf("%w: %q", ErrVersion, claims.Version)
	}
	if requestID != "" && claims.RequestID != requestID {
		return nil, ErrRequestID
	}
	return claims, nil
}

// Middleware verifies the assertion header on inbound requests and exposes
// the asserted identity through IdentityFromContext. The assertion's rid
// must match the request's X-Request-Id.
func (v *Verifier) Middleware(header string) httpx.Middleware {
	if header == "" {
		header = DefaultHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := r.Header.Get(header)
			if token == "" {
				httpx.WriteError(w, r, httpx.ErrAuthentication.WithMessage("missing "+header))
				return
			}
			rid, ok := reqid.Valid(r.Header.Get(reqid.Header))
			if !ok {
				httpx.WriteError(w, r, httpx.ErrAuthentication.WithMessage("missing "+reqid.Header))
				return
			}

			claims, err := v.Verify(token, rid)
			if err != nil {
				slogx.FromContext(ctx).Warn("user context rejected", "err", err)
				httpx.WriteError(w, r, httpx.ErrAuthentication.WithMessage("invalid "+header))
				return
			}

			ctx = withVerified(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withVerified(ctx context.Context, c *Claims) context.Context {
	ctx = WithIdentity(ctx, Identity{UserID: c.Subject, Roles: c.Roles, RequestID: c.RequestID})
	ctx, _ = httpx.WithPrincipal(ctx, &httpx.Principal{UserID: c.Subject, Roles: c.Roles, Enabled: true})
	return ctx
}
