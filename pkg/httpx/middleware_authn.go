package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/trustline/pkg/cryptox"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// AccessTokens verifies access tokens. *jwtx.TokenCodec satisfies it.
type AccessTokens interface {
	ExtractClaims(token string, kind jwtx.TokenKind) (*jwtx.Claims, error)
	Verify(token, expectedSubject string, kind jwtx.TokenKind) bool
}

// BlacklistChecker reports whether an access token has been revoked. It is
// expected to apply its own failure policy; an error is treated as revoked.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// PrincipalLoader resolves a token subject to the current principal.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, subject string) (*Principal, error)
}

// Authenticator establishes a principal from a bearer access token. It never
// rejects a request itself: every failure leaves the request unauthenticated
// and RequireAuthenticated or RequireAnyRole decides what to do with it.
type Authenticator struct {
	Tokens      AccessTokens
	Revocations BlacklistChecker
	Principals  PrincipalLoader
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := a.authenticate(r); p != nil {
			if ctx, ok := WithPrincipal(r.Context(), p); ok {
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) *Principal {
	ctx := r.Context()
	if _, ok := PrincipalFromContext(ctx); ok {
		return nil
	}

	token := BearerToken(r)
	if token == "" {
		return nil
	}
	log := slogx.FromContext(ctx).With("token_fp", cryptox.FingerprintToken(token))

	blacklisted, err := a.Revocations.IsBlacklisted(ctx, token)
	if err != nil {
		log.Warn("blacklist lookup failed, treating token as revoked", "err", err)
		return nil
	}
	if blacklisted {
		log.Info("blacklisted access token presented")
		return nil
	}

	claims, err := a.Tokens.ExtractClaims(token, jwtx.AccessToken)
	if err != nil {
		log.Debug("access token rejected", "err", err)
		return nil
	}

	principal, err := a.Principals.LoadPrincipal(ctx, claims.Subject)
	if err != nil || principal == nil {
		log.Debug("principal lookup failed", "err", err)
		return nil
	}

	if !a.Tokens.Verify(token, principal.Subject, jwtx.AccessToken) {
		return nil
	}
	return principal
}

// RequireAuthenticated rejects requests without an established principal.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			writeBearerError(w, r, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnyRole rejects requests whose principal carries none of roles.
// Unauthenticated requests get a 401 rather than a 403.
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeBearerError(w, r, "authentication required")
				return
			}
			for _, role := range roles {
				if p.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, r, ErrAuthorization.WithMessage("insufficient role"))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, r *http.Request, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, r, ErrAuthentication.WithMessage(desc))
}
