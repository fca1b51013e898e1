package usercontext

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// StageOptions configures the minting stage.
type StageOptions struct {
	Minter *Minter

	// Header names the assertion header. Defaults to X-User-Context.
	Header string
	TTL    time.Duration

	// FailOpen forwards requests without an established identity untouched.
	// Only for routes that do not need identity downstream.
	FailOpen bool
}

// StripProtected removes every header whose name starts with one of the
// protected prefixes, case-insensitively.
func StripProtected(h http.Header) {
	for name := range h {
		for _, p := range ProtectedPrefixes {
			if len(name) >= len(p) && strings.EqualFold(name[:len(p)], p) {
				h.Del(name)
				break
			}
		}
	}
}

// Scrub is the stage for public routes: it drops protected headers and adds
// nothing.
func Scrub(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		StripProtected(r.Header)
		next.ServeHTTP(w, r)
	})
}

// Stage mints the assertion for the identity established earlier in the
// pipeline and replaces any client-supplied trust headers with it.
func Stage(opts StageOptions) httpx.Middleware {
	header := opts.Header
	if header == "" {
		header = DefaultHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			id, ok := IdentityFromContext(ctx)
			if !ok || strings.TrimSpace(id.UserID) == "" || strings.TrimSpace(id.RequestID) == "" {
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				log.Warn("no established identity for user context")
				httpx.WriteError(w, r, httpx.ErrAuthentication.WithMessage("identity not established"))
				return
			}

			token, err := opts.Minter.Mint(id.UserID, id.Roles, id.RequestID, opts.TTL)
			if err != nil {
				log.Error("user context signing failed", "err", err)
				httpx.WriteError(w, r, httpx.ErrInternalSigning.WithCause(err))
				return
			}

			StripProtected(r.Header)
			r.Header.Del(header)
			r.Header.Set(UserIDHeader, id.UserID)
			r.Header.Set(RolesHeader, strings.Join(id.Roles, ","))
			r.Header.Set(header, token)

			next.ServeHTTP(w, r)
		})
	}
}
