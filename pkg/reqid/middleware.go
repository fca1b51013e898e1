package reqid

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// ReserveTimeout bounds the best-effort reservation at ingress.
var ReserveTimeout = 500 * time.Millisecond

// Middleware is the ingress stage. It resolves the request id, rewrites the
// header so every later hop sees the same value, and reserves it. A cache
// failure never blocks the request.
func Middleware(store *Store) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Resolve(r.Header.Get(Header))
			r.Header.Set(Header, id)
			w.Header().Set(Header, id)

			ctx := WithID(r.Context(), id)
			ctx = slogx.WithRequestID(ctx, id)
			r = r.WithContext(ctx)

			reserve(ctx, store, id)
			next.ServeHTTP(w, r)
		})
	}
}

func reserve(ctx context.Context, store *Store, id string) {
	if store == nil {
		return
	}
	// Finish the write even if the client goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReserveTimeout)
	defer cancel()

	log := slogx.FromContext(ctx)
	created, err := store.Reserve(ctx, id)
	switch {
	case err != nil:
		log.Warn("request id reservation failed, continuing", "err", err)
	case !created:
		log.Warn("duplicate request id")
	}
}

// Require is the gate for internal services: the request must carry an id
// that is currently reserved. Any failure, including a cache error, is a 400.
// Health endpoints and skipPrefixes bypass the gate.
func Require(store *Store, skipPrefixes ...string) httpx.Middleware {
	skip := append([]string{"/livez", "/readyz"}, skipPrefixes...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range skip {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()
			id, ok := Valid(r.Header.Get(Header))
			if !ok {
				httpx.WriteError(w, r, httpx.ErrValidation.WithMessage("missing or malformed "+Header))
				return
			}

			exists, err := store.Exists(ctx, id)
			if err != nil {
				slogx.FromContext(ctx).Warn("request id lookup failed, rejecting", "err", err)
				httpx.WriteError(w, r, httpx.ErrValidation.WithMessage("unable to validate "+Header))
				return
			}
			if !exists {
				httpx.WriteError(w, r, httpx.ErrValidation.WithMessage("unknown "+Header))
				return
			}

			ctx = slogx.WithRequestID(WithID(ctx, id), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
