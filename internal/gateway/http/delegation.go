package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	"github.com/aussiebroadwan/trustline/pkg/usercontext"
)

// DefaultDelegationTimeout bounds the call to the auth service.
const DefaultDelegationTimeout = 3 * time.Second

// DefaultForwardHeaders is the allow-list copied onto the validation call
// when a route doesn't name its own.
var DefaultForwardHeaders = []string{"Authorization", reqid.Header}

// Delegation asks the auth service who the caller is. On success the
// identity is placed in the request context for the user-context stage; on
// failure the request is answered here and never reaches the upstream.
type Delegation struct {
	Client  *authsdk.SDKClient
	Method  string
	Path    string
	Forward []string
	Timeout time.Duration
}

func (d *Delegation) Middleware(next http.Handler) http.Handler {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDelegationTimeout
	}
	forward := d.Forward
	if len(forward) == 0 {
		forward = DefaultForwardHeaders
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := slogx.FromContext(ctx)

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := d.Client.Validate(callCtx, d.Method, d.Path, forwardable(r.Header, forward))
		cancel()

		if err != nil {
			var apiErr *httpx.APIError
			if errors.As(err, &apiErr) {
				log.Info("auth delegation rejected request", "status", apiErr.Status)
				httpx.WriteError(w, r, apiErr)
				return
			}
			log.Error("auth delegation failed", "err", err)
			httpx.WriteError(w, r, httpx.ErrServiceUnavailable.WithMessage("authentication service unavailable").WithCause(err))
			return
		}

		id := usercontext.Identity{
			UserID:    res.UserID,
			Roles:     res.Roles,
			RequestID: reqid.FromContext(ctx),
		}
		next.ServeHTTP(w, r.WithContext(usercontext.WithIdentity(ctx, id)))
	})
}

// forwardable copies the allowed headers, matching names case-insensitively.
func forwardable(in http.Header, allow []string) http.Header {
	out := make(http.Header, len(allow))
	for name, values := range in {
		for _, a := range allow {
			if strings.EqualFold(name, a) {
				out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
				break
			}
		}
	}
	return out
}
