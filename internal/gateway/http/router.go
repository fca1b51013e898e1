// Package http is the gateway's edge: request-id stage, auth delegation,
// user-context minting and the reverse proxy, wired per route.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/internal/gateway/proxy"
	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	"github.com/aussiebroadwan/trustline/pkg/usercontext"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

var errNoRequestID = errors.New("request id not established")

// Options wires the router.
type Options struct {
	Routes []proxy.Route

	// AuthService is the default auth service base URL for protected routes.
	AuthService string
	HTTPClient  *http.Client

	Minter        *usercontext.Minter
	ContextHeader string
	Keys          *jwtx.KeySet

	RequestIDs *reqid.Store
	Redis      redis.UniversalClient

	CORSOrigins []string
	Version     string
	Logger      *slog.Logger
}

// NewRouter builds the gateway handler. Every request passes the request-id
// stage; protected routes then run delegation and user-context minting,
// public routes only have their trust headers scrubbed.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", reqid.Header},
			ExposedHeaders:   []string{reqid.Header},
			AllowCredentials: len(opts.CORSOrigins) > 0,
			MaxAge:           300,
		}),
		reqid.Middleware(opts.RequestIDs),
		slogx.HTTPMiddleware(logger),
		httpx.SecurityHeaders,
	)

	r.Get("/livez", livezHandler(start, opts.Version))
	r.Get("/readyz", readyzHandler(start, opts.Version, opts.Redis, opts.Keys))
	r.Get(JWKSPath, JWKSHandler(opts.Keys))

	for _, route := range opts.Routes {
		mount(r, route, pipeline(opts, route), proxy.New(route))
		logger.Info("route mounted", "name", route.Name, "prefix", route.Prefix, "auth", route.Auth)
	}

	return r
}

// pipeline returns the ordered stages run before the proxy.
func pipeline(opts Options, route proxy.Route) []func(http.Handler) http.Handler {
	if !route.Auth {
		return []func(http.Handler) http.Handler{usercontext.Scrub}
	}

	base := route.AuthService
	if base == "" {
		base = opts.AuthService
	}
	delegation := &Delegation{
		Client: &authsdk.SDKClient{
			BaseURL:    base,
			HTTPClient: opts.HTTPClient,
			RequestIDs: func(ctx context.Context) (string, error) {
				if id := reqid.FromContext(ctx); id != "" {
					return id, nil
				}
				return "", errNoRequestID
			},
		},
		Method:  route.AuthMethod,
		Path:    route.AuthPath,
		Forward: route.ForwardHeaders,
		Timeout: route.AuthTimeout,
	}

	return []func(http.Handler) http.Handler{
		delegation.Middleware,
		usercontext.Stage(usercontext.StageOptions{
			Minter:   opts.Minter,
			Header:   opts.ContextHeader,
			TTL:      route.ContextTTL,
			FailOpen: route.FailOpen,
		}),
	}
}

func mount(r chi.Router, route proxy.Route, stages []func(http.Handler) http.Handler, h http.Handler) {
	sub := r.With(stages...)
	if route.Prefix == "/" {
		sub.Handle("/*", h)
		return
	}
	sub.Handle(route.Prefix, h)
	sub.Handle(route.Prefix+"/*", h)
}
