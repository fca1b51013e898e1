package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/service"
	"github.com/aussiebroadwan/trustline/internal/auth/store"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store         store.Store
	requestIDs    *reqid.Store
	sessions      *service.SessionService
	authenticator *httpx.Authenticator
	cookie        CookieOptions
}

func NewRouter(
	sessions *service.SessionService,
	st store.Store,
	requestIDs *reqid.Store,
	cookie CookieOptions,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		requestIDs:   requestIDs,
		sessions:     sessions,
		cookie:       cookie.withDefaults(sessions.Tokens.RefreshTTL()),
		authenticator: &httpx.Authenticator{
			Tokens:      sessions.Tokens,
			Revocations: st.Revocations(),
			Principals:  sessions,
		},
	}

	// Health probes are exempt from the request-id gate.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.SecurityHeaders,
		reqid.Require(r.requestIDs),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Sessions: r.sessions, Cookie: r.cookie}

	// POST /login - strict rate limit by IP (credential guessing)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Validate is called by the gateway on every protected request.
	validate := httpx.Chain(http.HandlerFunc(h.HandleValidate),
		r.authenticator.Middleware,
		httpx.RequireAuthenticated,
		httpx.RateLimitByUser(httpx.PublicLimit),
	)
	r.Mux.Handle("GET /v1/auth/validate", validate)
	r.Mux.Handle("POST /v1/auth/validate", validate)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.sessions),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
