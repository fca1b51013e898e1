package http_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gatewayhttp "github.com/aussiebroadwan/trustline/internal/gateway/http"
	"github.com/aussiebroadwan/trustline/internal/gateway/proxy"
	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/usercontext"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return rsaKey
}

// seen records what a fake server received.
type seen struct {
	mu      sync.Mutex
	calls   int
	headers http.Header
	path    string
}

func (s *seen) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.headers = r.Header.Clone()
	s.path = r.URL.Path
}

func (s *seen) snapshot() (int, http.Header, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.headers, s.path
}

type gateway struct {
	srv      *httptest.Server
	mr       *miniredis.Miniredis
	auth     *seen
	upstream *seen
}

// authHandler answers like the auth service: 200 for "Bearer good", 403 for
// "Bearer disabled", 401 otherwise.
func authHandler(s *seen) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			httpx.WriteJSON(w, http.StatusOK, authsdk.ValidationResult{UserID: "42", Roles: []string{"ROLE_USER", "ROLE_ADMIN"}})
		case "Bearer disabled":
			httpx.WriteError(w, r, httpx.ErrAuthorization.WithMessage("account is disabled"))
		case "Bearer teapot":
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("not json"))
		case "Bearer slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		default:
			httpx.WriteError(w, r, httpx.ErrAuthentication.WithMessage("authentication required"))
		}
	}
}

func newGateway(t *testing.T, routesYAML func(upstream, auth string) string) *gateway {
	t.Helper()

	g := &gateway{auth: &seen{}, upstream: &seen{}}

	authSrv := httptest.NewServer(authHandler(g.auth))
	t.Cleanup(authSrv.Close)
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.upstream.record(r)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream ok"))
	}))
	t.Cleanup(upstreamSrv.Close)

	routes, err := proxy.ParseRoutes([]byte(routesYAML(upstreamSrv.URL, authSrv.URL)))
	require.NoError(t, err)

	signer, err := jwtx.NewSignerRS256("gw-1", signingKey(t))
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))

	g.mr = miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: g.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := gatewayhttp.NewRouter(gatewayhttp.Options{
		Routes:      routes,
		AuthService: authSrv.URL,
		Minter:      &usercontext.Minter{Signer: signer, DefaultTTL: time.Minute},
		Keys:        keys,
		RequestIDs:  reqid.NewStore(client),
		Redis:       client,
		Version:     "test",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	g.srv = httptest.NewServer(h)
	t.Cleanup(g.srv.Close)
	return g
}

func standardRoutes(upstream, _ string) string {
	return `
routes:
  - name: patients
    prefix: /api/patients
    upstream: ` + upstream + `
    auth: true
    contextTtl: 10s
    authTimeout: 200ms
  - name: public
    prefix: /public
    upstream: ` + upstream + `
    stripPrefix: true
`
}

func (g *gateway) get(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, g.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSpoofedIdentityHeadersNeverReachUpstream(t *testing.T) {
	g := newGateway(t, standardRoutes)
	rid := uuid.NewString()

	resp := g.get(t, "/api/patients/7", http.Header{
		"Authorization":      {"Bearer good"},
		"X-Request-Id":       {rid},
		"X-User-Id":          {"999"},
		"X-User-Roles":       {"ROLE_ADMIN"},
		"X-Internal-Service": {"billing"},
		"x-auth-override":    {"yes"},
		"X-User-Context":     {"forged"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, rid, resp.Header.Get("X-Request-Id"))

	calls, h, path := g.upstream.snapshot()
	require.Equal(t, 1, calls)
	require.Equal(t, "/api/patients/7", path)
	require.Equal(t, []string{"42"}, h.Values("X-User-Id"))
	require.Equal(t, "ROLE_USER,ROLE_ADMIN", h.Get("X-User-Roles"))
	require.Empty(t, h.Get("X-Internal-Service"))
	require.Empty(t, h.Get("X-Auth-Override"))
	require.Equal(t, rid, h.Get("X-Request-Id"))

	// the assertion verifies against the published key set
	sdk := authsdk.NewSDKClient(g.srv.URL)
	jwks, err := sdk.GetJWKS(context.Background())
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.ResetFromJWKS(*jwks))

	claims, err := (&usercontext.Verifier{Keys: keys}).Verify(h.Get("X-User-Context"), rid)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, rid, claims.RequestID)
	require.Equal(t, 10*time.Second, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	// the auth call carried only the allow-listed headers
	_, ah, _ := g.auth.snapshot()
	require.Equal(t, "Bearer good", ah.Get("Authorization"))
	require.Equal(t, rid, ah.Get("X-Request-Id"))
	require.Empty(t, ah.Get("X-User-Id"))
	require.Empty(t, ah.Get("X-Internal-Service"))

	// and the id was reserved at ingress
	require.True(t, g.mr.Exists("request-id:"+rid))
}

func TestDelegationFailures(t *testing.T) {
	tests := []struct {
		name   string
		authz  string
		status int
		msg    string
	}{
		{name: "no token", status: http.StatusUnauthorized, msg: "authentication required"},
		{name: "rejected", authz: "Bearer bad", status: http.StatusUnauthorized},
		{name: "forbidden", authz: "Bearer disabled", status: http.StatusForbidden, msg: "account is disabled"},
		{name: "unparsable error body", authz: "Bearer teapot", status: http.StatusTeapot},
		{name: "timeout", authz: "Bearer slow", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, standardRoutes)
			header := http.Header{}
			if tt.authz != "" {
				header.Set("Authorization", tt.authz)
			}

			resp := g.get(t, "/api/patients", header)
			require.Equal(t, tt.status, resp.StatusCode)

			var body httpx.ErrorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tt.status, body.Status)
			require.Equal(t, "/api/patients", body.Path)
			if tt.msg != "" {
				require.Contains(t, body.Message, tt.msg)
			}

			calls, _, _ := g.upstream.snapshot()
			require.Zero(t, calls)
		})
	}
}

func TestAuthServiceDown(t *testing.T) {
	g := newGateway(t, func(upstream, _ string) string {
		return `
routes:
  - name: patients
    prefix: /api/patients
    upstream: ` + upstream + `
    auth: true
    authService: http://127.0.0.1:1
`
	})

	resp := g.get(t, "/api/patients", http.Header{"Authorization": {"Bearer good"}})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPublicRouteScrubsAndStrips(t *testing.T) {
	g := newGateway(t, standardRoutes)

	resp := g.get(t, "/public/docs/index.html", http.Header{
		"X-User-Id":      {"999"},
		"X-User-Context": {"forged"},
		"Accept":         {"text/html"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	calls, h, path := g.upstream.snapshot()
	require.Equal(t, 1, calls)
	require.Equal(t, "/docs/index.html", path)
	require.Empty(t, h.Get("X-User-Id"))
	require.Empty(t, h.Get("X-User-Context"))
	require.Equal(t, "text/html", h.Get("Accept"))

	_, err := uuid.Parse(h.Get("X-Request-Id"))
	require.NoError(t, err, "a fresh id replaces the missing one")

	authCalls, _, _ := g.auth.snapshot()
	require.Zero(t, authCalls)
}

func TestClientAddressHeadersAreRebuilt(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
	}{
		{"forwarded for", http.Header{"X-Forwarded-For": {"203.0.113.7"}}},
		{"real ip", http.Header{"X-Real-Ip": {"203.0.113.8"}}},
		{"both", http.Header{"X-Forwarded-For": {"203.0.113.7, 10.0.0.1"}, "X-Real-Ip": {"203.0.113.8"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, standardRoutes)

			resp := g.get(t, "/public/ping", tt.header)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			_, h, _ := g.upstream.snapshot()
			require.Equal(t, "127.0.0.1", h.Get("X-Forwarded-For"))
			require.Empty(t, h.Get("X-Real-Ip"))
			require.Equal(t, "127.0.0.1", httpx.IPKeyExtractor(&http.Request{Header: h}))
		})
	}
}

func TestMalformedRequestIDIsReplaced(t *testing.T) {
	g := newGateway(t, standardRoutes)

	resp := g.get(t, "/public/x", http.Header{"X-Request-Id": {"not-a-uuid"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := resp.Header.Get("X-Request-Id")
	require.NotEqual(t, "not-a-uuid", got)
	_, h, _ := g.upstream.snapshot()
	require.Equal(t, got, h.Get("X-Request-Id"))
}

func TestRequestIDReservationFailsOpen(t *testing.T) {
	g := newGateway(t, standardRoutes)
	g.mr.SetError("LOADING")

	resp := g.get(t, "/public/x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpstreamDown(t *testing.T) {
	g := newGateway(t, func(_, _ string) string {
		return `
routes:
  - name: gone
    prefix: /gone
    upstream: http://127.0.0.1:1
`
	})

	resp := g.get(t, "/gone", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHealthAndJWKS(t *testing.T) {
	g := newGateway(t, standardRoutes)

	resp := g.get(t, "/livez", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.get(t, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.get(t, gatewayhttp.JWKSPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jwks jwtx.JWKS
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "gw-1", jwks.Keys[0].Kid)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))

	g.mr.SetError("LOADING")
	resp = g.get(t, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
