package trustline_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/credentials"
	"github.com/aussiebroadwan/trustline/internal/auth/domain"
	authhttp "github.com/aussiebroadwan/trustline/internal/auth/http"
	"github.com/aussiebroadwan/trustline/internal/auth/service"
	rstore "github.com/aussiebroadwan/trustline/internal/auth/store/drivers/redis"
	gatewayhttp "github.com/aussiebroadwan/trustline/internal/gateway/http"
	"github.com/aussiebroadwan/trustline/internal/gateway/proxy"
	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/cache"
	"github.com/aussiebroadwan/trustline/pkg/cryptox"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/usercontext"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end tests run the auth service and the gateway in-process against a
 * real Redis started with testcontainers. Skipped with -short.
 */

const (
	redisImage = "redis:7-alpine"

	aliceEmail    = "alice@example.com"
	alicePassword = "correct-horse-battery"
	aliceID       = "42"
)

var redisAddr string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stdout, "skipping end-to-end tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()
	fmt.Fprintf(os.Stdout, "Starting Redis container...")
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to start Redis: %v\n", err)
		os.Exit(1)
	}

	redisAddr, err = containerAddr(ctx, container)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to resolve Redis address: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done (%s)\n", redisAddr)

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Stopping Redis container...")
	_ = container.Terminate(ctx)
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func containerAddr(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return "", err
	}
	return host + ":" + mappedPort.Port(), nil
}

// openRedis connects to the shared container and empties it.
func openRedis(t *testing.T) *redis.Client {
	t.Helper()
	client, err := cache.Open(t.Context(), cache.Config{Addr: redisAddr, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, client.FlushDB(t.Context()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var (
	keyOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return rsaKey
}

// upstream records the last request it served.
type upstream struct {
	mu     sync.Mutex
	calls  int
	header http.Header
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls++
	u.header = r.Header.Clone()
	u.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (u *upstream) last() (int, http.Header) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls, u.header
}

// stack is one auth service plus one gateway sharing a Redis.
type stack struct {
	redis    *redis.Client
	store    *rstore.Store
	ids      *reqid.Store
	auth     *httptest.Server
	gateway  *httptest.Server
	upstream *upstream
	keys     *jwtx.KeySet
	sdk      *authsdk.SDKClient
}

func newStack(t *testing.T, opts rstore.Options) *stack {
	t.Helper()

	client := openRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hash, err := cryptox.HashPassword(alicePassword)
	require.NoError(t, err)
	users, err := credentials.NewStaticStore([]domain.User{
		{ID: aliceID, Email: aliceEmail, PasswordHash: hash, Roles: []string{"ROLE_USER"}, Enabled: true},
	})
	require.NoError(t, err)

	tokens, err := jwtx.NewTokenCodec(jwtx.CodecOptions{
		AccessKey:  bytes.Repeat([]byte("A"), 32),
		RefreshKey: bytes.Repeat([]byte("R"), 32),
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	opts.RefreshTTL = tokens.RefreshTTL()
	opts.BlockTTL = tokens.AccessTTL()
	st := rstore.NewStore(client, opts)
	ids := reqid.NewStore(client)

	svc := &service.SessionService{
		Tokens:      tokens,
		Sessions:    st.RefreshSessions(),
		Revocations: st.Revocations(),
		Credentials: users,
	}
	router := authhttp.NewRouter(svc, st, ids, authhttp.CookieOptions{}, "e2e", logger)
	router.ApplyRoutes()
	authSrv := httptest.NewServer(router)
	t.Cleanup(authSrv.Close)

	up := &upstream{}
	upSrv := httptest.NewServer(up)
	t.Cleanup(upSrv.Close)

	routes, err := proxy.ParseRoutes([]byte(`
routes:
  - name: records
    prefix: /api/records
    upstream: ` + upSrv.URL + `
    auth: true
    contextTtl: 30s
`))
	require.NoError(t, err)

	signer, err := jwtx.NewSignerRS256("gw-e2e", signingKey(t))
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))

	gw := httptest.NewServer(gatewayhttp.NewRouter(gatewayhttp.Options{
		Routes:      routes,
		AuthService: authSrv.URL,
		Minter:      &usercontext.Minter{Signer: signer},
		Keys:        keys,
		RequestIDs:  ids,
		Redis:       client,
		Version:     "e2e",
		Logger:      logger,
	}))
	t.Cleanup(gw.Close)

	sdk := authsdk.NewSDKClient(authSrv.URL)
	sdk.RequestIDs = func(ctx context.Context) (string, error) { return reqid.Mint(ctx, ids) }

	return &stack{
		redis:    client,
		store:    st,
		ids:      ids,
		auth:     authSrv,
		gateway:  gw,
		upstream: up,
		keys:     keys,
		sdk:      sdk,
	}
}

// throughGateway calls a protected route with the given access token.
func (s *stack) throughGateway(t *testing.T, accessToken string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, s.gateway.URL+"/api/records/1", nil)
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("X-User-Id", "999")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
