package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gatewayhttp "github.com/aussiebroadwan/trustline/internal/gateway/http"
	"github.com/aussiebroadwan/trustline/internal/gateway/proxy"
	"github.com/aussiebroadwan/trustline/pkg/cache"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	"github.com/aussiebroadwan/trustline/pkg/usercontext"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the gateway process.
type Application struct {
	cfg    Config
	logger *slog.Logger

	redis      *redis.Client
	requestIDs *reqid.Store
	keys       *jwtx.KeySet
	minter     *usercontext.Minter
	routes     []proxy.Route

	server *http.Server
}

// New validates cfg and wires every dependency. Any failure here is fatal.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	signer, keys, err := InitSigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user context signer: %w", err)
	}
	app.keys = keys
	app.minter = &usercontext.Minter{
		Signer:     signer,
		Issuer:     cfg.ContextIssuer,
		DefaultTTL: cfg.ContextTTL,
	}
	app.logger.Info("user context signer loaded", "kid", signer.KID())

	routes, err := proxy.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	if err := app.checkAuthService(routes); err != nil {
		return nil, err
	}
	app.routes = routes

	if err := app.initCache(); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// checkAuthService rejects protected routes with no auth service to call.
func (app *Application) checkAuthService(routes []proxy.Route) error {
	for _, r := range routes {
		if r.Auth && r.AuthService == "" && app.cfg.AuthServiceURL == "" {
			return fmt.Errorf("route %q requires auth but neither authService nor AUTH_SERVICE_URL is set", r.Name)
		}
	}
	return nil
}

func (app *Application) initCache() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.Open(ctx, app.cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client

	app.requestIDs = reqid.NewStore(client)
	app.requestIDs.Expiry = app.cfg.RequestIDTTL

	app.logger.Info("redis connected", "addr", app.cfg.Redis.Addr)
	return nil
}

func (app *Application) initHTTP() {
	handler := gatewayhttp.NewRouter(gatewayhttp.Options{
		Routes:        app.routes,
		AuthService:   app.cfg.AuthServiceURL,
		HTTPClient:    &http.Client{},
		Minter:        app.minter,
		ContextHeader: app.cfg.ContextHeader,
		Keys:          app.keys,
		RequestIDs:    app.requestIDs,
		Redis:         app.redis,
		CORSOrigins:   app.cfg.Origins(),
		Version:       BuildVersion,
		Logger:        app.logger,
	})

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Run serves until a signal arrives or the listener fails.
func (app *Application) Run() error {
	app.logger.Info("gateway starting", "port", app.cfg.Port, "routes", len(app.routes), "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, then closes the cache client.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}
