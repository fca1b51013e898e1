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

	"github.com/aussiebroadwan/trustline/internal/auth/credentials"
	httpapi "github.com/aussiebroadwan/trustline/internal/auth/http"
	"github.com/aussiebroadwan/trustline/internal/auth/service"
	rstore "github.com/aussiebroadwan/trustline/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/trustline/pkg/cache"
	"github.com/aussiebroadwan/trustline/pkg/cryptox"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	redis      *redis.Client
	store      *rstore.Store
	requestIDs *reqid.Store
	tokens     *jwtx.TokenCodec
	creds      credentials.Store

	// Services
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	tokens, err := InitTokenCodec(app.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.tokens = tokens

	if err := app.initCache(); err != nil {
		return nil, err
	}
	if err := app.initCredentials(); err != nil {
		_ = app.redis.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
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

	app.store = rstore.NewStore(client, rstore.Options{
		RefreshTTL:       app.tokens.RefreshTTL(),
		BlockTTL:         app.tokens.AccessTTL(),
		MaxSessions:      app.cfg.MaxSessions,
		Atomic:           app.cfg.AtomicSessions,
		BlacklistFailure: rstore.FailurePolicy(app.cfg.RevocationFailurePolicy),
	})

	app.requestIDs = reqid.NewStore(client)
	app.requestIDs.Expiry = app.cfg.RequestIDTTL

	app.logger.Info("redis connected", "addr", app.cfg.Redis.Addr, "atomic_sessions", app.cfg.AtomicSessions)
	return nil
}

func (app *Application) initCredentials() error {
	if app.cfg.UserServiceURL != "" {
		app.creds = credentials.NewHTTPStore(credentials.HTTPOptions{
			BaseURL:    app.cfg.UserServiceURL,
			Timeout:    app.cfg.UserServiceTimeout,
			RequestIDs: app.requestIDs,
		})
		app.logger.Info("credentials from user service", "url", app.cfg.UserServiceURL)
		return nil
	}

	users, err := credentials.LoadStaticFile(app.cfg.UsersFile)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	app.creds = users
	app.logger.Info("credentials from static file", "path", app.cfg.UsersFile)
	return nil
}

func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Tokens:      app.tokens,
		Sessions:    app.store.RefreshSessions(),
		Revocations: app.store.Revocations(),
		Credentials: app.creds,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.store.RefreshSessions(),
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.sessionService,
		app.store,
		app.requestIDs,
		httpapi.CookieOptions{Path: app.cfg.CookiePath, Secure: app.cfg.CookieSecure},
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
