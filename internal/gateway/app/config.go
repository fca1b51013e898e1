package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/cache"
	"github.com/hashicorp/go-multierror"
	"github.com/joeshaw/envdecode"
)

type Config struct {
	Env                 string        `env:"ENV,default=dev"`
	LogLevel            string        `env:"LOG_LEVEL,default=info"`
	LogFormat           string        `env:"LOG_FORMAT,default=json"`
	Port                int           `env:"PORT,default=8080"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD,default=10s"`

	RoutesFile     string `env:"GATEWAY_ROUTES_FILE,default=routes.yaml"`
	AuthServiceURL string `env:"AUTH_SERVICE_URL"`

	// The user-context signing key: a file path is preferred over inline PEM.
	PrivateKeyPath string        `env:"USER_CONTEXT_PRIVATE_KEY_PATH"`
	PrivateKeyPEM  string        `env:"USER_CONTEXT_PRIVATE_KEY_PEM"`
	KeyID          string        `env:"USER_CONTEXT_KID"`
	ContextHeader  string        `env:"USER_CONTEXT_HEADER,default=X-User-Context"`
	ContextIssuer  string        `env:"USER_CONTEXT_ISSUER,default=trustline-gateway"`
	ContextTTL     time.Duration `env:"USER_CONTEXT_TTL,default=60s"`

	// Comma-separated; empty allows any origin without credentials.
	CORSOrigins string `env:"CORS_ALLOWED_ORIGINS"`

	RequestIDTTL time.Duration `env:"REQUEST_ID_TTL,default=30s"`

	Redis cache.Config
}

// LoadConfig decodes the environment. Call Validate before using the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// Origins splits CORSOrigins.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.RoutesFile == "" {
		result = multierror.Append(result, errors.New("GATEWAY_ROUTES_FILE is required"))
	}
	if c.AuthServiceURL != "" && !strings.HasPrefix(c.AuthServiceURL, "http://") && !strings.HasPrefix(c.AuthServiceURL, "https://") {
		result = multierror.Append(result, fmt.Errorf("AUTH_SERVICE_URL must be an http(s) URL, got %q", c.AuthServiceURL))
	}
	if c.PrivateKeyPath == "" && strings.TrimSpace(c.PrivateKeyPEM) == "" {
		result = multierror.Append(result, errors.New("one of USER_CONTEXT_PRIVATE_KEY_PATH or USER_CONTEXT_PRIVATE_KEY_PEM is required"))
	}
	if strings.TrimSpace(c.KeyID) == "" {
		result = multierror.Append(result, errors.New("USER_CONTEXT_KID is required"))
	}
	if c.ContextHeader == "" {
		result = multierror.Append(result, errors.New("USER_CONTEXT_HEADER must not be empty"))
	}
	if c.ContextTTL < 0 {
		result = multierror.Append(result, errors.New("USER_CONTEXT_TTL must not be negative"))
	}
	if c.RequestIDTTL <= 0 {
		result = multierror.Append(result, errors.New("REQUEST_ID_TTL must be positive"))
	}
	if err := c.Redis.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
