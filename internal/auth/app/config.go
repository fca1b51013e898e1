package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	rstore "github.com/aussiebroadwan/trustline/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/trustline/pkg/cache"
	"github.com/hashicorp/go-multierror"
	"github.com/joeshaw/envdecode"
)

type Config struct {
	Env                  string        `env:"ENV,default=dev"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	LogFormat            string        `env:"LOG_FORMAT,default=json"`
	Port                 int           `env:"PORT,default=8081"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD,default=10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL,default=1h"`

	// Token codec. Secrets are base64 and decode to at least 32 bytes.
	Issuer        string        `env:"AUTH_ISSUER,default=Healthcare Authorization"`
	AccessSecret  string        `env:"AUTH_ACCESS_SECRET"`
	RefreshSecret string        `env:"AUTH_REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"AUTH_ACCESS_TTL,default=15m"`
	RefreshTTL    time.Duration `env:"AUTH_REFRESH_TTL,default=168h"`

	// Refresh sessions and revocation.
	MaxSessions             int    `env:"AUTH_MAX_SESSIONS,default=5"`
	AtomicSessions          bool   `env:"AUTH_ATOMIC_SESSIONS,default=false"`
	RevocationFailurePolicy string `env:"AUTH_REVOCATION_FAILURE_POLICY,default=deny"`

	CookieSecure bool   `env:"AUTH_COOKIE_SECURE,default=true"`
	CookiePath   string `env:"AUTH_COOKIE_PATH,default=/v1/auth"`

	// Credentials come from the user service when USER_SERVICE_URL is set,
	// otherwise from the YAML seed at AUTH_USERS_FILE.
	PepperFile         string        `env:"AUTH_PEPPER_FILE,default=pepper"`
	UsersFile          string        `env:"AUTH_USERS_FILE"`
	UserServiceURL     string        `env:"USER_SERVICE_URL"`
	UserServiceTimeout time.Duration `env:"USER_SERVICE_TIMEOUT,default=3s"`

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

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	access, err := decodeSecret("AUTH_ACCESS_SECRET", c.AccessSecret)
	if err != nil {
		result = multierror.Append(result, err)
	}
	refresh, err := decodeSecret("AUTH_REFRESH_SECRET", c.RefreshSecret)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if access != nil && refresh != nil && string(access) == string(refresh) {
		result = multierror.Append(result, errors.New("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must differ"))
	}

	if c.AccessTTL <= 0 {
		result = multierror.Append(result, errors.New("AUTH_ACCESS_TTL must be positive"))
	}
	if c.RefreshTTL <= 0 {
		result = multierror.Append(result, errors.New("AUTH_REFRESH_TTL must be positive"))
	} else if c.RefreshTTL <= c.AccessTTL {
		result = multierror.Append(result, errors.New("AUTH_REFRESH_TTL must exceed AUTH_ACCESS_TTL"))
	}

	if c.MaxSessions < 1 {
		result = multierror.Append(result, fmt.Errorf("AUTH_MAX_SESSIONS must be at least 1, got %d", c.MaxSessions))
	}
	switch rstore.FailurePolicy(c.RevocationFailurePolicy) {
	case rstore.FailDeny, rstore.FailAllow:
	default:
		result = multierror.Append(result, fmt.Errorf("AUTH_REVOCATION_FAILURE_POLICY must be deny or allow, got %q", c.RevocationFailurePolicy))
	}

	if c.UserServiceURL == "" && c.UsersFile == "" {
		result = multierror.Append(result, errors.New("one of USER_SERVICE_URL or AUTH_USERS_FILE is required"))
	}
	if c.UserServiceURL != "" && !strings.HasPrefix(c.UserServiceURL, "http://") && !strings.HasPrefix(c.UserServiceURL, "https://") {
		result = multierror.Append(result, fmt.Errorf("USER_SERVICE_URL must be an http(s) URL, got %q", c.UserServiceURL))
	}
	if c.CookiePath != "" && !strings.HasPrefix(c.CookiePath, "/") {
		result = multierror.Append(result, errors.New("AUTH_COOKIE_PATH must start with /"))
	}
	if c.RequestIDTTL <= 0 {
		result = multierror.Append(result, errors.New("REQUEST_ID_TTL must be positive"))
	}

	if err := c.Redis.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
