package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/domain"
	"github.com/aussiebroadwan/trustline/pkg/reqid"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
	"github.com/sony/gobreaker"
)

// LookupPath is the user service endpoint resolving an email to a user.
const LookupPath = "/api/v1/users/lookup"

// HTTPStore asks the user service. Calls run behind a circuit breaker and a
// timeout; every failure other than a 404 surfaces as ErrUnavailable.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	ids     *reqid.Store
}

// HTTPOptions configures an HTTPStore.
type HTTPOptions struct {
	BaseURL string
	Timeout time.Duration

	// Trip the breaker after this many consecutive failures, then stay open
	// for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration

	// RequestIDs, when set, mints and reserves an X-Request-Id for each
	// lookup so the user service's request-id gate admits it.
	RequestIDs *reqid.Store

	Transport http.RoundTripper
}

type lookupRequest struct {
	Email string `json:"email"`
}

// NewHTTPStore builds an HTTPStore.
func NewHTTPStore(opts HTTPOptions) *HTTPStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "user-service",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.MaxFailures
		},
		// Unknown and disabled users are answers, not failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserDisabled)
		},
	})

	return &HTTPStore{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		breaker: breaker,
		ids:     opts.RequestIDs,
	}
}

func (s *HTTPStore) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return s.lookup(ctx, email)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.User{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if errors.Is(err, ErrUserDisabled) {
			u, _ := res.(domain.User)
			return u, err
		}
		return domain.User{}, err
	}
	return res.(domain.User), nil
}

func (s *HTTPStore) lookup(ctx context.Context, email string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	body, err := json.Marshal(lookupRequest{Email: email})
	if err != nil {
		return domain.User{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+LookupPath, bytes.NewReader(body))
	if err != nil {
		return domain.User{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if s.ids != nil {
		id, err := reqid.Mint(ctx, s.ids)
		if err != nil {
			return domain.User{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		req.Header.Set(reqid.Header, id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error("user service unreachable", "err", err)
		return domain.User{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.User{}, ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		log.Error("user service lookup failed", "status", resp.StatusCode)
		return domain.User{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var u domain.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return domain.User{}, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	if u.ID == "" || u.Email == "" {
		return domain.User{}, fmt.Errorf("%w: incomplete user record", ErrUnavailable)
	}
	if !u.Enabled {
		log.Warn("disabled user lookup", "user_id", u.ID)
		return u, ErrUserDisabled
	}
	return u, nil
}
