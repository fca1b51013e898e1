// Package redis implements the auth stores on the shared Redis instance.
//
// Key namespace:
//
//	refresh:{userId}          set of the user's live refresh tokens
//	refresh:{userId}:{token}  "valid", TTL = refresh lifetime
//	blacklist:{token}         "blacklisted", TTL = remaining access lifetime
//	refresh-block:{userId}    "blocked", TTL = access lifetime
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	refreshPrefix   = "refresh:"
	blacklistPrefix = "blacklist:"
	blockPrefix     = "refresh-block:"

	validValue       = "valid"
	blacklistedValue = "blacklisted"
	blockedValue     = "blocked"
)

// FailurePolicy decides what IsBlacklisted reports when Redis fails.
type FailurePolicy string

const (
	// FailDeny treats the token as revoked.
	FailDeny FailurePolicy = "deny"
	// FailAllow treats the token as not revoked and logs the failure.
	FailAllow FailurePolicy = "allow"
)

// Options configures the stores.
type Options struct {
	// RefreshTTL is the lifetime of a refresh session.
	RefreshTTL time.Duration
	// BlockTTL is how long an account stays blocked; the access token lifetime.
	BlockTTL time.Duration
	// MaxSessions caps concurrent refresh sessions per user.
	MaxSessions int

	// Atomic runs Save as a single Lua script. The default is the plain
	// check-then-add sequence, where two concurrent saves near the cap can
	// both pass the count check.
	Atomic bool

	BlacklistFailure FailurePolicy
}

func (o Options) withDefaults() Options {
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 7 * 24 * time.Hour
	}
	if o.BlockTTL <= 0 {
		o.BlockTTL = 15 * time.Minute
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 5
	}
	if o.BlacklistFailure == "" {
		o.BlacklistFailure = FailDeny
	}
	return o
}

// Store implements store.Store.
type Store struct {
	client goredis.UniversalClient
	opts   Options
}

var _ store.Store = (*Store)(nil)

func NewStore(client goredis.UniversalClient, opts Options) *Store {
	return &Store{client: client, opts: opts.withDefaults()}
}

func (s *Store) RefreshSessions() store.RefreshSessions { return &refreshSessions{s: s} }
func (s *Store) Revocations() store.Revocations         { return &revocations{s: s} }

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func setKey(userID string) string          { return refreshPrefix + userID }
func tokenKey(userID, token string) string { return refreshPrefix + userID + ":" + token }
func blacklistKey(token string) string     { return blacklistPrefix + token }
func blockKey(userID string) string        { return blockPrefix + userID }
