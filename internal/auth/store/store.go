package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserBlocked is returned by Save while the account is blocked.
	ErrUserBlocked = errors.New("store: user blocked")

	// ErrSessionLimit is returned by Save when the user already holds the
	// maximum number of refresh sessions. The account is blocked and every
	// existing session is dropped.
	ErrSessionLimit = errors.New("store: session limit reached")
)

// Store is the root data access interface. The shared cache is the only
// durable state, so the one driver is Redis.
type Store interface {
	RefreshSessions() RefreshSessions
	Revocations() Revocations

	// Ping verifies the cache connection is still alive.
	Ping(ctx context.Context) error
}

// RefreshSessions tracks the live refresh tokens of each user.
type RefreshSessions interface {
	// Save registers token as a live session of userID, subject to the block
	// list and the per-user session cap.
	Save(ctx context.Context, token, userID string) error

	// IsValid reports whether token is a live session of userID.
	IsValid(ctx context.Context, token, userID string) (bool, error)

	// Consume ends one session and reports whether it was still live. Only
	// one of several concurrent calls for the same token reports true.
	Consume(ctx context.Context, token, userID string) (bool, error)

	// Delete ends one session.
	Delete(ctx context.Context, token, userID string) error

	// DeleteAll ends every session of userID.
	DeleteAll(ctx context.Context, userID string) error

	// Count returns the size of the user's session set, including members
	// whose token key already expired but have not been pruned.
	Count(ctx context.Context, userID string) (int64, error)

	// Prune drops set members whose token key has expired.
	Prune(ctx context.Context, userID string) (int, error)

	// Users calls fn for every user holding a session set.
	Users(ctx context.Context, fn func(userID string) error) error
}

// Revocations holds the access-token blacklist and the account block list.
type Revocations interface {
	// Blacklist revokes accessToken for ttl. Blank tokens and non-positive
	// ttls are ignored.
	Blacklist(ctx context.Context, accessToken string, ttl time.Duration) error

	// IsBlacklisted reports whether accessToken was revoked. On cache errors
	// the driver's failure policy decides the answer.
	IsBlacklisted(ctx context.Context, accessToken string) (bool, error)

	// Block locks the account out of login and refresh.
	Block(ctx context.Context, userID string) error

	// IsBlocked reports whether the account is locked. Cache errors report
	// blocked together with the error.
	IsBlocked(ctx context.Context, userID string) (bool, error)
}
