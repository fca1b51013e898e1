// Package credentials looks users up by email for login, refresh and
// per-request principal loading. Users are owned by another service; this
// package only reads them.
package credentials

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/trustline/internal/auth/domain"
)

var (
	ErrUserNotFound = errors.New("credentials: user not found")
	ErrUserDisabled = errors.New("credentials: user disabled")
	ErrUnavailable  = errors.New("credentials: user service unavailable")
)

// Store resolves a user by email. Disabled users are returned together with
// ErrUserDisabled so callers can still log who was refused.
type Store interface {
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}
