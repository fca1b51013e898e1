package service

import (
	"errors"

	"github.com/aussiebroadwan/trustline/internal/auth/store"
)

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrUserDisabled       = errors.New("user_disabled")
	ErrUnavailable        = errors.New("service_unavailable")

	ErrUserBlocked  = store.ErrUserBlocked
	ErrSessionLimit = store.ErrSessionLimit
)
