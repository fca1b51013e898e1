package authsdk

import "errors"

// ErrUnavailable wraps transport failures: refused connections, timeouts and
// cancelled contexts. The service was never heard from.
var ErrUnavailable = errors.New("auth_service_unavailable")

// ErrNoRefreshCookie is returned when a token response lacks the refresh cookie.
var ErrNoRefreshCookie = errors.New("missing_refresh_cookie")
