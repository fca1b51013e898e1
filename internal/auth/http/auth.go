package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/trustline/internal/auth/domain"
	"github.com/aussiebroadwan/trustline/internal/auth/service"
	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/slogx"
)

// AuthHandler serves /v1/auth/{login,refresh,logout,validate}.
type AuthHandler struct {
	Sessions *service.SessionService
	Cookie   CookieOptions
}

// HandleLogin serves POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	var invalid *httpx.APIError
	if strings.TrimSpace(req.Email) == "" {
		invalid = httpx.ErrValidation.WithField("email", "must not be blank")
	} else if !strings.Contains(req.Email, "@") {
		invalid = httpx.ErrValidation.WithField("email", "must be a well-formed email address")
	}
	if req.Password == "" {
		if invalid == nil {
			invalid = httpx.ErrValidation
		}
		invalid = invalid.WithField("password", "must not be blank")
	}
	if invalid != nil {
		httpx.WriteError(w, r, invalid.WithMessage("invalid login request"))
		return
	}

	pair, err := h.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writePair(w, pair)
}

// HandleRefresh serves POST /v1/auth/refresh. The refresh token arrives in
// the cookie and is consumed.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := h.Cookie.read(r)
	if token == "" {
		httpx.WriteError(w, r, httpx.ErrAuthentication.WithMessage("refresh token is missing"))
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			h.Cookie.clear(w)
		}
		writeServiceError(w, r, err)
		return
	}
	h.writePair(w, pair)
}

// HandleLogout serves POST /v1/auth/logout. It succeeds even when neither
// token is usable; the cookie is cleared either way.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	err := h.Sessions.Logout(r.Context(), h.Cookie.read(r), httpx.BearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Cookie.clear(w)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleValidate serves GET|POST /v1/auth/validate behind the authenticator.
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())
	v, err := h.Sessions.Validate(p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidationResult{UserID: v.UserID, Roles: v.Roles})
}

func (h *AuthHandler) writePair(w http.ResponseWriter, pair *domain.TokenPair) {
	h.Cookie.set(w, pair.RefreshToken)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{AccessToken: pair.AccessToken, UserID: pair.UserID})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *httpx.APIError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		apiErr = httpx.ErrValidation.WithMessage("email and password are required")
	case errors.Is(err, service.ErrInvalidCredentials):
		apiErr = httpx.ErrAuthentication.WithMessage("invalid email or password")
	case errors.Is(err, service.ErrInvalidRefresh):
		apiErr = httpx.ErrAuthentication.WithMessage("invalid refresh token")
	case errors.Is(err, service.ErrUserNotFound):
		apiErr = httpx.ErrNotFound.WithMessage("user not found")
	case errors.Is(err, service.ErrUserDisabled):
		apiErr = httpx.ErrAuthorization.WithMessage("account is disabled")
	case errors.Is(err, service.ErrSessionLimit):
		apiErr = httpx.ErrAuthorization.WithMessage("too many active sessions, account temporarily blocked")
	case errors.Is(err, service.ErrUserBlocked):
		apiErr = httpx.ErrAuthorization.WithMessage("account temporarily blocked")
	case errors.Is(err, service.ErrUnavailable):
		apiErr = httpx.ErrServiceUnavailable.WithMessage("authentication temporarily unavailable")
	default:
		slogx.FromContext(r.Context()).Error("unhandled auth error", "err", err)
		apiErr = httpx.ErrInternal
	}
	httpx.WriteError(w, r, apiErr.WithCause(err))
}
