package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/authsdk"
)

// CookieOptions shapes the refresh token cookie.
type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

func (c CookieOptions) withDefaults(refreshTTL time.Duration) CookieOptions {
	if c.Name == "" {
		c.Name = authsdk.RefreshCookieName
	}
	if c.Path == "" {
		c.Path = "/v1/auth"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = refreshTTL
	}
	return c
}

func (c CookieOptions) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(token, int(c.MaxAge/time.Second)))
}

// clear expires the cookie in the browser (Max-Age=0).
func (c CookieOptions) clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c CookieOptions) read(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c CookieOptions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     c.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
