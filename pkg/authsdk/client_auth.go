package authsdk

import (
	"context"
	"net/http"
)

// Paths on the authentication service.
const (
	LoginPath    = "/v1/auth/login"
	RefreshPath  = "/v1/auth/refresh"
	LogoutPath   = "/v1/auth/logout"
	ValidatePath = "/v1/auth/validate"
)

// Login exchanges credentials for an access token and a refresh token.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, LoginPath, LoginRequest{Email: email, Password: password}, nil)
	if err != nil {
		return nil, err
	}
	return readTokenPair(resp)
}

// Refresh rotates refreshToken. The token passed in is invalid afterwards.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	h := http.Header{}
	h.Add("Cookie", (&http.Cookie{Name: RefreshCookieName, Value: refreshToken}).String())

	resp, err := c.doRequest(ctx, http.MethodPost, RefreshPath, nil, h)
	if err != nil {
		return nil, err
	}
	return readTokenPair(resp)
}

// Logout ends the refresh session and revokes the access token. Either may be blank.
func (c *SDKClient) Logout(ctx context.Context, refreshToken, accessToken string) error {
	h := http.Header{}
	if refreshToken != "" {
		h.Add("Cookie", (&http.Cookie{Name: RefreshCookieName, Value: refreshToken}).String())
	}
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, LogoutPath, nil, h)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusNoContent, http.StatusOK)
}

// Validate asks the service who the caller identified by header is. method
// is GET or POST; path is usually ValidatePath. header should already be
// reduced to the forwarding allow-list.
func (c *SDKClient) Validate(ctx context.Context, method, path string, header http.Header) (*ValidationResult, error) {
	if method == "" {
		method = http.MethodGet
	}
	if path == "" {
		path = ValidatePath
	}

	resp, err := c.doRequest(ctx, method, path, nil, header)
	if err != nil {
		return nil, err
	}

	var res ValidationResult
	if err := decodeSuccess(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func readTokenPair(resp *http.Response) (*TokenPair, error) {
	var body TokenResponse
	if err := decodeJSON(resp, &body, http.StatusOK); err != nil {
		return nil, err
	}

	pair := &TokenPair{AccessToken: body.AccessToken, UserID: body.UserID}
	for _, ck := range resp.Cookies() {
		if ck.Name == RefreshCookieName && ck.Value != "" {
			pair.RefreshToken = ck.Value
		}
	}
	if pair.RefreshToken == "" {
		return nil, ErrNoRefreshCookie
	}
	return pair, nil
}
