/*
Package authsdk is a typed client for the trustline authentication service.

	client := authsdk.NewSDKClient("http://auth:8080")

	// Issue tokens. The refresh token comes back from the service as an
	// HttpOnly cookie and is surfaced on the returned TokenPair.
	pair, err := client.Login(ctx, "alice@example.com", "secret")

	// Rotate. The old refresh token is single-use.
	pair, err = client.Refresh(ctx, pair.RefreshToken)

	// Revoke both tokens.
	err = client.Logout(ctx, pair.RefreshToken, pair.AccessToken)

The gateway uses Validate for auth delegation, forwarding only the
allow-listed inbound headers:

	res, err := client.Validate(ctx, http.MethodGet, "/v1/auth/validate", headers)

# Errors

Error responses are decoded back into *httpx.APIError, so callers can use
errors.Is against httpx.ErrAuthentication, httpx.ErrAuthorization and the
rest of the taxonomy, and read the upstream status from APIError.Status.
Transport failures and timeouts wrap ErrUnavailable.

# Request ids

Every /v1/auth route on the service requires a reserved X-Request-Id. When
RequestIDs is set the client stamps one on each request that does not
already carry it; reqid.Mint is the usual implementation.
*/
package authsdk
