package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/trustline/pkg/jwtx"
)

// JWKSPath is where the gateway publishes its user-context public keys.
const JWKSPath = "/.well-known/jwks.json"

// GetJWKS fetches a JSON Web Key Set from BaseURL. Point the client at the
// gateway to obtain the keys that verify X-User-Context assertions.
func (c *SDKClient) GetJWKS(ctx context.Context) (*jwtx.JWKS, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, JWKSPath, nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks jwtx.JWKS
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}
	return &jwks, nil
}
