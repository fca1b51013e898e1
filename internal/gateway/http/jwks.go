package http

import (
	"net/http"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
)

// JWKSPath publishes the user-context verification keys.
const JWKSPath = "/.well-known/jwks.json"

// JWKSHandler exposes the JSON Web Key Set downstream services verify the
// user-context assertion with.
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, keys.PublicJWKS())
	}
}
