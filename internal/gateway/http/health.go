package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/cache"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
	"github.com/aussiebroadwan/trustline/pkg/jwtx"
	"github.com/redis/go-redis/v9"
)

func livezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// readyzHandler checks the cache and the signing key. The cache only backs
// request-id bookkeeping here, so an outage degrades readiness without
// failing traffic.
func readyzHandler(startTime time.Time, version string, client redis.UniversalClient, keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"cache": "ok", "signer": "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if client == nil {
			checks["cache"] = "error: not configured"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else if err := cache.Ping(r.Context(), client); err != nil {
			checks["cache"] = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		if !keys.IsReady() {
			checks["signer"] = "error: no keys loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
