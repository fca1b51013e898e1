package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/service"
	"github.com/aussiebroadwan/trustline/internal/auth/store"
	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
)

// ReadyzHandler reports 503 until the cache answers and the token codec is
// configured.
func ReadyzHandler(startTime time.Time, version string, st store.Store, sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"cache": "ok", "codec": "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["cache"] = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if sessions == nil || sessions.Tokens == nil {
			checks["codec"] = "error: not configured"
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
