package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/trustline/pkg/authsdk"
	"github.com/aussiebroadwan/trustline/pkg/httpx"
)

// LivezHandler always answers 200 while the process is serving.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
