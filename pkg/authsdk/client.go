package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the authentication service.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// RequestIDs, when set, supplies an X-Request-Id for requests that do
	// not carry one.
	RequestIDs func(ctx context.Context) (string, error)
}

// NewSDKClient creates a client with a 10 second overall timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// JoinURL joins base and path with exactly one slash between them.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
