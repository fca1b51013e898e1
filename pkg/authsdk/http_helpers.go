package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/trustline/pkg/httpx"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// doRequest performs an HTTP request against the service. Transport
// failures wrap ErrUnavailable.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body any,
	header http.Header,
) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, JoinURL(c.BaseURL, path), rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = slices.Clone(vs)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.RequestIDs != nil && req.Header.Get("X-Request-Id") == "" {
		id, err := c.RequestIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: request id: %w", ErrUnavailable, err)
		}
		req.Header.Set("X-Request-Id", id)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

// decodeJSON checks the status and decodes the body into v. Unexpected
// statuses are parsed as an error body. v may be nil.
func decodeJSON(resp *http.Response, v any, expectedStatus ...int) error {
	defer func() { _ = resp.Body.Close() }()

	if !slices.Contains(expectedStatus, resp.StatusCode) {
		return parseErrorResponse(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeSuccess accepts any 2xx response. An empty body leaves v untouched.
func decodeSuccess(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse turns an error response into an *httpx.APIError that
// carries the upstream status, whether or not the body is readable.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body httpx.ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		body = httpx.ErrorBody{}
	}
	return httpx.FromBody(resp.StatusCode, body)
}
