// Package reqid resolves, reserves and enforces per-request correlation ids.
//
// The gateway resolves an id for every inbound request and reserves it in
// Redis with a short TTL. Reservation at the edge is best effort. Internal
// services gate on the reservation: a request whose id is not in the store
// did not come through the gateway and is rejected.
package reqid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header carries the correlation id between hops.
const Header = "X-Request-Id"

// canonicalLen is the length of the hyphenated 8-4-4-4-12 form.
const canonicalLen = 36

// Resolve returns header when it is a well-formed UUID, else a fresh UUIDv4.
func Resolve(header string) string {
	if id, ok := Valid(header); ok {
		return id
	}
	return uuid.NewString()
}

// Valid reports whether s is a canonical UUID and returns it trimmed.
// uuid.Parse also accepts urn and braced forms, which never travel as ids.
func Valid(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != canonicalLen {
		return "", false
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", false
	}
	return s, true
}

type ctxKey struct{}

// WithID stores id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request id resolved for this request, if any.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
