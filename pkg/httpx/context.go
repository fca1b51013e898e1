package httpx

import (
	"context"
	"slices"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string // email
	UserID  string
	Roles   []string
	Enabled bool
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// WithPrincipal establishes p for the request. A principal already present in
// ctx is kept; the second return value reports whether p was installed.
func WithPrincipal(ctx context.Context, p *Principal) (context.Context, bool) {
	if p == nil {
		return ctx, false
	}
	if _, ok := PrincipalFromContext(ctx); ok {
		return ctx, false
	}
	return context.WithValue(ctx, ctxKeyPrincipal, p), true
}

// PrincipalFromContext returns the principal established for the request.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p, ok && p != nil
}
