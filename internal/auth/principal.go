package auth

import "context"

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Name   string
	// Via records how the caller authenticated: "jwt", "bearer-session" or "cookie".
	Via string
	// SessionToken is set when the caller authenticated with a session.
	SessionToken string
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// UserID returns the caller's id or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.UserID
	}
	return ""
}
