package guard

import (
	"context"

	domainauth "github.com/target/libsession/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
type sessionKey struct{}

// WithSession returns a child context carrying s.
func WithSession(ctx context.Context, s domainauth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by the middleware and whether one was present.
func SessionFromContext(ctx context.Context) (domainauth.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domainauth.Session)
	return s, ok
}

// RoleFromContext returns the role of the session in ctx, Anonymous when absent.
func RoleFromContext(ctx context.Context) domainauth.Role {
	if s, ok := SessionFromContext(ctx); ok && s.Role != "" {
		return s.Role
	}
	return domainauth.RoleAnonymous
}
