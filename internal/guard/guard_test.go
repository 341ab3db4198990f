package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/libsession/internal/domain/auth"
)

func session(status domainauth.Status, role domainauth.Role) domainauth.Session {
	return domainauth.Session{Status: status, Role: role}
}

func TestAuthenticated(t *testing.T) {
	tests := []struct {
		name string
		s    domainauth.Session
		want Outcome
	}{
		{"loading is pending", domainauth.LoadingSession(), Pending},
		{"loading with a claim role is still pending", session(domainauth.StatusLoading, domainauth.RoleAdmin), Pending},
		{"anonymous redirects", domainauth.AnonymousSession(), Redirect},
		{"authenticated member", session(domainauth.StatusAuthenticated, domainauth.RoleMember), Allow},
		{"zero value redirects", domainauth.Session{}, Redirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authenticated(tt.s))
		})
	}
}

func TestRequireRole(t *testing.T) {
	assert.Equal(t, Allow, RequireRole(session(domainauth.StatusAuthenticated, domainauth.RoleAdmin), domainauth.RoleAdmin))
	assert.Equal(t, Redirect, RequireRole(session(domainauth.StatusAuthenticated, domainauth.RoleLibrarian), domainauth.RoleAdmin),
		"membership is exact, not hierarchical")
	assert.Equal(t, Pending, RequireRole(domainauth.LoadingSession(), domainauth.RoleAdmin))
	assert.Equal(t, Redirect, RequireRole(domainauth.AnonymousSession(), domainauth.RoleAnonymous))
}

func TestRequireAnyRole(t *testing.T) {
	staff := []domainauth.Role{domainauth.RoleLibrarian, domainauth.RoleAdmin}

	assert.Equal(t, Allow, RequireAnyRole(session(domainauth.StatusAuthenticated, domainauth.RoleLibrarian), staff...))
	assert.Equal(t, Allow, RequireAnyRole(session(domainauth.StatusAuthenticated, domainauth.RoleAdmin), staff...))
	assert.Equal(t, Redirect, RequireAnyRole(session(domainauth.StatusAuthenticated, domainauth.RoleMember), staff...))
	assert.Equal(t, Redirect, RequireAnyRole(session(domainauth.StatusAuthenticated, domainauth.RoleAdmin)), "empty set permits nobody")
	assert.Equal(t, Pending, RequireAnyRole(domainauth.LoadingSession(), staff...))
}

func TestPolicies(t *testing.T) {
	roles := []domainauth.Role{domainauth.RoleMember}
	p := AnyRole(roles...)
	roles[0] = domainauth.RoleAdmin

	assert.Equal(t, Allow, p(session(domainauth.StatusAuthenticated, domainauth.RoleMember)), "policy keeps its own copy of the set")
	assert.Equal(t, Redirect, Role(domainauth.RoleAdmin)(session(domainauth.StatusAuthenticated, domainauth.RoleMember)))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "redirect", Redirect.String())
}

func TestContextHelpers(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, domainauth.RoleAnonymous, RoleFromContext(context.Background()))

	ctx := WithSession(context.Background(), session(domainauth.StatusAuthenticated, domainauth.RoleLibrarian))
	s, ok := SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, domainauth.StatusAuthenticated, s.Status)
	assert.Equal(t, domainauth.RoleLibrarian, RoleFromContext(ctx))
}
