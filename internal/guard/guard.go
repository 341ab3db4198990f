// Package guard decides whether a view may be shown for the current session.
//
// The decision functions are pure: they look only at the Session. While the
// session is still Loading they answer Pending rather than Redirect, so a valid
// returning session is never bounced before its profile has been resolved.
package guard

import (
	domainauth "github.com/target/libsession/internal/domain/auth"
)

// Outcome is a guard decision.
type Outcome int

const (
	// Pending means no decision can be made yet; render a loading state.
	Pending Outcome = iota
	// Allow means the view may be shown.
	Allow
	// Redirect means the caller should navigate to the public landing view.
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "pending"
	}
}

// Policy is a guard decision function.
type Policy func(domainauth.Session) Outcome

// Authenticated allows any authenticated session.
func Authenticated(s domainauth.Session) Outcome {
	switch s.Status {
	case domainauth.StatusAuthenticated:
		return Allow
	case domainauth.StatusLoading:
		return Pending
	default:
		return Redirect
	}
}

// RequireRole allows authenticated sessions whose role is exactly role.
func RequireRole(s domainauth.Session, role domainauth.Role) Outcome {
	return RequireAnyRole(s, role)
}

// RequireAnyRole allows authenticated sessions whose role is one of roles.
// Unauthorized roles are redirected to the landing view, not shown an error.
// An empty set permits nobody.
func RequireAnyRole(s domainauth.Session, roles ...domainauth.Role) Outcome {
	if o := Authenticated(s); o != Allow {
		return o
	}
	if s.HasAnyRole(roles...) {
		return Allow
	}
	return Redirect
}

// AnyRole returns a Policy for RequireAnyRole with a fixed role set.
func AnyRole(roles ...domainauth.Role) Policy {
	set := append([]domainauth.Role(nil), roles...)
	return func(s domainauth.Session) Outcome { return RequireAnyRole(s, set...) }
}

// Role returns a Policy for RequireRole.
func Role(role domainauth.Role) Policy {
	return AnyRole(role)
}
