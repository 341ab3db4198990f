package auth

// Package auth contains domain-level types for the client session.
// It is pure and free of transport/storage concerns.

import (
	"slices"
	"strings"
	"time"
)

// Role represents the canonical access tier of the current user.
// Roles are derived (see ResolveRole) and never persisted directly.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a role string onto a canonical Role, ignoring case and surrounding space.
// Only roles an account can hold are recognized; "anonymous" is not.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleMember:
		return RoleMember, true
	case RoleLibrarian:
		return RoleLibrarian, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// rank orders roles by privilege: Anonymous < Member < Librarian < Admin.
func (r Role) rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleLibrarian:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// IsAtLeast reports whether r carries at least the privileges of min.
func (r Role) IsAtLeast(minRole Role) bool {
	return r.rank() >= minRole.rank()
}

// RoleFlags carries boolean role markers some profile payloads use instead of a role string.
type RoleFlags struct {
	IsAdmin     bool `json:"is_admin"`
	IsLibrarian bool `json:"is_librarian"`
}

// ProfileRecord is the authoritative user record returned by the backend's current-user endpoint.
// Each role shape is an explicit optional field; ResolveRole applies the precedence between them.
type ProfileRecord struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role,omitempty"`
	RoleFlags   *RoleFlags `json:"role_flags,omitempty"`
	RoleList    []string   `json:"roles,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// ClaimSet is the advisory payload decoded from a credential. It is never persisted.
type ClaimSet struct {
	Exp  time.Time
	Role string
	Raw  map[string]any
}

// Expired reports whether the claim set's expiry is at or before now.
func (c ClaimSet) Expired(now time.Time) bool {
	return !c.Exp.After(now)
}

// Remaining returns the lifetime left before expiry, clamped to zero.
func (c ClaimSet) Remaining(now time.Time) time.Duration {
	if d := c.Exp.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// Session is the client-visible authentication state.
// ID is a local correlation identifier, regenerated for every authenticated credential.
type Session struct {
	ID        string         `json:"id,omitempty"`
	Status    Status         `json:"status"`
	Profile   *ProfileRecord `json:"profile,omitempty"`
	Role      Role           `json:"role"`
	LastError string         `json:"last_error,omitempty"`
	ExpiresAt time.Time      `json:"expires_at,omitzero"`
}

// IsAuthenticated reports whether the session is in the Authenticated state.
func (s Session) IsAuthenticated() bool { return s.Status == StatusAuthenticated }

// IsLoading reports whether no decision about the session has been made yet.
func (s Session) IsLoading() bool { return s.Status == StatusLoading }

// HasAnyRole reports whether the session role is one of roles.
func (s Session) HasAnyRole(roles ...Role) bool {
	return slices.Contains(roles, s.Role)
}

// AnonymousSession returns the torn-down session state.
func AnonymousSession() Session {
	return Session{Status: StatusAnonymous, Role: RoleAnonymous}
}

// LoadingSession returns the initial session state at process start.
func LoadingSession() Session {
	return Session{Status: StatusLoading, Role: RoleAnonymous}
}

// Result is the outcome of a session operation. Expected failures are reported here
// instead of as errors so callers have a single contract to handle.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Succeeded returns a successful Result.
func Succeeded() Result { return Result{Success: true} }

// Failed returns an unsuccessful Result carrying a display message.
func Failed(message string) Result { return Result{Error: message} }
