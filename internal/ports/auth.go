package ports

// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/libsession/internal/domain/auth"
)

// ErrKeyNotFound is returned by KeyValueStore.Get when the key holds no value.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the raw persistence behind the credential slot.
// Implementations report failures; CredentialStore decides how to degrade.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A zero expiresAt means no expiry.
	Set(ctx context.Context, key, value string, expiresAt time.Time) error
	Delete(ctx context.Context, keys ...string) error
}

// CredentialStore holds the single logical credential slot.
// Operations never fail: persistence is an optimization, so errors degrade to no-ops.
type CredentialStore interface {
	Save(ctx context.Context, credential string)
	// Load returns the stored credential and whether one was found.
	Load(ctx context.Context) (string, bool)
	Clear(ctx context.Context)
}

// LoginInput carries the credentials submitted by the user.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginOutput is the backend's login response.
type LoginOutput struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthBackend is the backend's authentication API.
// Errors are classified with internal/errors codes (transient, authentication, validation).
type AuthBackend interface {
	Login(ctx context.Context, in LoginInput) (LoginOutput, error)
	Register(ctx context.Context, in RegisterInput) error
	// CurrentProfile fetches the profile of the credential currently in the store.
	CurrentProfile(ctx context.Context) (domainauth.ProfileRecord, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	// Logout notifies the backend that credential is being discarded.
	// The credential is passed explicitly because the store is cleared before the call.
	Logout(ctx context.Context, credential string) error
}

// Timer is a cancellable scheduled action.
type Timer interface {
	// Stop prevents the action from firing. It reports whether the call stopped it.
	Stop() bool
}

// Clock provides time and scheduling, swappable in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// MetricsSink emits StatsD-style metrics.
type MetricsSink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// ProfileProbe is the raw outcome of a current-profile request, kept for diagnostics.
type ProfileProbe struct {
	Status int    `json:"status"`
	Body   any    `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ProfileProber is implemented by backends that can fetch the current profile
// for an explicit credential without classifying the response.
type ProfileProber interface {
	ProbeProfile(ctx context.Context, credential string) ProfileProbe
}
