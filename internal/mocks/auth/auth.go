// Package auth provides hand-written test doubles for the session ports.
package auth

import (
	"context"
	"sync"

	domainauth "github.com/target/libsession/internal/domain/auth"
	"github.com/target/libsession/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.AuthBackend     = (*StubBackend)(nil)
	_ ports.CredentialStore = (*MemoryCredentialStore)(nil)
)

// StubBackend is a configurable ports.AuthBackend.
// Each method delegates to its Func field when set; otherwise it returns
// the deterministic defaults below.
type StubBackend struct {
	LoginFunc          func(ctx context.Context, in ports.LoginInput) (ports.LoginOutput, error)
	RegisterFunc       func(ctx context.Context, in ports.RegisterInput) error
	CurrentProfileFunc func(ctx context.Context) (domainauth.ProfileRecord, error)
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, token, newPassword string) error
	LogoutFunc         func(ctx context.Context, credential string) error

	// Credential is returned as the access token by the default Login.
	Credential string
	// Profile is returned by the default CurrentProfile.
	Profile domainauth.ProfileRecord

	mu          sync.Mutex
	loginCalls  int
	meCalls     int
	logoutCalls []string
}

// Login records the call and returns LoginFunc's result or the default.
func (s *StubBackend) Login(ctx context.Context, in ports.LoginInput) (ports.LoginOutput, error) {
	s.mu.Lock()
	s.loginCalls++
	s.mu.Unlock()
	if s.LoginFunc != nil {
		return s.LoginFunc(ctx, in)
	}
	return ports.LoginOutput{
		AccessToken: s.Credential,
		UserID:      s.Profile.ID,
		Email:       in.Email,
		Role:        s.Profile.Role,
	}, nil
}

// Register returns RegisterFunc's result or nil.
func (s *StubBackend) Register(ctx context.Context, in ports.RegisterInput) error {
	if s.RegisterFunc != nil {
		return s.RegisterFunc(ctx, in)
	}
	return nil
}

// CurrentProfile records the call and returns CurrentProfileFunc's result or Profile.
func (s *StubBackend) CurrentProfile(ctx context.Context) (domainauth.ProfileRecord, error) {
	s.mu.Lock()
	s.meCalls++
	s.mu.Unlock()
	if s.CurrentProfileFunc != nil {
		return s.CurrentProfileFunc(ctx)
	}
	return s.Profile, nil
}

// ForgotPassword returns ForgotPasswordFunc's result or nil.
func (s *StubBackend) ForgotPassword(ctx context.Context, email string) error {
	if s.ForgotPasswordFunc != nil {
		return s.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

// ResetPassword returns ResetPasswordFunc's result or nil.
func (s *StubBackend) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.ResetPasswordFunc != nil {
		return s.ResetPasswordFunc(ctx, token, newPassword)
	}
	return nil
}

// Logout records the credential and returns LogoutFunc's result or nil.
func (s *StubBackend) Logout(ctx context.Context, credential string) error {
	s.mu.Lock()
	s.logoutCalls = append(s.logoutCalls, credential)
	s.mu.Unlock()
	if s.LogoutFunc != nil {
		return s.LogoutFunc(ctx, credential)
	}
	return nil
}

// LoginCalls returns how many times Login was called.
func (s *StubBackend) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// ProfileCalls returns how many times CurrentProfile was called.
func (s *StubBackend) ProfileCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meCalls
}

// LogoutCalls returns the credentials passed to Logout, in call order.
func (s *StubBackend) LogoutCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logoutCalls...)
}

// MemoryCredentialStore is a trivial in-memory ports.CredentialStore.
type MemoryCredentialStore struct {
	mu         sync.Mutex
	credential string
	clears     int
}

// NewMemoryCredentialStore creates a store, optionally pre-seeded with a credential.
func NewMemoryCredentialStore(initial string) *MemoryCredentialStore {
	return &MemoryCredentialStore{credential: initial}
}

// Save replaces the stored credential.
func (m *MemoryCredentialStore) Save(_ context.Context, credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credential = credential
}

// Load returns the stored credential.
func (m *MemoryCredentialStore) Load(_ context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential, m.credential != ""
}

// Clear empties the slot.
func (m *MemoryCredentialStore) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credential = ""
	m.clears++
}

// Clears returns how many times Clear was called.
func (m *MemoryCredentialStore) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
