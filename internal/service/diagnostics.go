package service

import (
	"context"
	"time"

	domainauth "github.com/target/libsession/internal/domain/auth"
	"github.com/target/libsession/internal/ports"
)

// Diagnostics is a point-in-time view of the credential slot and session,
// used by the debug command. It never contains the credential itself.
type Diagnostics struct {
	CredentialPresent bool                `json:"credential_present"`
	Fingerprint       string              `json:"fingerprint,omitempty"`
	Claims            map[string]any      `json:"claims,omitempty"`
	ClaimsError       string              `json:"claims_error,omitempty"`
	ExpiresAt         time.Time           `json:"expires_at,omitzero"`
	Expired           bool                `json:"expired"`
	Profile           *ports.ProfileProbe `json:"profile,omitempty"`
	Session           domainauth.Session  `json:"session"`
}

// Diagnostics inspects the stored credential and, when the backend supports it,
// probes /auth/me with it. It has no side effects on the session or the store.
func (m *SessionManager) Diagnostics(ctx context.Context) Diagnostics {
	d := Diagnostics{Session: m.Session()}

	cred, ok := m.store.Load(ctx)
	if !ok {
		return d
	}
	d.CredentialPresent = true
	d.Fingerprint = domainauth.Fingerprint(cred)

	if claims, err := domainauth.DecodeClaims(cred); err != nil {
		d.ClaimsError = err.Error()
	} else {
		d.Claims = claims.Raw
		d.ExpiresAt = claims.Exp
		d.Expired = claims.Expired(m.clock.Now())
	}

	if prober, ok := m.backend.(ports.ProfileProber); ok {
		probe := prober.ProbeProfile(ctx, cred)
		d.Profile = &probe
	}
	return d
}
