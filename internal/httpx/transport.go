// Package httpx implements the HTTP boundary between the session layer and the backend:
// credential attachment on the way out, authentication-failure handling on the way in,
// and decoding of backend error bodies.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	domainauth "github.com/target/libsession/internal/domain/auth"
	"github.com/target/libsession/internal/ports"
	"golang.org/x/oauth2"
)

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const skipCredentialKey ctxKey = iota

// WithoutCredential marks requests made with ctx as public: the transport neither
// attaches the stored credential nor clears the store when they return 401.
// Login, register and password-reset calls use it so a rejected password never
// tears down an unrelated session.
func WithoutCredential(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCredentialKey, true)
}

func skipsCredential(ctx context.Context) bool {
	v, _ := ctx.Value(skipCredentialKey).(bool)
	return v
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	Base  http.RoundTripper
	Store ports.CredentialStore
	// OnAuthFailure runs after the store was cleared because of a 401.
	// It must not block; the transport calls it synchronously.
	OnAuthFailure func(ctx context.Context)
	Logger        *slog.Logger
}

// Transport is an http.RoundTripper that reads the credential slot on every
// request and clears it when the backend rejects the credential.
// It never redirects and never touches session state.
type Transport struct {
	base          http.RoundTripper
	store         ports.CredentialStore
	onAuthFailure func(ctx context.Context)
	logger        *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport. A nil Base uses http.DefaultTransport.
func NewTransport(opts TransportOptions) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		base:          base,
		store:         opts.Store,
		onAuthFailure: opts.OnAuthFailure,
		logger:        logger.With("component", "http_boundary"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req.Clone(ctx)

	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.NewString())
	}

	// An explicit Authorization header wins; the logout notification carries
	// a credential that is no longer in the store.
	public := skipsCredential(ctx)
	if out.Header.Get("Authorization") == "" && !public && t.store != nil {
		if cred, ok := t.store.Load(ctx); ok {
			(&oauth2.Token{AccessToken: cred, TokenType: "Bearer"}).SetAuthHeader(out)
		}
	}
	sent := bearerCredential(out.Header)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !public {
		t.handleAuthFailure(ctx, out, sent)
	}
	return resp, nil
}

func (t *Transport) handleAuthFailure(ctx context.Context, req *http.Request, sent string) {
	if t.store == nil {
		return
	}
	// Only the credential that was actually rejected is cleared; a newer login
	// must survive a late 401 for its predecessor.
	current, ok := t.store.Load(ctx)
	if ok && current != sent {
		t.logger.DebugContext(ctx, "ignoring 401 for superseded credential",
			"path", req.URL.Path, "request_id", req.Header.Get(RequestIDHeader))
		return
	}
	if ok {
		t.store.Clear(ctx)
		t.logger.InfoContext(ctx, "credential rejected by backend; cleared",
			"path", req.URL.Path,
			"fingerprint", domainauth.Fingerprint(current),
			"request_id", req.Header.Get(RequestIDHeader))
	}
	if t.onAuthFailure != nil {
		t.onAuthFailure(ctx)
	}
}

func bearerCredential(h http.Header) string {
	v := h.Get("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
