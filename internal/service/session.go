package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/libsession/internal/domain/auth"
	apperrors "github.com/target/libsession/internal/errors"
	"github.com/target/libsession/internal/observability/metrics"
	"github.com/target/libsession/internal/ports"
	"golang.org/x/sync/singleflight"
)

// Defaults applied by NewSessionManager.
const (
	DefaultExpiryCushion = time.Second
	DefaultLogoutTimeout  = 5 * time.Second
	DefaultProfileTimeout = 30 * time.Second
)

const (
	msgUnexpected      = "An unexpected error occurred"
	msgInvalidCred     = "Received an invalid credential"
	msgExpiredCred     = "Received an expired credential"
	msgSuperseded      = "Session changed before sign-in completed"
	msgNotSignedIn     = "Not signed in"
	msgSessionRevoked  = "Session expired or was revoked"
	msgProfileInactive = "Inactive user"
)

// ManagerOptions groups dependencies for SessionManager.
type ManagerOptions struct {
	Store   ports.CredentialStore
	Backend ports.AuthBackend
	Clock   ports.Clock
	Logger  *slog.Logger
	// Metrics is optional.
	Metrics ports.MetricsSink
	// ExpiryCushion is added to the credential's remaining lifetime when arming the expiry timer.
	ExpiryCushion time.Duration
	// LogoutTimeout bounds the best-effort backend logout notification.
	LogoutTimeout time.Duration
	// ProfileTimeout bounds a shared profile fetch, which outlives callers that give up on it.
	ProfileTimeout time.Duration
}

// SessionManager owns the client Session. It orchestrates the login, register,
// logout and password flows, fetches the authoritative profile, and owns the
// single expiry timer. All methods are safe for concurrent use.
type SessionManager struct {
	store          ports.CredentialStore
	backend        ports.AuthBackend
	clock          ports.Clock
	logger         *slog.Logger
	metrics        ports.MetricsSink
	cushion        time.Duration
	logoutTimeout  time.Duration
	profileTimeout time.Duration

	mu      sync.Mutex
	session domainauth.Session
	// gen increments on every credential change; fetch results carrying an
	// older generation are discarded.
	gen       uint64
	// cred is the credential the current generation was installed for.
	cred      string
	timer     ports.Timer
	listeners map[int]func(domainauth.Session)
	nextSub   int
	closed    bool

	fetches  singleflight.Group
	inflight sync.WaitGroup
}

// NewSessionManager constructs a SessionManager in the Loading state.
func NewSessionManager(opts ManagerOptions) (*SessionManager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session manager: credential store is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("session manager: backend is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("session manager: clock is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cushion := opts.ExpiryCushion
	if cushion < 0 {
		cushion = 0
	}
	logoutTimeout := opts.LogoutTimeout
	if logoutTimeout <= 0 {
		logoutTimeout = DefaultLogoutTimeout
	}
	profileTimeout := opts.ProfileTimeout
	if profileTimeout <= 0 {
		profileTimeout = DefaultProfileTimeout
	}

	return &SessionManager{
		store:          opts.Store,
		backend:        opts.Backend,
		clock:          opts.Clock,
		logger:         logger.With("component", "session_manager"),
		metrics:        opts.Metrics,
		cushion:        cushion,
		logoutTimeout:  logoutTimeout,
		profileTimeout: profileTimeout,
		session:        domainauth.LoadingSession(),
		listeners:      make(map[int]func(domainauth.Session)),
	}, nil
}

// Session returns a snapshot of the current session.
func (m *SessionManager) Session() domainauth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.session)
}

// Subscribe registers fn to receive a snapshot after every transition.
// fn runs on the goroutine that caused the transition, outside the manager's lock.
// The returned func removes the subscription.
func (m *SessionManager) Subscribe(fn func(domainauth.Session)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Initialize adopts the stored credential, if any, and resolves the session.
// A transient profile failure leaves the session Loading with LastError set;
// the caller retries with Refresh.
func (m *SessionManager) Initialize(ctx context.Context) (s domainauth.Session) {
	start := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "panic during initialize", "panic", r)
			s = m.Session()
		}
	}()

	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	cred, ok := m.store.Load(ctx)
	if !ok {
		m.teardownIfCurrent(ctx, gen, "", metrics.TransitionInitialize)
		return m.Session()
	}

	claims, err := domainauth.DecodeClaims(cred)
	if err != nil || claims.Expired(m.clock.Now()) {
		m.logger.InfoContext(ctx, "discarding unusable stored credential",
			"fingerprint", domainauth.Fingerprint(cred), "error", err)
		m.store.Clear(ctx)
		m.teardownIfCurrent(ctx, gen, "", metrics.TransitionInitialize)
		return m.Session()
	}

	gen, adopted := m.adopt(ctx, gen, cred, claims)
	if !adopted {
		return m.Session()
	}

	_, ferr := m.resolveProfile(ctx, gen, cred, claims, nil)
	m.emit(metrics.TransitionInitialize, ferr, start)
	return m.Session()
}

// Login exchanges email and password for a credential, persists it, arms the
// expiry timer and resolves the profile. Expected failures come back in the Result.
func (m *SessionManager) Login(ctx context.Context, email, password string) (res domainauth.Result) {
	start := m.clock.Now()
	defer m.recoverResult(ctx, metrics.TransitionLogin, &res)

	if err := validateLogin(email, password); err != nil {
		m.emit(metrics.TransitionLogin, err, start)
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}

	out, err := m.backend.Login(ctx, ports.LoginInput{Email: email, Password: password})
	if err != nil {
		m.logger.InfoContext(ctx, "login rejected", "error_class", apperrors.Classify(err))
		m.setLastError(apperrors.DisplayMessage(err))
		m.emit(metrics.TransitionLogin, err, start)
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}

	claims, err := domainauth.DecodeClaims(out.AccessToken)
	if err != nil {
		m.logger.WarnContext(ctx, "login returned undecodable credential", "error", err)
		m.emit(metrics.TransitionLogin, err, start)
		return domainauth.Failed(msgInvalidCred)
	}
	if claims.Expired(m.clock.Now()) {
		err := apperrors.Decode(msgExpiredCred)
		m.emit(metrics.TransitionLogin, err, start)
		return domainauth.Failed(msgExpiredCred)
	}

	m.store.Save(ctx, out.AccessToken)

	// A fresh login always replaces whatever the session held.
	m.mu.Lock()
	gen := m.installLocked(out.AccessToken, claims)
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap, subs)

	provisional := domainauth.ProfileRecord{
		ID:          out.UserID,
		Email:       out.Email,
		DisplayName: out.Email,
		Role:        out.Role,
		IsActive:    true,
	}
	applied, ferr := m.resolveProfile(ctx, gen, out.AccessToken, claims, &provisional)
	switch {
	case apperrors.IsAuthentication(ferr):
		m.emit(metrics.TransitionLogin, ferr, start)
		return domainauth.Failed(apperrors.DisplayMessage(ferr))
	case !applied:
		m.emit(metrics.TransitionLogin, apperrors.Validation(msgSuperseded), start)
		return domainauth.Failed(msgSuperseded)
	}

	m.logger.InfoContext(ctx, "login succeeded",
		"role", m.Session().Role, "expires_at", claims.Exp,
		"fingerprint", domainauth.Fingerprint(out.AccessToken))
	m.emit(metrics.TransitionLogin, nil, start)
	return domainauth.Succeeded()
}

// Register creates an account. It does not sign the new account in.
func (m *SessionManager) Register(ctx context.Context, in ports.RegisterInput) (res domainauth.Result) {
	start := m.clock.Now()
	defer m.recoverResult(ctx, metrics.TransitionRegister, &res)

	if err := validateRegister(in); err != nil {
		m.emit(metrics.TransitionRegister, err, start)
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}
	err := m.backend.Register(ctx, in)
	m.emit(metrics.TransitionRegister, err, start)
	if err != nil {
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}
	return domainauth.Succeeded()
}

// ForgotPassword asks the backend to send a reset email.
func (m *SessionManager) ForgotPassword(ctx context.Context, email string) (res domainauth.Result) {
	start := m.clock.Now()
	defer m.recoverResult(ctx, metrics.TransitionForgot, &res)

	if err := validateEmail(email); err != nil {
		m.emit(metrics.TransitionForgot, err, start)
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}
	err := m.backend.ForgotPassword(ctx, email)
	m.emit(metrics.TransitionForgot, err, start)
	if err != nil {
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}
	return domainauth.Succeeded()
}

// ResetPassword sets a new password using a reset token.
func (m *SessionManager) ResetPassword(ctx context.Context, token, newPassword string) (res domainauth.Result) {
	start := m.clock.Now()
	defer m.recoverResult(ctx, metrics.TransitionReset, &res)

	if err := validateReset(token, newPassword); err != nil {
		m.emit(metrics.TransitionReset, err, start)
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}
	err := m.backend.ResetPassword(ctx, token, newPassword)
	m.emit(metrics.TransitionReset, err, start)
	if err != nil {
		return domainauth.Failed(apperrors.DisplayMessage(err))
	}
	return domainauth.Succeeded()
}

// Logout tears the session down locally before returning, then notifies the
// backend in the background. The notification is best-effort; Close waits for it.
func (m *SessionManager) Logout(ctx context.Context) (res domainauth.Result) {
	start := m.clock.Now()
	defer m.recoverResult(ctx, metrics.TransitionLogout, &res)

	m.mu.Lock()
	cred, had := m.store.Load(ctx)
	m.store.Clear(ctx)
	m.stopTimerLocked()
	m.gen++
	m.session = domainauth.AnonymousSession()
	m.cred = ""
	snap, subs := m.snapshotLocked()
	closed := m.closed
	if had && !closed {
		m.inflight.Add(1)
	}
	m.mu.Unlock()

	m.publish(snap, subs)
	m.logger.InfoContext(ctx, "logged out", "had_credential", had)

	if had && !closed {
		go m.notifyLogout(context.WithoutCancel(ctx), cred)
	}
	m.emit(metrics.TransitionLogout, nil, start)
	return domainauth.Succeeded()
}

func (m *SessionManager) notifyLogout(ctx context.Context, cred string) {
	defer m.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "panic during logout notification", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
	defer cancel()
	if err := m.backend.Logout(ctx, cred); err != nil {
		m.logger.WarnContext(ctx, "backend logout notification failed",
			"error_class", apperrors.Classify(err), "error", err)
	}
}

// Refresh re-fetches the profile for the stored credential. The outcome rules
// match Initialize, except a transient failure keeps an Authenticated session.
func (m *SessionManager) Refresh(ctx context.Context) (res domainauth.Result) {
	start := m.clock.Now()
	defer m.recoverResult(ctx, metrics.TransitionRefresh, &res)

	cred, ok := m.store.Load(ctx)
	if !ok {
		m.Sync(ctx)
		m.emit(metrics.TransitionRefresh, apperrors.Authentication(msgNotSignedIn), start)
		return domainauth.Failed(msgNotSignedIn)
	}
	claims, err := domainauth.DecodeClaims(cred)
	if err != nil || claims.Expired(m.clock.Now()) {
		m.store.Clear(ctx)
		m.Sync(ctx)
		m.emit(metrics.TransitionRefresh, apperrors.Authentication(msgSessionRevoked), start)
		return domainauth.Failed(msgSessionRevoked)
	}

	// A credential saved behind the manager's back gets its own generation
	// and expiry timer.
	m.mu.Lock()
	gen := m.gen
	needsAdopt := m.session.Status == domainauth.StatusAnonymous || m.cred != cred
	m.mu.Unlock()
	if needsAdopt {
		var adopted bool
		if gen, adopted = m.adopt(ctx, gen, cred, claims); !adopted {
			return domainauth.Failed(msgSuperseded)
		}
	}

	applied, ferr := m.resolveProfile(ctx, gen, cred, claims, nil)
	m.emit(metrics.TransitionRefresh, ferr, start)
	switch {
	case ferr != nil:
		return domainauth.Failed(apperrors.DisplayMessage(ferr))
	case !applied:
		return domainauth.Failed(msgSuperseded)
	}
	return domainauth.Succeeded()
}

// Sync reconciles the session with the credential store. When the store was
// emptied elsewhere (the HTTP boundary clears it on a 401) the session is torn
// down without contacting the backend.
func (m *SessionManager) Sync(ctx context.Context) domainauth.Session {
	if _, ok := m.store.Load(ctx); ok {
		return m.Session()
	}

	m.mu.Lock()
	if m.session.Status == domainauth.StatusAnonymous {
		snap := cloneSession(m.session)
		m.mu.Unlock()
		return snap
	}
	m.stopTimerLocked()
	m.gen++
	m.session = domainauth.AnonymousSession()
	m.cred = ""
	m.session.LastError = msgSessionRevoked
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap, subs)
	m.logger.InfoContext(ctx, "session torn down after credential was cleared")
	m.emit(metrics.TransitionSync, nil, time.Time{})
	return snap
}

// Close stops the expiry timer and waits for pending logout notifications.
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for logout notification: %w", ctx.Err())
	}
}

// adopt makes cred the current credential if no other transition happened
// since gen was read: it bumps the generation, arms the expiry timer, and moves
// to Loading with the claim-derived role.
func (m *SessionManager) adopt(ctx context.Context, gen uint64, cred string, claims domainauth.ClaimSet) (uint64, bool) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "credential superseded before adoption")
		return 0, false
	}
	gen = m.installLocked(cred, claims)
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap, subs)
	return gen, true
}

// installLocked starts a new credential generation for cred and returns it.
// Callers hold m.mu.
func (m *SessionManager) installLocked(cred string, claims domainauth.ClaimSet) uint64 {
	m.gen++
	m.cred = cred
	m.armLocked(m.gen, claims)
	m.session = domainauth.Session{
		ID:        uuid.NewString(),
		Status:    domainauth.StatusLoading,
		Role:      domainauth.ResolveRole(nil, &claims),
		ExpiresAt: claims.Exp,
	}
	return m.gen
}

// resolveProfile fetches the profile for cred and applies the outcome if gen
// and the stored credential are still current. It reports whether the session
// was updated, and the fetch error.
func (m *SessionManager) resolveProfile(
	ctx context.Context,
	gen uint64,
	cred string,
	claims domainauth.ClaimSet,
	provisional *domainauth.ProfileRecord,
) (bool, error) {
	profile, err := m.fetchProfile(ctx, gen)
	if err == nil && !profile.IsActive {
		err = apperrors.Authentication(msgProfileInactive)
	}

	if apperrors.IsAuthentication(err) {
		m.logger.InfoContext(ctx, "credential rejected during profile fetch",
			"fingerprint", domainauth.Fingerprint(cred))
		return m.rejectCredential(ctx, gen, cred, apperrors.DisplayMessage(err)), err
	}

	current, ok := m.store.Load(ctx)

	m.mu.Lock()
	if m.gen != gen || !ok || current != cred {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "discarding stale profile result")
		return false, err
	}

	if err == nil {
		m.session.Status = domainauth.StatusAuthenticated
		m.session.Profile = &profile
		m.session.Role = domainauth.ResolveRole(&profile, &claims)
		m.session.LastError = ""
	} else {
		m.logger.WarnContext(ctx, "profile fetch failed",
			"error_class", apperrors.Classify(err), "error", err)
		switch {
		case provisional != nil:
			p := *provisional
			m.session.Status = domainauth.StatusAuthenticated
			m.session.Profile = &p
			m.session.Role = domainauth.ResolveRole(&p, &claims)
		case m.session.Status == domainauth.StatusAuthenticated:
			// Keep the last known profile and role.
		default:
			m.session.Status = domainauth.StatusLoading
			m.session.Role = domainauth.ResolveRole(nil, &claims)
		}
		m.session.LastError = apperrors.DisplayMessage(err)
	}
	m.session.ExpiresAt = claims.Exp
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap, subs)
	return true, err
}

// fetchProfile calls the backend once per generation, sharing the result
// among concurrent callers. The shared call runs detached from any one
// caller's context; each caller stops waiting when its own ctx ends.
func (m *SessionManager) fetchProfile(ctx context.Context, gen uint64) (domainauth.ProfileRecord, error) {
	ch := m.fetches.DoChan(strconv.FormatUint(gen, 10), func() (v any, err error) {
		// DoChan re-panics on its own goroutine, out of reach of recoverResult.
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("profile fetch panicked", "panic", r)
				v, err = domainauth.ProfileRecord{}, apperrors.Internal(msgUnexpected)
			}
		}()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.profileTimeout)
		defer cancel()

		start := m.clock.Now()
		profile, err := m.backend.CurrentProfile(fctx)
		if m.metrics != nil {
			m.metrics.Timing("session.profile_fetch", m.clock.Now().Sub(start), map[string]string{
				"result": metrics.ResultFor(err),
			})
		}
		return profile, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domainauth.ProfileRecord{}, res.Err
		}
		return res.Val.(domainauth.ProfileRecord), nil
	case <-ctx.Done():
		return domainauth.ProfileRecord{}, contextError(ctx.Err())
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "request canceled")
}

// rejectCredential clears cred and tears the session down, unless a newer
// credential already replaced it. It reports whether the session changed.
func (m *SessionManager) rejectCredential(ctx context.Context, gen uint64, cred, message string) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	if current, ok := m.store.Load(ctx); ok && current == cred {
		m.store.Clear(ctx)
	}
	m.stopTimerLocked()
	m.gen++
	m.session = domainauth.AnonymousSession()
	m.cred = ""
	m.session.LastError = message
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap, subs)
	return true
}

// teardownIfCurrent moves to Anonymous when no other transition happened since gen was read.
func (m *SessionManager) teardownIfCurrent(ctx context.Context, gen uint64, message, transition string) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.gen++
	m.session = domainauth.AnonymousSession()
	m.cred = ""
	m.session.LastError = message
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap, subs)
	m.logger.DebugContext(ctx, "session anonymous", "transition", transition)
	m.emit(transition, nil, time.Time{})
}

// armLocked replaces the expiry timer. Callers hold m.mu.
func (m *SessionManager) armLocked(gen uint64, claims domainauth.ClaimSet) {
	m.stopTimerLocked()
	if m.closed {
		return
	}
	delay := claims.Remaining(m.clock.Now()) + m.cushion
	m.timer = m.clock.AfterFunc(delay, func() { m.expire(gen) })
	m.logger.Debug("expiry timer armed", "expires_at", claims.Exp, "delay", delay)
}

func (m *SessionManager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// expire is the expiry timer's action: the local half of Logout, without
// contacting the backend.
func (m *SessionManager) expire(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.store.Clear(context.Background())
	m.timer = nil
	m.gen++
	m.session = domainauth.AnonymousSession()
	m.cred = ""
	m.session.LastError = msgSessionRevoked
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap, subs)
	m.logger.Info("credential expired; session torn down")
	m.emit(metrics.TransitionExpire, nil, time.Time{})
}

func (m *SessionManager) setLastError(message string) {
	m.mu.Lock()
	m.session.LastError = message
	snap, subs := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap, subs)
}

func (m *SessionManager) snapshotLocked() (domainauth.Session, []func(domainauth.Session)) {
	subs := make([]func(domainauth.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		subs = append(subs, fn)
	}
	return cloneSession(m.session), subs
}

func (m *SessionManager) publish(s domainauth.Session, subs []func(domainauth.Session)) {
	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("session listener panicked", "panic", r)
				}
			}()
			fn(cloneSession(s))
		}()
	}
}

func (m *SessionManager) recoverResult(ctx context.Context, transition string, res *domainauth.Result) {
	r := recover()
	if r == nil {
		return
	}
	m.logger.ErrorContext(ctx, "panic in session operation", "transition", transition, "panic", r)
	*res = domainauth.Failed(msgUnexpected)
}

func (m *SessionManager) emit(transition string, err error, start time.Time) {
	if m.metrics == nil {
		return
	}
	var d time.Duration
	if !start.IsZero() {
		d = m.clock.Now().Sub(start)
	}
	m.mu.Lock()
	role := string(m.session.Role)
	m.mu.Unlock()
	metrics.EmitSessionTransition(m.metrics, metrics.SessionMetric{
		Transition: transition,
		Result:     metrics.ResultFor(err),
		Role:       role,
		Duration:   d,
		Err:        err,
	})
}

func cloneSession(s domainauth.Session) domainauth.Session {
	if s.Profile != nil {
		p := *s.Profile
		if p.RoleFlags != nil {
			f := *p.RoleFlags
			p.RoleFlags = &f
		}
		p.RoleList = append([]string(nil), p.RoleList...)
		s.Profile = &p
	}
	return s
}
