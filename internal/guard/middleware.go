package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/libsession/internal/domain/auth"
)

// DefaultLanding is the public landing path used when none is configured.
const DefaultLanding = "/"

const loadingBody = "Loading..."

// SessionSource supplies the current session; *service.SessionManager implements it.
type SessionSource interface {
	Session() domainauth.Session
}

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	Source SessionSource
	// Landing is where redirected browser requests are sent.
	Landing string
	// RetryAfter is advertised on pending responses. Defaults to one second.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

// Middleware gates a handler with policy.
//
//   - Allow: the session is added to the request context and next is called.
//   - Pending: 202 with a Retry-After header and a short loading body.
//   - Redirect: browser requests get a 303 to the landing page (htmx requests an
//     Hx-Redirect header instead). API requests get a JSON 401 or 403 rather
//     than a redirect; the landing page is still named in the Location header.
func Middleware(opts MiddlewareOptions, policy Policy) func(http.Handler) http.Handler {
	landing := opts.Landing
	if landing == "" {
		landing = DefaultLanding
	}
	retry := opts.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "route_guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := opts.Source.Session()
			switch policy(s) {
			case Allow:
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
			case Pending:
				writePending(w, retry)
			default:
				logger.DebugContext(r.Context(), "route denied",
					"path", r.URL.Path, "status", s.Status, "role", s.Role)
				deny(w, r, s, landing)
			}
		})
	}
}

func writePending(w http.ResponseWriter, retry time.Duration) {
	secs := int(retry.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(loadingBody))
}

func deny(w http.ResponseWriter, r *http.Request, s domainauth.Session, landing string) {
	if isHTMX(r) {
		w.Header().Set("Hx-Redirect", landing)
		w.WriteHeader(http.StatusOK)
		return
	}
	if isBrowserRequest(r) {
		http.Redirect(w, r, landing, http.StatusSeeOther)
		return
	}

	status, code := http.StatusUnauthorized, "authentication_required"
	if s.IsAuthenticated() {
		status, code = http.StatusForbidden, "insufficient_permissions"
	}
	w.Header().Set("Location", landing)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func isHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Hx-Request"), "true")
}

// isBrowserRequest treats /api/ paths and clients that do not accept HTML as API calls.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html")
}
