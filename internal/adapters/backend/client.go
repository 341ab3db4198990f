// Package backend implements ports.AuthBackend against the backend's /auth API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/libsession/internal/domain/auth"
	apperrors "github.com/target/libsession/internal/errors"
	"github.com/target/libsession/internal/httpx"
	"github.com/target/libsession/internal/ports"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

// Endpoint paths.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathMe             = "/auth/me"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
	PathLogout         = "/auth/logout"
)

// Fallback messages used when the backend gives no usable detail.
const (
	msgLoginFailed    = "Login failed. Please check your credentials."
	msgRegisterFailed = "Registration failed. Please try again."
	msgProfileFailed  = "Failed to load user profile"
	msgForgotFailed   = "Failed to send password reset email"
	msgResetFailed    = "Failed to reset password. Please try again."
	msgLogoutFailed   = "Logout failed"
)

const maxBody = 1 << 20

// Options configures the backend client.
type Options struct {
	BaseURL string
	// Transport is normally an *httpx.Transport; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Client talks to the backend's authentication endpoints.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

var (
	_ ports.AuthBackend   = (*Client)(nil)
	_ ports.ProfileProber = (*Client)(nil)
)

// NewClient validates opts and builds a Client with a cookie jar, so cookies
// set by the backend are replayed like a browser profile would.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http(s): %q", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base: base,
		http: &http.Client{
			Transport: opts.Transport,
			Timeout:   timeout,
			Jar:       jar,
			// The session layer decides navigation; never follow redirects here.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		logger: logger.With("component", "auth_backend"),
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

type loginWire struct {
	AccessToken string `json:"access_token"`
	UserID      any    `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Login exchanges email and password for a credential.
func (c *Client) Login(ctx context.Context, in ports.LoginInput) (ports.LoginOutput, error) {
	var out loginWire
	if err := c.doJSON(httpx.WithoutCredential(ctx), http.MethodPost, PathLogin, in, &out, msgLoginFailed); err != nil {
		return ports.LoginOutput{}, err
	}
	if out.AccessToken == "" {
		return ports.LoginOutput{}, apperrors.Validation("No access token received")
	}
	return ports.LoginOutput{
		AccessToken: out.AccessToken,
		UserID:      formatID(out.UserID),
		Email:       out.Email,
		Role:        out.Role,
	}, nil
}

// Register creates an account. The response body is ignored.
func (c *Client) Register(ctx context.Context, in ports.RegisterInput) error {
	return c.doJSON(httpx.WithoutCredential(ctx), http.MethodPost, PathRegister, in, nil, msgRegisterFailed)
}

type profileWire struct {
	ID          any      `json:"id"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Roles       []string `json:"roles"`
	IsActive    *bool    `json:"is_active"`
	IsAdmin     *bool    `json:"is_admin"`
	IsLibrarian *bool    `json:"is_librarian"`
}

func (w profileWire) record() domainauth.ProfileRecord {
	p := domainauth.ProfileRecord{
		ID:          formatID(w.ID),
		Email:       w.Email,
		DisplayName: firstNonEmpty(w.FullName, w.Name, w.Email),
		Role:        strings.TrimSpace(w.Role),
		RoleList:    w.Roles,
		IsActive:    w.IsActive == nil || *w.IsActive,
	}
	if w.IsAdmin != nil || w.IsLibrarian != nil {
		p.RoleFlags = &domainauth.RoleFlags{
			IsAdmin:     w.IsAdmin != nil && *w.IsAdmin,
			IsLibrarian: w.IsLibrarian != nil && *w.IsLibrarian,
		}
	}
	return p
}

// CurrentProfile fetches the profile of the stored credential.
func (c *Client) CurrentProfile(ctx context.Context) (domainauth.ProfileRecord, error) {
	var w profileWire
	if err := c.doJSON(ctx, http.MethodGet, PathMe, nil, &w, msgProfileFailed); err != nil {
		return domainauth.ProfileRecord{}, err
	}
	return w.record(), nil
}

// ForgotPassword requests a reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.doJSON(httpx.WithoutCredential(ctx), http.MethodPost, PathForgotPassword, body, nil, msgForgotFailed)
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	return c.doJSON(httpx.WithoutCredential(ctx), http.MethodPost, PathResetPassword, body, nil, msgResetFailed)
}

// Logout tells the backend credential is being discarded.
func (c *Client) Logout(ctx context.Context, credential string) error {
	req, err := c.newRequest(ctx, http.MethodPost, PathLogout, nil)
	if err != nil {
		return err
	}
	if credential != "" {
		(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	return c.send(req, nil, msgLogoutFailed)
}

// ProbeProfile fetches /auth/me with credential and reports the raw outcome.
// It has no side effects on the credential slot, even on 401.
func (c *Client) ProbeProfile(ctx context.Context, credential string) ports.ProfileProbe {
	req, err := c.newRequest(httpx.WithoutCredential(ctx), http.MethodGet, PathMe, nil)
	if err != nil {
		return ports.ProfileProbe{Error: err.Error()}
	}
	if credential != "" {
		(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ports.ProfileProbe{Error: "fetch failed: " + err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	probe := ports.ProfileProbe{Status: resp.StatusCode}
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	var body any
	if json.Unmarshal(raw, &body) == nil {
		probe.Body = body
	} else {
		probe.Body = string(raw)
	}
	return probe
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request")
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, fallback string) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	return c.send(req, out, fallback)
}

func (c *Client) send(req *http.Request, out any, fallback string) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(req.Context(), "backend request failed",
			"method", req.Method, "path", req.URL.Path, "error", err)
		return httpx.FromTransportError(err)
	}
	c.logger.DebugContext(req.Context(), "backend request",
		"method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if err := httpx.FromResponse(resp, fallback); err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return httpx.FromTransportError(err)
		}
		return apperrors.Wrapf(err, apperrors.ErrCodeTransient, "decode %s response", req.URL.Path)
	}
	return nil
}

// formatID renders numeric or string identifiers uniformly.
func formatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
