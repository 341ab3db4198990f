package config

import (
	"strings"
	"time"
)

const (
	defaultAPITimeout    = 10 * time.Second
	defaultLogoutTimeout = 5 * time.Second
	maxExpiryCushion     = time.Minute
)

// APIConfig locates the authentication backend.
type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:9000"`
	Timeout time.Duration `env:"API_TIMEOUT"  envDefault:"10s"`
}

// Sanitize trims the base URL and restores a usable timeout.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultAPITimeout
	}
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	// ExpiryCushion is added to a credential's lifetime before the session is torn down.
	ExpiryCushion time.Duration `env:"SESSION_EXPIRY_CUSHION" envDefault:"1s"`
	// LogoutTimeout bounds the best-effort backend logout notification.
	LogoutTimeout time.Duration `env:"SESSION_LOGOUT_TIMEOUT" envDefault:"5s"`
}

// Sanitize clamps the cushion to [0, 1m] and restores a usable logout timeout.
func (c *SessionConfig) Sanitize() {
	if c.ExpiryCushion < 0 {
		c.ExpiryCushion = 0
	}
	if c.ExpiryCushion > maxExpiryCushion {
		c.ExpiryCushion = maxExpiryCushion
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = defaultLogoutTimeout
	}
}

// GuardConfig configures the route guard middleware.
type GuardConfig struct {
	LandingPath string `env:"GUARD_LANDING_PATH" envDefault:"/"`
}

// Sanitize ensures the landing path is absolute.
func (c *GuardConfig) Sanitize() {
	c.LandingPath = strings.TrimSpace(c.LandingPath)
	if !strings.HasPrefix(c.LandingPath, "/") {
		c.LandingPath = "/" + c.LandingPath
	}
}
