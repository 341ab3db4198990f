package config

import (
	"os"
	"strings"
)

// AppConfig is the main configuration struct; it composes the domain-specific
// configuration declared in the other files of this package.
//
// Values are loaded from environment variables using github.com/caarlos0/env:
//   - api.go: backend endpoint, session timing and route guard settings
//   - store.go: credential slot backend selection
//   - redis.go: Redis connection for the redis credential store
//   - observability.go: metrics emission
type AppConfig struct {
	// IsDev enables development defaults (debug logging).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	API     APIConfig
	Session SessionConfig
	Guard   GuardConfig

	Store StoreConfig
	Redis RedisConfig `envPrefix:"REDIS_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.API.Sanitize()
	c.Session.Sanitize()
	c.Guard.Sanitize()
	c.Store.Sanitize()
	c.Redis.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
