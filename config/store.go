package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StoreKind selects the persistence behind the credential slot.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreSQLite StoreKind = "sqlite"
	StoreRedis  StoreKind = "redis"
)

// ParseStoreKind validates a CREDENTIAL_STORE value.
func ParseStoreKind(s string) (StoreKind, error) {
	switch k := StoreKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StoreMemory, StoreSQLite, StoreRedis:
		return k, nil
	case "":
		return StoreSQLite, nil
	default:
		return "", fmt.Errorf("invalid credential store %q: want memory, sqlite or redis", s)
	}
}

// StoreConfig configures the credential slot.
type StoreConfig struct {
	Backend string `env:"CREDENTIAL_STORE" envDefault:"sqlite"`
	// SQLitePath defaults to $HOME/.libsession/credentials.db.
	SQLitePath string `env:"CREDENTIAL_SQLITE_PATH"`
	PrimaryKey string `env:"CREDENTIAL_PRIMARY_KEY" envDefault:"access_token"`
	// LegacyKey is read as a fallback and deleted on save.
	LegacyKey string `env:"CREDENTIAL_LEGACY_KEY" envDefault:"token"`
}

// Sanitize normalizes names and fills in the default sqlite path.
func (c *StoreConfig) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.PrimaryKey = strings.TrimSpace(c.PrimaryKey)
	if c.PrimaryKey == "" {
		c.PrimaryKey = "access_token"
	}
	c.LegacyKey = strings.TrimSpace(c.LegacyKey)

	c.SQLitePath = strings.TrimSpace(c.SQLitePath)
	if c.SQLitePath == "" {
		c.SQLitePath = DefaultSQLitePath()
	}
}

// Kind returns the validated store kind.
func (c *StoreConfig) Kind() (StoreKind, error) {
	return ParseStoreKind(c.Backend)
}

// DefaultSQLitePath returns $HOME/.libsession/credentials.db, falling back to
// the working directory when no home directory is known.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".libsession", "credentials.db")
	}
	return filepath.Join(home, ".libsession", "credentials.db")
}
