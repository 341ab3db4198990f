package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/target/libsession/internal/ports"
)

const (
	dirPermissions    = 0o700
	filePermissions   = 0o600
	connectionTimeout = 5 * time.Second
	msPerSecond       = 1000
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS credentials (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER
) STRICT;`

// SQLiteConfig configures the on-disk credential store.
type SQLiteConfig struct {
	// Path is the database file. The directory is created when missing.
	Path string
	// BusyTimeout is how long to wait for a lock, in seconds.
	BusyTimeout int
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// SQLiteStore is a ports.KeyValueStore persisted to a local SQLite file,
// so the credential survives process restarts.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ ports.KeyValueStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the store at cfg.Path.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating credential store directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", cfg.Path, busy*msPerSecond)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("verifying credential store: %w", err), db.Close())
	}
	if _, err := db.ExecContext(pingCtx, schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("creating credentials table: %w", err), db.Close())
	}

	// Best effort: the credential is a secret.
	_ = os.Chmod(cfg.Path, filePermissions)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SQLiteStore{db: db, path: cfg.Path, now: now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var (
		value     string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM credentials WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ports.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get %s: %w", key, err)
	}

	if expiresAt.Valid && s.now().Unix() >= expiresAt.Int64 {
		if delErr := s.Delete(ctx, key); delErr != nil {
			return "", fmt.Errorf("cleanup expired credential: %w", delErr)
		}
		return "", ports.ErrKeyNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string, expiresAt time.Time) error {
	var exp sql.NullInt64
	if !expiresAt.IsZero() {
		exp = sql.NullInt64{Int64: expiresAt.Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, exp)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, k); err != nil {
			return errors.Join(fmt.Errorf("sqlite delete %s: %w", k, err), tx.Rollback())
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite delete commit: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing credential store: %w", err)
	}
	return nil
}
