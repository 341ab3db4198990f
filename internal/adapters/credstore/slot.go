// Package credstore implements the credential slot and its local key/value backends.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/libsession/internal/domain/auth"
	"github.com/target/libsession/internal/ports"
)

// Default physical keys of the credential slot.
const (
	DefaultPrimaryKey = "access_token"
	DefaultLegacyKey  = "token"
)

// SlotOptions configures a Slot.
type SlotOptions struct {
	KV         ports.KeyValueStore
	PrimaryKey string
	LegacyKey  string
	Logger     *slog.Logger
}

// Slot is the single logical credential slot over a KeyValueStore.
// Reads prefer the primary key and fall back to the legacy alias; writes go to
// the primary key only. Every backend failure is logged and swallowed; while
// the backend is failing, Load answers from the last credential this Slot saved.
type Slot struct {
	kv      ports.KeyValueStore
	primary string
	legacy  string
	logger  *slog.Logger

	mu   sync.Mutex
	last string
}

var _ ports.CredentialStore = (*Slot)(nil)

// NewSlot creates a Slot. Empty keys fall back to the defaults.
func NewSlot(opts SlotOptions) (*Slot, error) {
	if opts.KV == nil {
		return nil, errors.New("KV is required")
	}
	primary := strings.TrimSpace(opts.PrimaryKey)
	if primary == "" {
		primary = DefaultPrimaryKey
	}
	legacy := strings.TrimSpace(opts.LegacyKey)
	if legacy == "" {
		legacy = DefaultLegacyKey
	}
	if primary == legacy {
		return nil, fmt.Errorf("primary and legacy keys must differ: %q", primary)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Slot{
		kv:      opts.KV,
		primary: primary,
		legacy:  legacy,
		logger:  logger.With("component", "credential_store"),
	}, nil
}

// Save writes credential to the primary key and drops the legacy alias.
// The entry expires with the credential when its exp claim decodes.
func (s *Slot) Save(ctx context.Context, credential string) {
	defer s.recoverOp("save")
	s.remember(credential)

	var expiresAt time.Time
	if claims, err := domainauth.DecodeClaims(credential); err == nil {
		expiresAt = claims.Exp
	}

	if err := s.kv.Set(ctx, s.primary, credential, expiresAt); err != nil {
		s.logger.WarnContext(ctx, "credential save failed",
			"fingerprint", domainauth.Fingerprint(credential), "error", err)
		return
	}
	if err := s.kv.Delete(ctx, s.legacy); err != nil {
		s.logger.DebugContext(ctx, "legacy credential alias cleanup failed", "error", err)
	}
}

// Load returns the credential from the primary key, else the legacy alias.
// When the backend fails rather than reporting the keys missing, Load falls
// back to the last credential saved through this Slot.
func (s *Slot) Load(ctx context.Context) (cred string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "credential load panicked", "panic", r)
			cred, ok = s.remembered()
		}
	}()

	failed := false
	for _, key := range []string{s.primary, s.legacy} {
		v, err := s.kv.Get(ctx, key)
		switch {
		case err == nil && v != "":
			return v, true
		case err != nil && !errors.Is(err, ports.ErrKeyNotFound):
			failed = true
			s.logger.WarnContext(ctx, "credential load failed", "key", key, "error", err)
		}
	}
	if failed {
		return s.remembered()
	}
	return "", false
}

// Clear removes both aliases.
func (s *Slot) Clear(ctx context.Context) {
	defer s.recoverOp("clear")
	s.remember("")

	if err := s.kv.Delete(ctx, s.primary, s.legacy); err != nil {
		s.logger.WarnContext(ctx, "credential clear failed", "error", err)
	}
}

func (s *Slot) remember(credential string) {
	s.mu.Lock()
	s.last = credential
	s.mu.Unlock()
}

func (s *Slot) remembered() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != ""
}

func (s *Slot) recoverOp(op string) {
	if r := recover(); r != nil {
		s.logger.Error("credential store panicked", "op", op, "panic", r)
	}
}
