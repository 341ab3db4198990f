package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/target/libsession/config"
	"github.com/target/libsession/internal/adapters/backend"
	"github.com/target/libsession/internal/clock"
	"github.com/target/libsession/internal/guard"
	"github.com/target/libsession/internal/httpx"
	"github.com/target/libsession/internal/observability/statsd"
	"github.com/target/libsession/internal/ports"
	"github.com/target/libsession/internal/service"
)

// SessionDeps groups dependencies for NewSessionContainer.
type SessionDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// Optional overrides, mainly for tests.
	Clock       ports.Clock
	Store       ports.CredentialStore
	RedisClient redis.UniversalClient
	Transport   http.RoundTripper
}

// SessionContainer holds the wired session stack. It is created once per process.
type SessionContainer struct {
	Manager *service.SessionManager
	Backend *backend.Client
	Store   ports.CredentialStore
	// StoreLocation describes where the credential lives.
	StoreLocation string
	Metrics       *statsd.Client
	Guard         guard.MiddlewareOptions

	logger  *slog.Logger
	closers []func() error
}

// NewSessionContainer wires credential store, HTTP boundary, backend client
// and session manager. The boundary's auth-failure hook reconciles the manager
// with the cleared store; the boundary itself never touches the session.
func NewSessionContainer(ctx context.Context, deps SessionDeps) (*SessionContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &SessionContainer{logger: logger}

	store := deps.Store
	storeKind := "custom"
	if store == nil {
		opened, err := OpenCredentialStore(ctx, StoreDeps{
			Store:       cfg.Store,
			Redis:       cfg.Redis,
			RedisClient: deps.RedisClient,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		store = opened.Slot
		storeKind = string(opened.Kind)
		c.StoreLocation = opened.Location
		c.closers = append(c.closers, opened.Close)
	} else {
		c.StoreLocation = "custom"
	}
	c.Store = store

	metricsClient, err := statsd.NewClient(statsd.Config{
		Enabled:    cfg.Observability.Metrics.IsEnabled(),
		Address:    cfg.Observability.Metrics.StatsdAddress,
		Prefix:     cfg.Observability.Metrics.Prefix,
		Logger:     logger,
		GlobalTags: map[string]string{"store": storeKind},
	})
	if err != nil {
		// Metrics are optional; keep going without them.
		logger.Warn("statsd disabled", "error", err)
		metricsClient = nil
	} else {
		c.closers = append(c.closers, metricsClient.Close)
	}
	c.Metrics = metricsClient

	var mgr *service.SessionManager
	transport := httpx.NewTransport(httpx.TransportOptions{
		Base:  deps.Transport,
		Store: store,
		OnAuthFailure: func(ctx context.Context) {
			if mgr != nil {
				mgr.Sync(ctx)
			}
		},
		Logger: logger,
	})

	client, err := backend.NewClient(backend.Options{
		BaseURL:   cfg.API.BaseURL,
		Transport: transport,
		Timeout:   cfg.API.Timeout,
		Logger:    logger,
	})
	if err != nil {
		_ = c.closeAll()
		return nil, fmt.Errorf("backend client: %w", err)
	}
	c.Backend = client

	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	opts := service.ManagerOptions{
		Store:          store,
		Backend:        client,
		Clock:          clk,
		Logger:         logger,
		ExpiryCushion:  cfg.Session.ExpiryCushion,
		LogoutTimeout:  cfg.Session.LogoutTimeout,
		ProfileTimeout: cfg.API.Timeout,
	}
	if metricsClient != nil && metricsClient.Enabled() {
		opts.Metrics = metricsClient
	}
	mgr, err = service.NewSessionManager(opts)
	if err != nil {
		_ = c.closeAll()
		return nil, fmt.Errorf("session manager: %w", err)
	}
	c.Manager = mgr

	c.Guard = guard.MiddlewareOptions{
		Source:  mgr,
		Landing: cfg.Guard.LandingPath,
		Logger:  logger,
	}

	logger.Debug("session stack ready",
		"api_base_url", cfg.API.BaseURL,
		"store", c.StoreLocation,
		"metrics", opts.Metrics != nil)
	return c, nil
}

// Close waits for pending logout notifications, then releases the store and metrics client.
func (c *SessionContainer) Close(ctx context.Context) error {
	var errs []error
	if c.Manager != nil {
		if err := c.Manager.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *SessionContainer) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
