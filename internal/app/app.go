// Package app wires the storage tiers, draft engine, wizard and auth session
// into one container, built once at start-up.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizzard/internal/auth"
	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/draft"
	"github.com/victornm/quizzard/internal/event"
	"github.com/victornm/quizzard/internal/oauth"
	"github.com/victornm/quizzard/internal/storage"
	"github.com/victornm/quizzard/internal/storage/file"
	"github.com/victornm/quizzard/internal/storage/memory"
	redisstore "github.com/victornm/quizzard/internal/storage/redis"
	"github.com/victornm/quizzard/internal/storage/sqlite"
	"github.com/victornm/quizzard/internal/telemetry"
	"github.com/victornm/quizzard/internal/wizard"
)

const connectTimeout = 10 * time.Second

type App struct {
	c Config

	clock    clock.Clock
	eb       *event.Bus
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	provider auth.Provider
	online   func(ctx context.Context) bool
	openURL  func(authURL string) error

	infra struct {
		primary  storage.Backend
		fallback storage.Backend
		closers  []func() error
	}

	service struct {
		store      *storage.Store
		drafts     *draft.Engine
		wizard     *wizard.Wizard
		auth       *auth.Manager
		supervisor *auth.Supervisor
	}
}

type Option func(a *App)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithProvider replaces the OAuth provider built from the config.
func WithProvider(p auth.Provider) Option {
	return func(a *App) { a.provider = p }
}

func WithOnline(f func(ctx context.Context) bool) Option {
	return func(a *App) { a.online = f }
}

// WithOpenURL sets how the sign-in page is presented to the user.
func WithOpenURL(f func(authURL string) error) Option {
	return func(a *App) { a.openURL = f }
}

func Init(c Config, opts ...Option) (*App, error) {
	a := &App{c: c}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = clock.New()
	}

	a.eb = event.NewBus()
	a.registry = prometheus.NewRegistry()
	a.metrics = telemetry.NewMetrics(a.registry)

	if err := a.initStorage(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	a.initService()
	a.subscribeLog()
	return a, nil
}

func (a *App) initStorage() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	c := a.c.Storage

	var err error
	switch c.Fallback.Driver {
	case DriverFile:
		a.infra.fallback, err = file.NewBackend(c.Fallback.File.Dir)
		if err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
	case DriverMemory:
		a.infra.fallback = memory.NewBackend()
	}

	a.infra.primary, err = a.connectPrimary(ctx)
	if err != nil {
		if a.infra.fallback == nil {
			return fmt.Errorf("primary: %w", err)
		}
		slog.WarnContext(ctx, "app: primary tier unavailable, using fallback only", "driver", c.Primary.Driver, "error", err)
		a.infra.primary = nil
	}

	if a.infra.primary == nil && a.infra.fallback == nil {
		return fmt.Errorf("no storage tier configured")
	}

	a.service.store = storage.New(storage.Config{
		Primary:        a.infra.primary,
		Fallback:       a.infra.fallback,
		MaxFailures:    c.Breaker.MaxFailures,
		BreakerTimeout: c.Breaker.Timeout,
		Metrics:        a.metrics,
	})

	return nil
}

func (a *App) connectPrimary(ctx context.Context) (storage.Backend, error) {
	c := a.c.Storage.Primary

	switch c.Driver {
	case DriverSQLite:
		if c.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.SQLite.Path), 0o700); err != nil {
				return nil, fmt.Errorf("sqlite: %w", err)
			}
		}

		db, err := sqlite.Open(ctx, c.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.infra.closers = append(a.infra.closers, db.Close)
		return db, nil

	case DriverRedis:
		if len(c.Redis.Addrs) == 0 {
			return nil, fmt.Errorf("redis: no address configured")
		}

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Redis.Addrs,
			Password: c.Redis.Pass,
		})
		a.infra.closers = append(a.infra.closers, r.Close)

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}

		return redisstore.NewBackend(redisstore.Config{
			Redis:  r,
			Prefix: c.Redis.Prefix,
		}), nil
	}

	return nil, nil
}

func (a *App) initService() {
	ac := a.c.Auth

	a.service.drafts = draft.NewEngine(draft.Config{
		Store:         a.service.store,
		EventBus:      a.eb,
		Clock:         a.clock,
		Metrics:       a.metrics,
		AutoSaveDelay: a.c.autoSaveDelay(a.infra.primary != nil),
		KeyPrefix:     a.c.Draft.KeyPrefix,
	})

	a.service.wizard = wizard.New(wizard.Config{
		Engine: a.service.drafts,
		Clock:  a.clock,
	})

	if a.provider == nil {
		p := oauth.NewProvider(oauth.Config{
			ClientID:     ac.ClientID,
			ClientSecret: ac.ClientSecret,
			AuthURL:      ac.AuthURL,
			TokenURL:     ac.TokenURL,
			UserInfoURL:  ac.UserInfoURL,
			RevokeURL:    ac.RevokeURL,
			Scopes:       ac.Scopes,
			RedirectPort: ac.RedirectPort,
			OpenURL:      a.openURL,
		})
		a.provider = p
		if a.online == nil {
			a.online = p.Online
		}
	}

	emergency := a.infra.fallback
	if emergency == nil {
		emergency = a.infra.primary
	}

	a.service.auth = auth.NewManager(auth.Config{
		Provider:    a.provider,
		Store:       a.service.store,
		Emergency:   emergency,
		EventBus:    a.eb,
		Clock:       a.clock,
		Metrics:     a.metrics,
		ClientID:    ac.ClientID,
		Online:      a.online,
		SessionKey:  ac.SessionKey,
		AuxKeys:     ac.AuxKeys,
		RefreshLead: ac.RefreshLead,
		MaxRetries:  ac.MaxRetries,
		BaseDelay:   ac.BaseDelay,
		MaxDelay:    ac.MaxDelay,
	})

	a.service.supervisor = auth.NewSupervisor(auth.SupervisorConfig{
		Manager:       a.service.auth,
		EventBus:      a.eb,
		Clock:         a.clock,
		CheckInterval: ac.CheckInterval,
		AutoLogout:    ac.AutoLogout,
		WarningLead:   ac.WarningLead,
		OnExpired: func(ctx context.Context) {
			a.service.wizard.Reset()
			slog.InfoContext(ctx, "app: session expired, returned to start")
		},
	})
}

var loggedEvents = []string{
	domain.EventNameDraftSaved,
	domain.EventNameDraftSaveFailed,
	domain.EventNameDraftDeleted,
	domain.EventNameSessionRestored,
	domain.EventNameSessionLoggedIn,
	domain.EventNameSessionRefreshed,
	domain.EventNameSessionRefreshFailed,
	domain.EventNameSessionLoggedOut,
	domain.EventNameSessionInactivityWarning,
	domain.EventNameSessionExpired,
}

func (a *App) subscribeLog() {
	for _, name := range loggedEvents {
		a.eb.Subscribe(name, func(ctx context.Context, e event.Event) error {
			slog.DebugContext(ctx, "app: event", "name", e.Name())
			return nil
		})
	}
}

// Start restores a persisted session and begins supervising it. It reports
// whether a session was restored.
func (a *App) Start(ctx context.Context) bool {
	restored := a.service.auth.RestoreSession(ctx)
	a.service.supervisor.Start()
	return restored
}

func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.service.supervisor.Stop()

	if err := a.service.drafts.Flush(ctx); err != nil {
		slog.ErrorContext(ctx, "app: flush draft failed", "error", err)
	}

	a.eb.Stop()
	a.close()

	slog.DebugContext(ctx, "app: shutdown completed")
}

func (a *App) close() {
	for i := len(a.infra.closers) - 1; i >= 0; i-- {
		if err := a.infra.closers[i](); err != nil {
			slog.Error("app: close failed", "error", err)
		}
	}
	a.infra.closers = nil
}

func (a *App) Store() *storage.Store          { return a.service.store }
func (a *App) Drafts() *draft.Engine          { return a.service.drafts }
func (a *App) Wizard() *wizard.Wizard         { return a.service.wizard }
func (a *App) Auth() *auth.Manager            { return a.service.auth }
func (a *App) Supervisor() *auth.Supervisor   { return a.service.supervisor }
func (a *App) EventBus() *event.Bus           { return a.eb }
func (a *App) Registry() *prometheus.Registry { return a.registry }
func (a *App) Metrics() *telemetry.Metrics    { return a.metrics }
