// Package auth manages the OAuth session: login, restore, silent refresh,
// logout and inactivity expiry.
package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/errors"
	"github.com/victornm/quizzard/internal/event"
	"github.com/victornm/quizzard/internal/schedule"
	"github.com/victornm/quizzard/internal/storage"
	"github.com/victornm/quizzard/internal/telemetry"
)

const (
	DefaultSessionKey  = "quizzard:auth:session"
	DefaultRefreshLead = 5 * time.Minute
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second

	scheduledRefreshTimeout = time.Minute
)

var (
	ErrRefreshInProgress = errors.New(errors.CodeRefreshFailed, errors.WithMessagef("Refresh already in progress"))
	ErrNotAuthenticated  = errors.New(errors.CodeTokenExpired, errors.WithMessagef("Not signed in"))
)

// Provider is the OAuth capability the manager depends on.
type Provider interface {
	ObtainToken(ctx context.Context) (domain.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (domain.Profile, error)
	RefreshToken(ctx context.Context, t domain.Token) (domain.Token, error)
	Revoke(ctx context.Context, t domain.Token) error
}

// Store is the subset of the two-tier store the manager needs.
type Store interface {
	Save(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string, dst any) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context, key string) error
}

type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseRefreshing      Phase = "refreshing"
	PhaseRefreshFailed   Phase = "refresh_failed"
)

type Config struct {
	Provider Provider
	Store    Store
	// Emergency is wiped directly when deleting through Store fails on
	// logout. It is normally the fallback tier.
	Emergency storage.Backend
	EventBus  *event.Bus
	Clock     clock.Clock
	Metrics   *telemetry.Metrics

	ClientID string
	// Online reports whether the network is reachable. Nil means always.
	Online func(ctx context.Context) bool

	SessionKey string
	// AuxKeys are cached per-user settings removed on logout.
	AuxKeys []string

	RefreshLead time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// State is a snapshot of the session for display.
type State struct {
	Phase         Phase           `json:"phase" yaml:"phase"`
	Authenticated bool            `json:"authenticated" yaml:"authenticated"`
	User          *domain.Profile `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt     time.Time       `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	RetryCount    int             `json:"retryCount" yaml:"retryCount"`
	LastRefresh   time.Time       `json:"lastRefresh,omitempty" yaml:"lastRefresh,omitempty"`
	LastError     *errors.Error   `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

type Manager struct {
	provider  Provider
	store     Store
	emergency storage.Backend
	eb        *event.Bus
	clock     clock.Clock
	metrics   *telemetry.Metrics
	clientID  string
	online    func(ctx context.Context) bool
	key       string
	auxKeys   []string
	policy    retryPolicy
	timer     *schedule.Timer

	mu          sync.Mutex
	session     *domain.Session
	phase       Phase
	refreshing  bool
	retryCount  int
	lastRefresh time.Time
	lastErr     *errors.Error
	// epoch changes whenever the session is replaced or torn down, so a
	// refresh that started earlier does not commit over it.
	epoch uint64
}

func NewManager(c Config) *Manager {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Online == nil {
		c.Online = func(context.Context) bool { return true }
	}
	if c.SessionKey == "" {
		c.SessionKey = DefaultSessionKey
	}
	if c.RefreshLead <= 0 {
		c.RefreshLead = DefaultRefreshLead
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}

	return &Manager{
		provider:  c.Provider,
		store:     c.Store,
		emergency: c.Emergency,
		eb:        c.EventBus,
		clock:     c.Clock,
		metrics:   c.Metrics,
		clientID:  c.ClientID,
		online:    c.Online,
		key:       c.SessionKey,
		auxKeys:   c.AuxKeys,
		policy: retryPolicy{
			lead:       c.RefreshLead,
			maxRetries: c.MaxRetries,
			baseDelay:  c.BaseDelay,
			maxDelay:   c.MaxDelay,
		},
		timer: schedule.NewTimer(c.Clock),
		phase: PhaseUnauthenticated,
	}
}

// RestoreSession adopts the persisted session if it has not expired. An
// expired session is deleted. No network call is made.
func (m *Manager) RestoreSession(ctx context.Context) bool {
	var s domain.Session
	if err := m.store.Load(ctx, m.key, &s); err != nil {
		slog.DebugContext(ctx, "auth: no stored session", "error", err)
		return false
	}

	// A record without an access token is the marker left by a logout that
	// could not delete every copy.
	if s.Token.AccessToken == "" {
		slog.InfoContext(ctx, "auth: stored session was signed out")
		if err := m.store.Delete(ctx, m.key); err != nil {
			slog.WarnContext(ctx, "auth: delete logout marker failed", "error", err)
		}
		return false
	}

	if exp, ok := s.ExpiresAt(); ok && !m.clock.Now().Before(exp) {
		slog.InfoContext(ctx, "auth: stored session expired", "expired_at", exp)
		if err := m.store.Delete(ctx, m.key); err != nil {
			slog.WarnContext(ctx, "auth: delete expired session failed", "error", err)
		}
		return false
	}

	m.adopt(s)
	m.ScheduleRefresh(s)

	slog.InfoContext(ctx, "auth: session restored", "user", email(s.User))
	m.eb.Publish(ctx, domain.EventSessionRestored{Session: s})
	return true
}

// Login runs the interactive OAuth flow and fetches the user profile. If
// the profile cannot be fetched the whole login is rolled back.
func (m *Manager) Login(ctx context.Context) (domain.Session, error) {
	if m.clientID == "" {
		return domain.Session{}, errors.New(errors.CodeConfiguration)
	}
	if !m.online(ctx) {
		return domain.Session{}, errors.New(errors.CodeOffline)
	}

	tok, err := m.provider.ObtainToken(ctx)
	if err != nil {
		slog.WarnContext(ctx, "auth: obtain token failed", "error", err)
		return domain.Session{}, errors.Convert(err)
	}

	profile, err := m.provider.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		slog.WarnContext(ctx, "auth: fetch profile failed, rolling back login", "error", err)
		m.clear()
		return domain.Session{}, errors.Convert(err)
	}

	s := domain.Session{
		Token:     tok,
		User:      &profile,
		Timestamp: m.clock.Now(),
	}

	if err := m.store.Save(ctx, m.key, s); err != nil {
		slog.WarnContext(ctx, "auth: persist session failed, session lives in memory only", "error", err)
	}

	m.adopt(s)
	m.ScheduleRefresh(s)

	slog.InfoContext(ctx, "auth: logged in", "user", profile.Email)
	m.eb.Publish(ctx, domain.EventSessionLoggedIn{Session: s})
	return s, nil
}

// Session returns the current session, if any.
func (m *Manager) Session() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return domain.Session{}, false
	}
	return *m.session, true
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Phase:         m.phase,
		Authenticated: m.session != nil,
		RetryCount:    m.retryCount,
		LastRefresh:   m.lastRefresh,
		LastError:     m.lastErr,
	}
	if m.session != nil {
		if m.session.User != nil {
			u := *m.session.User
			st.User = &u
		}
		st.ExpiresAt, _ = m.session.ExpiresAt()
	}
	return st
}

// ScheduleRefresh arms the silent refresh for lead time before s expires,
// replacing any earlier schedule. Tokens without a known lifetime, or
// already inside the lead window, are not scheduled. It reports whether a
// refresh was armed.
func (m *Manager) ScheduleRefresh(s domain.Session) bool {
	exp, ok := s.ExpiresAt()
	if !ok {
		m.timer.Cancel()
		return false
	}

	d := exp.Add(-m.policy.lead).Sub(m.clock.Now())
	if d <= 0 {
		m.timer.Cancel()
		return false
	}

	m.timer.Arm(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledRefreshTimeout)
		defer cancel()

		if err := m.RefreshToken(ctx); err != nil {
			slog.WarnContext(ctx, "auth: scheduled refresh failed", "error", err)
		}
	})

	slog.Debug("auth: refresh scheduled", "in", d)
	return true
}

// RefreshPending reports whether a scheduled refresh is armed.
func (m *Manager) RefreshPending() bool {
	return m.timer.Pending()
}

// ShouldRefresh reports whether the current token has a known lifetime and
// is within the refresh lead of expiring.
func (m *Manager) ShouldRefresh() bool {
	s, ok := m.Session()
	if !ok {
		return false
	}

	exp, ok := s.ExpiresAt()
	if !ok {
		return false
	}
	return !m.clock.Now().Before(exp.Add(-m.policy.lead))
}

func (m *Manager) adopt(s domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.session = &s
	m.phase = PhaseAuthenticated
	m.retryCount = 0
	m.lastErr = nil
}

func (m *Manager) clear() {
	m.timer.Cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.session = nil
	m.phase = PhaseUnauthenticated
	m.retryCount = 0
	m.lastErr = nil
}

func email(p *domain.Profile) string {
	if p == nil {
		return ""
	}
	return p.Email
}
