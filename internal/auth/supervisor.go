package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/event"
	"github.com/victornm/quizzard/internal/schedule"
)

const (
	DefaultCheckInterval = time.Minute
	DefaultAutoLogout    = 30 * time.Minute
	DefaultWarningLead   = 5 * time.Minute

	supervisorTimeout = time.Minute
)

type SupervisorConfig struct {
	Manager  *Manager
	EventBus *event.Bus
	Clock    clock.Clock

	// CheckInterval is how often the token is checked for refresh.
	CheckInterval time.Duration
	// AutoLogout is the inactivity period after which the session ends.
	AutoLogout time.Duration
	// WarningLead is how long before the logout the warning is published.
	WarningLead time.Duration

	// OnExpired runs after an inactivity logout, typically to send the
	// user back to the start screen.
	OnExpired func(ctx context.Context)
}

// Supervisor keeps the session fresh while the user is active and ends it
// after a period of inactivity. Activity is reported through Touch.
type Supervisor struct {
	m         *Manager
	eb        *event.Bus
	clock     clock.Clock
	interval  time.Duration
	idle      time.Duration
	lead      time.Duration
	onExpired func(ctx context.Context)

	warning *schedule.Timer
	final   *schedule.Timer

	mu           sync.Mutex
	running      bool
	lastActivity time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewSupervisor(c SupervisorConfig) *Supervisor {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.AutoLogout <= 0 {
		c.AutoLogout = DefaultAutoLogout
	}
	if c.WarningLead <= 0 || c.WarningLead >= c.AutoLogout {
		c.WarningLead = min(DefaultWarningLead, c.AutoLogout/2)
	}

	return &Supervisor{
		m:         c.Manager,
		eb:        c.EventBus,
		clock:     c.Clock,
		interval:  c.CheckInterval,
		idle:      c.AutoLogout,
		lead:      c.WarningLead,
		onExpired: c.OnExpired,
		warning:   schedule.NewTimer(c.Clock),
		final:     schedule.NewTimer(c.Clock),
	}
}

// Start begins supervising. Calling it while running does nothing.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.lastActivity = s.clock.Now()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.clock.Ticker(s.interval), s.done)
	s.armWarningLocked(s.idle - s.lead)

	slog.Debug("auth: supervisor started", "auto_logout", s.idle, "check_interval", s.interval)
}

// Stop cancels all timers and waits for the refresh loop to exit. Calling
// it while stopped does nothing.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.warning.Cancel()
	s.final.Cancel()
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	slog.Debug("auth: supervisor stopped")
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Touch records user activity and restarts the inactivity countdown.
func (s *Supervisor) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.lastActivity = s.clock.Now()
	s.final.Cancel()
	s.armWarningLocked(s.idle - s.lead)
}

func (s *Supervisor) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Supervisor) loop(ctx context.Context, t *clock.Ticker, done chan<- struct{}) {
	defer close(done)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.checkRefresh(ctx)
		}
	}
}

// checkRefresh refreshes opportunistically. Failures are only logged; the
// manager reports them through its state and events.
func (s *Supervisor) checkRefresh(ctx context.Context) {
	if !s.m.ShouldRefresh() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, supervisorTimeout)
	defer cancel()

	if err := s.m.RefreshToken(ctx); err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			slog.DebugContext(ctx, "auth: refresh already running, skipping check")
			return
		}
		slog.WarnContext(ctx, "auth: background refresh failed", "error", err)
	}
}

func (s *Supervisor) armWarningLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.warning.Arm(d, s.onWarning)
}

func (s *Supervisor) onWarning() {
	if !s.m.IsAuthenticated() {
		return
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.final.Arm(s.lead, s.onFinal)
	s.mu.Unlock()

	slog.Info("auth: inactivity warning", "logout_in", s.lead)
	s.eb.Publish(context.Background(), domain.EventSessionInactivityWarning{RemainingMillis: s.lead.Milliseconds()})
}

// onFinal re-reads the idle time instead of trusting the timer, since
// activity may have happened after the warning.
func (s *Supervisor) onFinal() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	idle := s.clock.Since(s.lastActivity)
	if idle < s.idle {
		s.armWarningLocked(s.idle - s.lead - idle)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !s.m.IsAuthenticated() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), supervisorTimeout)
	defer cancel()

	slog.InfoContext(ctx, "auth: session expired after inactivity", "idle", idle)
	s.m.ExpireSession(ctx)
	s.eb.Publish(ctx, domain.EventSessionExpired{})

	if s.onExpired != nil {
		s.onExpired(ctx)
	}
}
