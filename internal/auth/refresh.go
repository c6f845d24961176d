package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/errors"
)

type retryPolicy struct {
	lead       time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// backOff doubles the delay from baseDelay up to maxDelay and allows
// maxRetries attempts in total.
func (p retryPolicy) backOff(ctx context.Context, c clock.Clock) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.maxDelay
	b.MaxElapsedTime = 0
	b.Clock = c
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries-1)), ctx)
}

// RefreshToken renews the access token, retrying transient failures with
// exponential backoff. Only one refresh runs at a time: a concurrent call
// fails at once with ErrRefreshInProgress. A failed refresh keeps the
// current session usable.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		m.metrics.Refresh("in_progress")
		return ErrRefreshInProgress
	}
	if m.session == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.refreshing = true
	m.phase = PhaseRefreshing
	cur := *m.session
	epoch := m.epoch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	var (
		attempts int
		tok      domain.Token
	)
	op := func() error {
		attempts++
		m.setRetryCount(attempts - 1)

		t, err := m.provider.RefreshToken(ctx, cur.Token)
		if err != nil {
			if errors.IsPermanentGrant(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		tok = t
		return nil
	}
	notify := func(err error, d time.Duration) {
		slog.WarnContext(ctx, "auth: refresh attempt failed, retrying",
			"attempt", attempts,
			"retry_in", d,
			"error", err,
		)
	}

	err := backoff.RetryNotifyWithTimer(op, m.policy.backOff(ctx, m.clock), notify, &clockTimer{clock: m.clock})
	if err != nil {
		return m.refreshFailed(ctx, attempts, err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = cur.Token.RefreshToken
	}
	s := domain.Session{
		Token:     tok,
		User:      cur.User,
		Timestamp: m.clock.Now(),
	}

	if !m.commitRefresh(ctx, epoch, s) {
		slog.InfoContext(ctx, "auth: session ended during refresh, dropping new token")
		return ErrNotAuthenticated
	}

	m.ScheduleRefresh(s)
	m.metrics.Refresh("ok")

	slog.InfoContext(ctx, "auth: token refreshed", "attempts", attempts)
	m.eb.Publish(ctx, domain.EventSessionRefreshed{Session: s})
	return nil
}

// commitRefresh persists and adopts s unless a logout started after the
// refresh did. The lock is held across the write so a logout cannot
// delete the session before it is written.
func (m *Manager) commitRefresh(ctx context.Context, epoch uint64, s domain.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch || m.session == nil {
		return false
	}

	if err := m.store.Save(ctx, m.key, s); err != nil {
		slog.WarnContext(ctx, "auth: persist refreshed session failed", "error", err)
	}

	m.session = &s
	m.phase = PhaseAuthenticated
	m.retryCount = 0
	m.lastRefresh = s.Timestamp
	m.lastErr = nil
	return true
}

func (m *Manager) refreshFailed(ctx context.Context, attempts int, err error) error {
	var (
		e   *errors.Error
		res = "error"
	)
	switch {
	case errors.IsPermanentGrant(err):
		e = errors.New(errors.CodeTokenExpired, errors.WithCause(err))
		res = "permanent"
	case ctx.Err() != nil:
		e = errors.New(errors.CodeRefreshFailed, errors.WithMessagef("Token refresh cancelled after %d attempts", attempts), errors.WithCause(err))
	default:
		e = errors.New(errors.CodeRefreshFailed, errors.WithMessagef("Token refresh failed after %d attempts", attempts), errors.WithCause(err))
	}

	m.mu.Lock()
	if m.session != nil {
		m.phase = PhaseRefreshFailed
	}
	m.retryCount = attempts
	m.lastErr = e
	m.mu.Unlock()

	m.metrics.Refresh(res)
	slog.ErrorContext(ctx, "auth: token refresh failed", "attempts", attempts, "error", err)
	m.eb.Publish(ctx, domain.EventSessionRefreshFailed{Attempts: attempts, Err: e})
	return e
}

func (m *Manager) setRetryCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount = n
}

// clockTimer lets backoff sleep on the manager clock.
type clockTimer struct {
	clock clock.Clock
	t     *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.t == nil {
		t.t = t.clock.Timer(d)
		return
	}
	t.t.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.t.C
}
