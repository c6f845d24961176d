package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/victornm/quizzard/internal/domain"
)

// Logout steps, in the order they run.
const (
	StepRevoke        = "revoke"
	StepDeleteSession = "delete_session"
	StepEmergencyWipe = "emergency_wipe"
	StepLogoutMarker  = "logout_marker"
	StepClearAux      = "clear_aux"
)

type StepFailure struct {
	Step string `json:"step" yaml:"step"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
	Err  error  `json:"-" yaml:"-"`
}

// LogoutReport lists the logout steps that failed. The in-memory session
// is cleared even when every other step failed.
type LogoutReport struct {
	Forced   bool          `json:"forced" yaml:"forced"`
	Failures []StepFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func (r LogoutReport) OK() bool { return len(r.Failures) == 0 }

// Err joins the step failures, or returns nil.
func (r LogoutReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		if f.Key != "" {
			errs = append(errs, fmt.Errorf("%s %s: %w", f.Step, f.Key, f.Err))
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", f.Step, f.Err))
		}
	}
	return stderrors.Join(errs...)
}

func (r *LogoutReport) fail(step, key string, err error) {
	r.Failures = append(r.Failures, StepFailure{Step: step, Key: key, Err: err})
}

// Logout signs the user out. Every step is attempted even if an earlier
// one failed.
func (m *Manager) Logout(ctx context.Context) LogoutReport {
	return m.logout(ctx, false)
}

// ExpireSession is Logout triggered by inactivity rather than the user.
func (m *Manager) ExpireSession(ctx context.Context) LogoutReport {
	return m.logout(ctx, true)
}

func (m *Manager) logout(ctx context.Context, forced bool) LogoutReport {
	m.mu.Lock()
	m.epoch++
	s := m.session
	m.mu.Unlock()

	r := LogoutReport{Forced: forced}

	if s != nil && m.provider != nil {
		if err := m.provider.Revoke(ctx, s.Token); err != nil {
			slog.WarnContext(ctx, "auth: provider logout failed", "error", err)
			r.fail(StepRevoke, "", err)
		}
	}

	if err := m.store.Purge(ctx, m.key); err != nil {
		slog.ErrorContext(ctx, "auth: delete stored session failed", "error", err)
		r.fail(StepDeleteSession, m.key, err)
		m.emergencyWipe(ctx, &r, m.key)
		m.markLoggedOut(ctx, &r)
	}

	m.clear()

	for _, k := range m.auxKeys {
		if err := m.store.Delete(ctx, k); err != nil {
			slog.WarnContext(ctx, "auth: delete cached settings failed", "key", k, "error", err)
			r.fail(StepClearAux, k, err)
			m.emergencyWipe(ctx, &r, k)
		}
	}

	m.metrics.Logout(forced)
	if r.OK() {
		slog.InfoContext(ctx, "auth: logged out", "forced", forced)
	} else {
		slog.WarnContext(ctx, "auth: logged out with failures", "forced", forced, "error", r.Err())
	}

	m.eb.Publish(ctx, domain.EventSessionLoggedOut{Forced: forced})
	return r
}

func (m *Manager) emergencyWipe(ctx context.Context, r *LogoutReport, key string) {
	if m.emergency == nil {
		return
	}
	if err := m.emergency.Delete(ctx, key); err != nil {
		slog.ErrorContext(ctx, "auth: emergency wipe failed", "key", key, "error", err)
		r.fail(StepEmergencyWipe, key, err)
	}
}

// markLoggedOut overwrites a session copy that can still be read back with
// a record RestoreSession rejects.
func (m *Manager) markLoggedOut(ctx context.Context, r *LogoutReport) {
	var s domain.Session
	if err := m.store.Load(ctx, m.key, &s); err != nil {
		return
	}

	if err := m.store.Save(ctx, m.key, domain.Session{Timestamp: m.clock.Now()}); err != nil {
		slog.ErrorContext(ctx, "auth: write logout marker failed", "error", err)
		r.fail(StepLogoutMarker, m.key, err)
	}
}
