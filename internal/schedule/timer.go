// Package schedule provides re-armable one-shot timers driven by an
// injectable clock, so callers can be tested on virtual time.
package schedule

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer runs at most one pending callback. Arming it again replaces the
// pending callback instead of stacking a second one.
type Timer struct {
	clock clock.Clock

	mu      sync.Mutex
	t       *clock.Timer
	gen     uint64
	pending bool
	fireAt  time.Time
}

func NewTimer(c clock.Clock) *Timer {
	if c == nil {
		c = clock.New()
	}
	return &Timer{clock: c}
}

// Arm schedules f to run after d, cancelling any callback armed before.
// A callback whose timer was superseded or cancelled never runs, even if
// the underlying timer already fired.
func (t *Timer) Arm(d time.Duration, f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.pending = true
	t.fireAt = t.clock.Now().Add(d)

	t.t = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if gen != t.gen || !t.pending {
			t.mu.Unlock()
			return
		}
		t.pending = false
		t.t = nil
		t.mu.Unlock()

		f()
	})
}

// Cancel drops the pending callback. It reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	was := t.pending
	t.stopLocked()
	t.gen++
	return was
}

// Pending reports whether a callback is armed and has not run yet.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// FireAt returns when the pending callback is due.
func (t *Timer) FireAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fireAt, t.pending
}

func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.pending = false
}
