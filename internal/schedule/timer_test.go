package schedule_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizzard/internal/schedule"
)

func TestTimer_ArmReplacesPending(t *testing.T) {
	mc := clock.NewMock()
	tm := schedule.NewTimer(mc)

	var first, second atomic.Int32
	tm.Arm(time.Second, func() { first.Add(1) })
	mc.Add(500 * time.Millisecond)
	tm.Arm(time.Second, func() { second.Add(1) })

	mc.Add(600 * time.Millisecond)
	assert.True(t, tm.Pending())

	mc.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.False(t, tm.Pending())
}

func TestTimer_Cancel(t *testing.T) {
	mc := clock.NewMock()
	tm := schedule.NewTimer(mc)

	var calls atomic.Int32
	tm.Arm(time.Second, func() { calls.Add(1) })

	assert.True(t, tm.Cancel())
	assert.False(t, tm.Cancel())

	mc.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTimer_FireAt(t *testing.T) {
	mc := clock.NewMock()
	tm := schedule.NewTimer(mc)

	_, ok := tm.FireAt()
	assert.False(t, ok)

	tm.Arm(30*time.Second, func() {})
	at, ok := tm.FireAt()
	assert.True(t, ok)
	assert.Equal(t, mc.Now().Add(30*time.Second), at)
}
