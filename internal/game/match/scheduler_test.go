package match

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RealClockFires(t *testing.T) {
	var called atomic.Int32
	s := NewScheduler(RealClock())
	require.True(t, s.Schedule("fill", 20*time.Millisecond, func() { called.Add(1) }))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), called.Load())
	assert.False(t, s.Pending("fill"))
}

func TestScheduler_CancelPreventsCallback(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)
	var called atomic.Int32
	s.Schedule("lock", time.Second, func() { called.Add(1) })
	s.Cancel("lock")
	clock.Advance(2 * time.Second)
	assert.Zero(t, called.Load())
}

func TestScheduler_ScheduleReplacesSameName(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)
	var first, second atomic.Int32
	s.Schedule("fill", time.Second, func() { first.Add(1) })
	s.Schedule("fill", 2*time.Second, func() { second.Add(1) })
	assert.Equal(t, 1, s.Len())

	clock.Advance(time.Second)
	assert.Zero(t, first.Load())
	assert.Zero(t, second.Load())

	clock.Advance(time.Second)
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestScheduler_CancelAllClosesScheduler(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)
	var called atomic.Int32
	s.Schedule("fill", time.Second, func() { called.Add(1) })
	s.Schedule("lock", time.Minute, func() { called.Add(1) })

	s.CancelAll()
	assert.Zero(t, s.Len())
	assert.False(t, s.Schedule("publish", time.Second, func() { called.Add(1) }))

	clock.Advance(time.Hour)
	assert.Zero(t, called.Load())
	assert.Zero(t, clock.Pending())
}

func TestManualClock_FiresInDeadlineOrder(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var order []string
	clock.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	clock.AfterFunc(time.Second, func() {
		order = append(order, "a")
		clock.AfterFunc(time.Second, func() { order = append(order, "b") })
	})
	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, time.Unix(5, 0), clock.Now())
}

func TestManualClock_StopReportsPending(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	tm := clock.AfterFunc(time.Second, func() {})
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
}
