package match

import (
	"sort"
	"sync"
	"time"
)

// Timer names used by the orchestrator. A session owns at most one timer per name.
const (
	timerFill    = "fill"
	timerLock    = "lock"
	timerConfirm = "confirm"
	timerPublish = "publish"
)

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Production code uses RealClock; tests use a
// ManualClock to drive timers deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// task fires a callback after a duration unless stopped.
// It is safe for concurrent use.
type task struct {
	mu      sync.Mutex
	timer   Timer
	stopped bool
}

// newTask starts a task that calls onFire after d on clock.
//
// Precondition: onFire must not be nil.
// Postcondition: onFire will be called unless stop is called first.
func newTask(clock Clock, d time.Duration, onFire func()) *task {
	t := &task{}
	tm := clock.AfterFunc(d, func() {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	t.mu.Lock()
	t.timer = tm
	t.mu.Unlock()
	return t
}

// stop prevents the callback from firing. Safe to call multiple times.
func (t *task) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Scheduler owns the named timers of one session. Once CancelAll is called
// every pending timer is stopped and further Schedule calls are rejected.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	tasks  map[string]*task
	closed bool
}

// NewScheduler creates a Scheduler on clock. A nil clock uses RealClock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{clock: clock, tasks: make(map[string]*task)}
}

// Schedule runs fn after d under name, replacing any pending timer with the
// same name.
//
// Postcondition: Returns false and schedules nothing after CancelAll.
func (s *Scheduler) Schedule(name string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if old, ok := s.tasks[name]; ok {
		old.stop()
	}
	var t *task
	t = newTask(s.clock, d, func() {
		s.mu.Lock()
		current := s.tasks[name] == t
		if current {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
		if current {
			fn()
		}
	})
	s.tasks[name] = t
	return true
}

// Cancel stops the pending timer registered under name, if any.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.stop()
		delete(s.tasks, name)
	}
}

// Pending reports whether a timer is registered under name.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// CancelAll stops every pending timer and closes the scheduler.
//
// Postcondition: Len() == 0 and no callback registered before the call will run.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for name, t := range s.tasks {
		t.stop()
		delete(s.tasks, name)
	}
}

// ManualClock is a Clock whose time only moves on Advance. Callbacks run
// synchronously on the goroutine calling Advance.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due in
// deadline order. Timers scheduled by callbacks fire too when they fall inside
// the window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.compactLocked()
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.mu.Unlock()
		next.fn()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

func (c *ManualClock) compactLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
}
