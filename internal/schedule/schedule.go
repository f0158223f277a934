package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// Scheduler provides the current time and deferred execution.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real schedules callbacks on the process clock.
type Real struct {
	clock clock.Clock
}

// NewReal returns a scheduler backed by the wall clock.
func NewReal() *Real {
	return &Real{clock: clock.New()}
}

// FromClock adapts any clock.Clock, including clock.Mock, into a Scheduler.
func FromClock(c clock.Clock) *Real {
	if c == nil {
		c = clock.New()
	}
	return &Real{clock: c}
}

func (r *Real) Now() time.Time {
	return r.clock.Now()
}

func (r *Real) AfterFunc(d time.Duration, fn func()) Timer {
	return r.clock.AfterFunc(d, fn)
}

// Manual is a deterministic scheduler. Time only moves inside Advance, and
// due callbacks run synchronously on the caller's goroutine in due order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m     *Manual
	at    time.Time
	seq   uint64
	fn    func()
	ended bool
}

// NewManual returns a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.ended {
		return false
	}
	t.ended = true
	t.m.remove(t)
	return true
}

// Advance moves time forward by d, firing every timer that becomes due,
// including timers scheduled by callbacks during the advance.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.ended = true
		m.remove(next)
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}

func (m *Manual) remove(t *manualTimer) {
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}
