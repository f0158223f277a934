package schedule

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestManualFiresInDueOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []int
	m.AfterFunc(30*time.Millisecond, func() { order = append(order, 3) })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, 2) })

	m.Advance(5 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("expected nothing fired, got %v", order)
	}

	m.Advance(25 * time.Millisecond)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected firing order %v", order)
	}
	if got := m.Now(); !got.Equal(time.Unix(0, 0).Add(30 * time.Millisecond)) {
		t.Fatalf("unexpected now %v", got)
	}
}

func TestManualStopPreventsFire(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("expected first Stop to report true")
	}
	if timer.Stop() {
		t.Fatal("expected second Stop to report false")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", m.Pending())
	}
}

func TestManualCallbackSchedulesWithinAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var fired []time.Duration
	start := m.Now()
	m.AfterFunc(100*time.Millisecond, func() {
		fired = append(fired, m.Now().Sub(start))
		m.AfterFunc(100*time.Millisecond, func() {
			fired = append(fired, m.Now().Sub(start))
		})
	})

	m.Advance(250 * time.Millisecond)
	if len(fired) != 2 || fired[0] != 100*time.Millisecond || fired[1] != 200*time.Millisecond {
		t.Fatalf("unexpected fire times %v", fired)
	}
}

func TestRealFromMockClock(t *testing.T) {
	mock := clock.NewMock()
	r := FromClock(mock)
	if !r.Now().Equal(mock.Now()) {
		t.Fatal("expected scheduler to read the mock clock")
	}
	timer := r.AfterFunc(time.Hour, func() {})
	if !timer.Stop() {
		t.Fatal("expected pending mock timer to stop")
	}
}
